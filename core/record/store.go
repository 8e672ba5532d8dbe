package record

import (
	"sort"

	"github.com/kat-co/vala"
)

// Store is an ordered, newest-first collection of Records with an input buffer and an edit session.
// It does no I/O and is not safe for concurrent use: callers serialize access (one Store per session).
type Store struct {
	schema    Schema
	validator *Validator
	ids       *idGen

	records []Record
	edit    EditState
	input   Fields
}

type StoreOption func(*Store)

func WithValidator(v *Validator) StoreOption {
	return func(s *Store) { s.validator = v }
}

func NewStore(schema Schema, opts ...StoreOption) *Store {
	vala.BeginValidation().Validate(
		vala.StringNotEmpty(schema.Name, "schema.Name"),
		vala.GreaterThan(len(schema.Fields), 0, "len(schema.Fields)"),
	).CheckAndPanic()

	s := &Store{
		schema:    schema,
		validator: defaultValidator,
		ids:       new(idGen),
		records:   make([]Record, 0),
		edit:      Idle{},
		input:     Fields{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Schema() Schema { return s.schema }

// Load replaces the collection with `records`, ordered newest-first, and resets the edit session.
func (s *Store) Load(records []Record) {
	s.records = make([]Record, 0, len(records))
	for _, r := range records {
		s.records = append(s.records, r.clone())
		s.ids.observe(r.ID)
	}
	sort.SliceStable(s.records, func(i, j int) bool { return s.records[i].ID > s.records[j].ID })
	s.edit = Idle{}
	s.input = Fields{}
}

// Clone returns an independent copy sharing the schema, the validator and the id sequence.
func (s *Store) Clone() *Store {
	c := &Store{
		schema:    s.schema,
		validator: s.validator,
		ids:       &idGen{last: s.ids.last},
		records:   make([]Record, len(s.records)),
		edit:      s.edit,
		input:     s.input.Clone(),
	}
	for i, r := range s.records {
		c.records[i] = r.clone()
	}
	return c
}

func (s *Store) indexOf(id int64) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// SetInput sets one field of the input buffer.
func (s *Store) SetInput(field, value string) {
	s.input[field] = value
}

func (s *Store) Input() Fields { return s.input.Clone() }

func (s *Store) Edit() EditState { return s.edit }

// Check reports why `fields` would be declined by Submit.
func (s *Store) Check(fields Fields) error {
	return s.validator.Check(s.schema, fields)
}

// Submit creates a record from `fields`, or updates the record under edit in place.
// It is a no-op returning false when a required field is blank or a rule fails.
func (s *Store) Submit(fields Fields) (Record, bool) {
	if s.Check(fields) != nil {
		return Record{}, false
	}
	cleaned := s.validator.Clean(s.schema, fields)
	now := NowFunc().UTC()

	if id, editing := EditingID(s.edit); editing {
		idx := s.indexOf(id)
		if idx < 0 { // unreachable: Delete leaves the edit session
			s.reset()
			return Record{}, false
		}
		s.records[idx].Fields = cleaned
		s.records[idx].UpdatedAt = now
		s.reset()
		return s.records[idx].clone(), true
	}

	rec := Record{
		ID:        s.ids.next(),
		Fields:    cleaned,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records = append([]Record{rec}, s.records...)
	s.input = Fields{}
	return rec.clone(), true
}

// SubmitInput submits the input buffer.
func (s *Store) SubmitInput() (Record, bool) {
	return s.Submit(s.input)
}

// Update edits the record with the given id in one step; no-op when the id is unknown.
func (s *Store) Update(id int64, fields Fields) (Record, bool) {
	if s.indexOf(id) < 0 {
		return Record{}, false
	}
	prevEdit, prevInput := s.edit, s.input
	s.edit = Editing{ID: id}
	rec, ok := s.Submit(fields)
	if !ok {
		s.edit, s.input = prevEdit, prevInput
	}
	return rec, ok
}

// Delete removes the record with the given id, keeping the order of the others.
// Deleting the record under edit ends the edit session.
func (s *Store) Delete(id int64) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	if editID, editing := EditingID(s.edit); editing && editID == id {
		s.reset()
	}
	return true
}

// BeginEdit starts editing the record with the given id and copies its fields to the input buffer.
func (s *Store) BeginEdit(id int64) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.edit = Editing{ID: id}
	s.input = s.records[idx].Fields.Clone()
	return true
}

// CancelEdit ends the edit session and empties the input buffer.
func (s *Store) CancelEdit() {
	s.reset()
}

func (s *Store) ToggleVisible(id int64) (Record, bool) {
	return s.toggle(id, func(r *Record) { r.Visible = !r.Visible })
}

func (s *Store) ToggleCompleted(id int64) (Record, bool) {
	return s.toggle(id, func(r *Record) { r.Completed = !r.Completed })
}

func (s *Store) toggle(id int64, flip func(*Record)) (Record, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return Record{}, false
	}
	flip(&s.records[idx])
	return s.records[idx].clone(), true
}

// List returns a snapshot of the collection, the edit session and the input buffer.
func (s *Store) List() Snapshot {
	records := make([]Record, len(s.records))
	for i, r := range s.records {
		records[i] = r.clone()
	}
	return Snapshot{Records: records, Edit: s.edit, Input: s.input.Clone()}
}

func (s *Store) reset() {
	s.edit = Idle{}
	s.input = Fields{}
}
