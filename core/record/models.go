package record

import (
	"fmt"
	"time"
)

// Fields maps a field name to its value.
type Fields map[string]string

func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

type Record struct {
	ID        int64     `json:"id" yaml:"id"`
	Fields    Fields    `json:"fields" yaml:"fields"`
	Visible   bool      `json:"visible" yaml:"visible"`
	Completed bool      `json:"completed" yaml:"completed"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"` // UTC
}

func (r Record) clone() Record {
	r.Fields = r.Fields.Clone()
	return r
}

// FieldSpec describes one field of a Schema.
// Rules is a validator tag applied to the cleaned value, e.g. "max=32" or "numeric".
type FieldSpec struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Rules    string `json:"rules,omitempty" yaml:"rules,omitempty"`
}

type Schema struct {
	Name   string      `json:"name" yaml:"name"`
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// Built-in schemas
var (
	ContactSchema = Schema{
		Name: "contact",
		Fields: []FieldSpec{
			{Name: "firstName", Required: true},
			{Name: "lastName", Required: true},
			{Name: "mobile", Required: true},
		},
	}
	TodoSchema = Schema{
		Name:   "todo",
		Fields: []FieldSpec{{Name: "text", Required: true}},
	}
	PlayerSchema = Schema{
		Name: "player",
		Fields: []FieldSpec{
			{Name: "name", Required: true},
			{Name: "run", Required: true, Rules: "numeric"},
			{Name: "country", Required: true},
		},
	}

	schemas = map[string]Schema{
		ContactSchema.Name: ContactSchema,
		TodoSchema.Name:    TodoSchema,
		PlayerSchema.Name:  PlayerSchema,
	}
)

// LookupSchema returns the built-in schema registered under `name`.
func LookupSchema(name string) (Schema, error) {
	if s, ok := schemas[name]; ok {
		return s, nil
	}
	return Schema{}, fmt.Errorf("unknown schema %q", name)
}

// EditState is either Idle or Editing.
type EditState interface {
	isEditState()
}

type (
	Idle    struct{}
	Editing struct{ ID int64 }
)

func (Idle) isEditState()    {}
func (Editing) isEditState() {}

// EditingID returns the id under edit, if any.
func EditingID(st EditState) (int64, bool) {
	if e, ok := st.(Editing); ok {
		return e.ID, true
	}
	return 0, false
}

// Snapshot is a read-only view of a Store: enough for a caller to render the current state.
type Snapshot struct {
	Records []Record
	Edit    EditState
	Input   Fields
}

func (s Snapshot) Len() int { return len(s.Records) }

// Get returns the record with the given id.
func (s Snapshot) Get(id int64) (Record, bool) {
	for _, r := range s.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

type Page struct {
	Items   []Record `json:"items"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
	Total   int      `json:"total"`
	HasPrev bool     `json:"has_prev"`
	HasNext bool     `json:"has_next"`
}

// Page slices the records into pages of `perPage` items; pages are zero-indexed.
// Out of range pages have no items.
func (s Snapshot) Page(page, perPage int) Page {
	if page < 0 {
		page = 0
	}
	if perPage <= 0 {
		perPage = 1
	}
	total := len(s.Records)
	p := Page{Items: []Record{}, Page: page, PerPage: perPage, Total: total}

	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	if page < pages {
		start := page * perPage
		end := total
		if perPage < total-start {
			end = start + perPage
		}
		p.Items = s.Records[start:end]
	}
	p.HasPrev = page > 0
	p.HasNext = page < pages-1
	return p
}
