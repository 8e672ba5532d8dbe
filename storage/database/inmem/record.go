package inmemdb

import (
	"context"

	"github.com/trezcool/recordbook/core/record"
)

type recordRepository struct {
	db *recordTable
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) record.Repository {
	return &recordRepository{db: db.record}
}

func copyRecord(rec record.Record) *record.Record {
	rec.Fields = rec.Fields.Clone()
	return &rec
}

func (repo *recordRepository) QueryRecords(_ context.Context, collection string) ([]record.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := make([]record.Record, 0, len(repo.db.table[collection]))
	for _, rec := range repo.db.table[collection] {
		records = append(records, *copyRecord(*rec))
	}
	return records, nil
}

func (repo *recordRepository) CreateRecord(_ context.Context, collection string, rec record.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	coll, ok := repo.db.table[collection]
	if !ok {
		coll = make(map[int64]*record.Record)
		repo.db.table[collection] = coll
	}
	coll[rec.ID] = copyRecord(rec)
	return nil
}

func (repo *recordRepository) UpdateRecord(_ context.Context, collection string, rec record.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save mutable fields
	origRec, ok := repo.db.table[collection][rec.ID]
	if !ok {
		return record.ErrNotFound
	}
	origRec.Fields = rec.Fields.Clone()
	origRec.Visible = rec.Visible
	origRec.Completed = rec.Completed
	origRec.UpdatedAt = rec.UpdatedAt
	return nil
}

func (repo *recordRepository) DeleteRecord(_ context.Context, collection string, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table[collection], id)
	return nil
}

func (repo *recordRepository) DeleteCollection(_ context.Context, collection string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table, collection)
	return nil
}
