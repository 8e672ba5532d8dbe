package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
)

var defaultOrdering = core.DBOrdering{Field: "id"}

// recordRow is the `records` table row; fields are stored as a JSON object.
type recordRow struct {
	Collection string    `db:"collection"`
	ID         int64     `db:"id"`
	Fields     string    `db:"fields"`
	Visible    bool      `db:"visible"`
	Completed  bool      `db:"completed"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func toRow(collection string, rec record.Record) (recordRow, error) {
	fields := rec.Fields
	if fields == nil {
		fields = record.Fields{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return recordRow{}, errors.Wrap(err, "encoding fields")
	}
	return recordRow{
		Collection: collection,
		ID:         rec.ID,
		Fields:     string(b),
		Visible:    rec.Visible,
		Completed:  rec.Completed,
		CreatedAt:  rec.CreatedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}, nil
}

func (row recordRow) toRecord() (record.Record, error) {
	fields := record.Fields{}
	if err := json.Unmarshal([]byte(row.Fields), &fields); err != nil {
		return record.Record{}, errors.Wrapf(err, "decoding fields of record %d", row.ID)
	}
	return record.Record{
		ID:        row.ID,
		Fields:    fields,
		Visible:   row.Visible,
		Completed: row.Completed,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

type recordRepository struct {
	db core.DBExecutor
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db core.DBExecutor) record.Repository {
	return &recordRepository{db: db}
}

func (repo *recordRepository) QueryRecords(ctx context.Context, collection string) ([]record.Record, error) {
	var rows []recordRow
	q := repo.db.Rebind(`SELECT collection, id, fields, visible, completed, created_at, updated_at
		FROM records WHERE collection = ? ORDER BY ` + defaultOrdering.String())
	if err := repo.db.SelectContext(ctx, &rows, q, collection); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}

	records := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (repo *recordRepository) CreateRecord(ctx context.Context, collection string, rec record.Record) error {
	row, err := toRow(collection, rec)
	if err != nil {
		return err
	}
	q := repo.db.Rebind(`INSERT INTO records (collection, id, fields, visible, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = repo.db.ExecContext(ctx, q,
		row.Collection, row.ID, row.Fields, row.Visible, row.Completed, row.CreatedAt, row.UpdatedAt)
	return errors.Wrap(err, "inserting record")
}

func (repo *recordRepository) UpdateRecord(ctx context.Context, collection string, rec record.Record) error {
	row, err := toRow(collection, rec)
	if err != nil {
		return err
	}
	q := repo.db.Rebind(`UPDATE records SET fields = ?, visible = ?, completed = ?, updated_at = ?
		WHERE collection = ? AND id = ?`)
	res, err := repo.db.ExecContext(ctx, q,
		row.Fields, row.Visible, row.Completed, row.UpdatedAt, row.Collection, row.ID)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	if n == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (repo *recordRepository) DeleteRecord(ctx context.Context, collection string, id int64) error {
	q := repo.db.Rebind(`DELETE FROM records WHERE collection = ? AND id = ?`)
	_, err := repo.db.ExecContext(ctx, q, collection, id)
	return errors.Wrap(err, "deleting record")
}

func (repo *recordRepository) DeleteCollection(ctx context.Context, collection string) error {
	q := repo.db.Rebind(`DELETE FROM records WHERE collection = ?`)
	_, err := repo.db.ExecContext(ctx, q, collection)
	return errors.Wrap(err, "deleting collection")
}

// CountRecords returns the number of records of `collection`.
func CountRecords(ctx context.Context, db core.DBExecutor, collection string) (int, error) {
	var n int
	err := db.GetContext(ctx, &n, db.Rebind(`SELECT COUNT(*) FROM records WHERE collection = ?`), collection)
	return n, errors.Wrap(err, "counting records")
}
