package inmemdb

import (
	"sync"

	"github.com/trezcool/recordbook/core/record"
)

type (
	DB struct {
		record *recordTable
	}

	// recordTable holds records by collection, then by id.
	recordTable struct {
		sync.RWMutex
		table map[string]map[int64]*record.Record
	}
)

func Open() (*DB, error) {
	db := &DB{
		record: &recordTable{table: make(map[string]map[int64]*record.Record)},
	}
	return db, nil
}
