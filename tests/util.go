package testutil

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
	"github.com/trezcool/recordbook/storage/database"
)

var update = flag.Bool("update", false, "update golden files")

// NewConfig returns a test config on an in-memory sqlite database.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = ":memory:"
	conf.Server.DisableReqLogs = true
	return conf
}

// PrepareDB opens and migrates an in-memory sqlite database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Setup(NewConfig())
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateRecord(
	t *testing.T,
	repo record.Repository,
	collection string,
	id int64,
	fields record.Fields,
	createdAt ...time.Time,
) record.Record {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Second)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	rec := record.Record{
		ID:        id,
		Fields:    fields,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := repo.CreateRecord(context.Background(), collection, rec); err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}

// Golden compares `got` with testdata/<name>.golden, rewriting the file when run with -update.
func Golden(t *testing.T, name string, got []byte) {
	t.Helper()
	path := filepath.Join("testdata", name+".golden")
	if *update {
		if err := os.MkdirAll("testdata", 0o755); err != nil {
			t.Fatalf("Golden() failed: %v", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			t.Fatalf("Golden() failed: %v", err)
		}
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Golden() failed: %v", err)
	}
	if string(want) == string(got) {
		return
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(want)),
		B:        difflib.SplitLines(string(got)),
		FromFile: path,
		ToFile:   "got",
		Context:  2,
	})
	t.Errorf("%s mismatch:\n%s", name, strings.TrimSpace(diff))
}

// Background returns a context cancelled at the end of the test.
func Background(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
