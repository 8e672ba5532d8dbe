package database

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/recordbook/core"
)

func sqliteConf() *core.Config {
	conf := &core.Config{}
	conf.Database.Engine = EngineSQLite
	conf.Database.Path = ":memory:"
	return conf
}

func TestSetup_SQLite(t *testing.T) {
	db, err := Setup(sqliteConf())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM records`))
	assert.Equal(t, 0, n)

	// up is idempotent
	assert.NoError(t, Migrate(db))

	require.NoError(t, RunMigration("reset", db))
	_, err = db.Exec(`SELECT COUNT(*) FROM records`)
	assert.Error(t, err, "table dropped")
}

func TestOpen_UnknownEngine(t *testing.T) {
	conf := sqliteConf()
	conf.Database.Engine = "oracle"
	_, err := Open(conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database engine")
}

func TestCreateIfNotExist_SQLite(t *testing.T) {
	assert.NoError(t, CreateIfNotExist(sqliteConf()), "nothing to create")
}

func TestGooseDialect(t *testing.T) {
	tests := []struct {
		engine  string
		want    string
		wantErr bool
	}{
		{engine: EnginePostgres, want: "postgres"},
		{engine: EngineSQLite, want: "sqlite3"},
		{engine: "mysql", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			got, err := gooseDialect(tt.engine)
			if (err != nil) != tt.wantErr {
				t.Fatalf("gooseDialect() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunMigration_Args(t *testing.T) {
	db, err := Open(sqliteConf())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var gotCmd, gotDir string
	var gotArgs []string
	gooseRunFunc = func(command string, _ *sql.DB, dir string, args ...string) error {
		gotCmd, gotDir, gotArgs = command, dir, args
		return nil
	}
	defer func() { gooseRunFunc = gooseRunDefault }()

	require.NoError(t, RunMigration("up-to", db, "1"))
	assert.Equal(t, "up-to", gotCmd)
	assert.Equal(t, migrationsDir, gotDir)
	assert.Equal(t, []string{"1"}, gotArgs)
}
