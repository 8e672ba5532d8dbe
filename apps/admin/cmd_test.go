package main

import (
	"bytes"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/recordbook/core/record"
	logsvc "github.com/trezcool/recordbook/services/logger"
	"github.com/trezcool/recordbook/storage/database"
	sqlxrepos "github.com/trezcool/recordbook/storage/database/sqlx"
	"github.com/trezcool/recordbook/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	conf := testutil.NewConfig()
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		db:       db,
		repo:     sqlxrepos.NewRecordRepository(db),
		logger:   logsvc.New(new(bytes.Buffer), "TEST : ", log.LstdFlags, conf),
		out:      out,
		schema:   record.ContactSchema.Name,
		pageSize: 10,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, want an error")
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	runMigrationFunc = func(command string, _ *sqlx.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}
	defer func() { runMigrationFunc = database.RunMigration }()

	runCLITests(t, cli, []cliTest{
		{name: "no command", args: []string{}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	})
}

func Test_commandLine_migrate_real(t *testing.T) {
	cli, _ := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "status", args: []string{"migrate", "status"}},
		{name: "down-to 0", args: []string{"migrate", "down-to", "0"}},
		{name: "up", args: []string{"migrate", "up"}},
	})

	n, err := sqlxrepos.CountRecords(testutil.Background(t), cli.db, record.DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func Test_commandLine_records(t *testing.T) {
	cli, out := setup(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	testutil.CreateRecord(t, cli.repo, record.DefaultCollection, 1714557600000, record.Fields{"firstName": "Ann", "lastName": "Ash", "mobile": "111"}, t0)
	testutil.CreateRecord(t, cli.repo, record.DefaultCollection, 1714557601000, record.Fields{"firstName": "Bob", "lastName": "Bay", "mobile": "222"}, t0.Add(time.Second))
	testutil.CreateRecord(t, cli.repo, "other", 1714557602000, record.Fields{"firstName": "Cid", "lastName": "Cox", "mobile": "333"}, t0)

	runCLITests(t, cli, []cliTest{
		{name: "records help", args: []string{"records"}, wantErr: errHelp},
	})
	assert.Contains(t, out.String(), "toggle-completed")
	out.Reset()

	runCLITests(t, cli, []cliTest{
		{name: "toggle visible", args: []string{"records", "toggle-visible", "1714557600000"}},
		{name: "toggle completed", args: []string{"records", "toggle-completed", "1714557601000"}},
		{name: "toggle unknown", args: []string{"records", "toggle-completed", "42"}},
		{name: "rm unknown", args: []string{"records", "rm", "42"}},
		{name: "rm bad id", args: []string{"records", "rm", "lol"}, wantErrStr: `invalid id "lol"`},
		{name: "list", args: []string{"records", "list"}},
		{name: "list other", args: []string{"records", "list", "--collection", "other", "--per-page", "1"}},
		{name: "unknown schema", args: []string{"records", "list", "--schema", "lol"}, wantErrStr: `unknown schema "lol"`},
	})

	testutil.Golden(t, "records", out.Bytes())
}

func Test_commandLine_recordsAdd(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no fields", args: []string{"records", "add"}, wantErrStr: "requires at least 1 arg(s), only received 0"},
		{name: "bad field", args: []string{"records", "add", "firstName"}, wantErrStr: `invalid field "firstName", expected key=value`},
		{name: "invalid", args: []string{"records", "add", "firstName=Ann", "mobile=  "}, wantErr: errInvalidRecord},
	})
	assert.Contains(t, out.String(), "  lastName: this field is required\n")
	assert.Contains(t, out.String(), "  mobile: this field is required\n")

	out.Reset()
	runCLITests(t, cli, []cliTest{
		{name: "valid", args: []string{"records", "add", "firstName= Ann ", "lastName=Ash", "mobile=111"}},
		{name: "todo", args: []string{"records", "add", "--schema", "todo", "--collection", "todos", "text=Buy milk"}},
	})
	assert.Contains(t, out.String(), "added record ")

	recs, err := cli.repo.QueryRecords(testutil.Background(t), record.DefaultCollection)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, record.Fields{"firstName": "Ann", "lastName": "Ash", "mobile": "111"}, recs[0].Fields)

	recs, err = cli.repo.QueryRecords(testutil.Background(t), "todos")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Buy milk", recs[0].Fields["text"])

	out.Reset()
	id := strconv.FormatInt(recs[0].ID, 10)
	runCLITests(t, cli, []cliTest{
		{name: "rm", args: []string{"records", "rm", "--collection", "todos", "--schema", "todo", id}},
	})
	assert.Equal(t, "deleted record "+id+"\n", out.String())
}

func Test_commandLine_exportImport(t *testing.T) {
	cli, out := setup(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := testutil.CreateRecord(t, cli.repo, record.DefaultCollection, 1, record.Fields{"firstName": "Ann", "lastName": "Ash", "mobile": "111"}, t0)
	b := testutil.CreateRecord(t, cli.repo, record.DefaultCollection, 2, record.Fields{"firstName": "Bob", "lastName": "Bay", "mobile": "222"}, t0)

	file := filepath.Join(t.TempDir(), "export.yaml")
	runCLITests(t, cli, []cliTest{
		{name: "export", args: []string{"records", "export", "-o", file}},
		{name: "import", args: []string{"records", "import", "--collection", "copy", file}},
		{name: "import again", args: []string{"records", "import", "--collection", "copy", file}},
		{name: "wrong schema", args: []string{"records", "import", "--schema", "todo", file}, wantErrStr: `import file holds "contact" records, not "todo"`},
	})
	assert.Equal(t, "imported 2 records, skipped 0\nimported 0 records, skipped 2\n", out.String())

	recs, err := cli.repo.QueryRecords(testutil.Background(t), "copy")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{b, a}, recs)
}
