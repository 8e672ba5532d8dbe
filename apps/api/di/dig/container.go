package dig_container

import (
	"fmt"
	"log"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/recordbook/apps/api/echo"
	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
	logsvc "github.com/trezcool/recordbook/services/logger"
	metricsvc "github.com/trezcool/recordbook/services/metrics"
	"github.com/trezcool/recordbook/storage/database"
	inmemdb "github.com/trezcool/recordbook/storage/database/inmem"
	sqlxrepos "github.com/trezcool/recordbook/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBParam is nil unless records are kept in the database.
type DBParam struct {
	dig.In
	DB *sqlx.DB `optional:"true"`
}

type repositoryParam struct {
	dig.In
	Conf   *core.Config
	Logger core.Logger `name:"dbLogger"`
}

type repositoryResult struct {
	dig.Out
	Repo record.Repository
	DB   *sqlx.DB
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.New(os.Stdout, "API : ", log.LstdFlags, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)
}

// newRepository opens the database in durable mode, the in-memory one otherwise.
func newRepository(p repositoryParam) (repositoryResult, error) {
	if !p.Conf.Records.Durable() {
		mem, err := inmemdb.Open()
		if err != nil {
			return repositoryResult{}, err
		}
		return repositoryResult{Repo: inmemdb.NewRecordRepository(mem)}, nil
	}

	db, err := database.Setup(p.Conf)
	if err != nil {
		p.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		return repositoryResult{}, err
	}
	return repositoryResult{Repo: sqlxrepos.NewRecordRepository(db), DB: db}, nil
}

func newSchema(conf *core.Config) (record.Schema, error) {
	return record.LookupSchema(conf.Records.Schema)
}

func newValidator(validate *validator.Validate, translator ut.Translator) *record.Validator {
	core.InitValidators(validate, translator)
	return record.NewValidator(validate, translator)
}

func newRecordService(repo record.Repository, schema record.Schema, logger core.Logger, v *record.Validator) (*record.Service, error) {
	if err := v.ValidateSchema(schema); err != nil {
		return nil, errors.Wrap(err, "invalid schema")
	}
	return record.NewService(repo, schema, logger, v), nil
}

func newMetrics(conf *core.Config) *metricsvc.Metrics {
	return metricsvc.New(strings.ReplaceAll(core.CleanString(conf.AppName, true), " ", "_"))
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepository))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newSchema))
	must(c.Provide(newRecordService))
	must(c.Provide(newMetrics))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
