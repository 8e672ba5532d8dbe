package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/recordbook/core"
	logsvc "github.com/trezcool/recordbook/services/logger"
	"github.com/trezcool/recordbook/storage/database"
	sqlxrepos "github.com/trezcool/recordbook/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:       db,
		repo:     sqlxrepos.NewRecordRepository(db),
		logger:   logger,
		out:      os.Stdout,
		schema:   conf.Records.Schema,
		pageSize: conf.Records.PageSize,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
