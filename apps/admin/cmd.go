package main

import (
	"errors"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sqlx.DB
	repo   record.Repository
	logger core.Logger
	out    io.Writer

	// defaults of the persistent flags
	schema   string
	pageSize int
}

// rootCmd builds a fresh command tree so flag values never leak between runs.
func (cli *commandLine) rootCmd() *cobra.Command {
	var opts recordOptions

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Recordbook administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.PersistentFlags().StringVar(&opts.collection, "collection", record.DefaultCollection, "record collection (session) to work on")
	root.PersistentFlags().StringVar(&opts.schema, "schema", cli.schema, "record schema: contact, todo or player")

	root.AddCommand(cli.migrateCmd())
	root.AddCommand(cli.recordsCmd(&opts))
	return root
}

// run executes `args` (program name included).
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}
