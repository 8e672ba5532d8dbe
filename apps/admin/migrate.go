package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/recordbook/storage/database"
)

var runMigrationFunc = database.RunMigration // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|up-by-one|up-to N|down|down-to N|redo|reset|status|version>",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			return runMigrationFunc(args[0], cli.db, args[1:]...)
		},
	}
}
