package main

import (
	"os"

	"github.com/sheetql/sheetql/cmd"
	"github.com/sheetql/sheetql/cmd/migrate"
	"github.com/sheetql/sheetql/cmd/query"
	"github.com/sheetql/sheetql/cmd/rows"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(query.NewQueryCommand())
	rootCmd.AddCommand(rows.NewInsertCommand())
	rootCmd.AddCommand(rows.NewUpdateCommand())
	rootCmd.AddCommand(rows.NewDeleteCommand())

	migrateCmd := migrate.NewMigrateCommand()
	rootCmd.AddCommand(migrateCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
