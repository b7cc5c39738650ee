// Package migrate contains the command to perform database migrations.
package migrate

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sheetql/sheetql/cmd"
	"github.com/sheetql/sheetql/cmd/util"
	"github.com/sheetql/sheetql/pkg/logger"
	storagemigrate "github.com/sheetql/sheetql/pkg/storage/migrate"
)

const (
	versionFlag          = "version"
	timeoutFlag          = "timeout"
	verboseMigrationFlag = "verbose"
)

func NewMigrateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Run database schema migrations needed for the sql datastores",
		Long: `The migrate command is used to migrate the database schema of the sqlite, postgres and mysql datastores.
The memory and sheets engines have no schema and nothing is done for them.`,
		RunE: runMigration,
		Args: cobra.NoArgs,
	}

	flags := command.Flags()
	cmd.AddConfigFlags(flags)

	flags.Uint(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")
	flags.Duration(timeoutFlag, 1*time.Minute, "a timeout for the time it takes the migrate process to connect to the database")
	flags.Bool(verboseMigrationFlag, false, "enable verbose migration logs (default false)")

	// NOTE: if you add a new flag here, update the function below, too

	bindConfigFlags := cmd.BindConfigFlagsFunc(flags)
	command.PreRun = func(command *cobra.Command, args []string) {
		bindConfigFlags(command, args)
		util.MustBindPFlag(versionFlag, flags.Lookup(versionFlag))
		util.MustBindEnv(versionFlag, "SHEETQL_VERSION")

		util.MustBindPFlag(timeoutFlag, flags.Lookup(timeoutFlag))
		util.MustBindEnv(timeoutFlag, "SHEETQL_TIMEOUT")

		util.MustBindPFlag(verboseMigrationFlag, flags.Lookup(verboseMigrationFlag))
		util.MustBindEnv(verboseMigrationFlag, "SHEETQL_VERBOSE")
	}

	return command
}

func runMigration(command *cobra.Command, _ []string) error {
	cfg, err := cmd.ReadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	err = storagemigrate.RunMigrations(command.Context(), storagemigrate.MigrationConfig{
		Engine:        cfg.Datastore.Engine,
		URI:           cfg.Datastore.URI,
		Username:      cfg.Datastore.Username,
		Password:      cfg.Datastore.Password,
		TargetVersion: viper.GetUint(versionFlag),
		Timeout:       viper.GetDuration(timeoutFlag),
		Verbose:       viper.GetBool(verboseMigrationFlag),
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("migrate %s datastore: %w", cfg.Datastore.Engine, err)
	}
	return nil
}
