// Package cmd contains the root command and the pieces shared by the sheetql subcommands.
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sheetql/sheetql/pkg/config"
)

const (
	datastoreEngineFlag = "datastore-engine"
	datastoreEngineConf = "datastore.engine"
	datastoreURIFlag    = "datastore-uri"
	datastoreURIConf    = "datastore.uri"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with SHEETQL, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("SHEETQL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/sheetql", "$HOME/.sheetql", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "sheetql",
		Short: "Query spreadsheet-backed collections like database tables",
		Long: `Query spreadsheet-backed collections like database tables.

sheetql treats every sheet of a spreadsheet as a table whose first row is the header,
and lets you filter, sort, paginate and eager-load related collections from the command line.
The same datastore interface is also served by memory, sqlite, postgres and mysql engines.`,
		SilenceUsage: true,
	}
}

// ReadConfig returns the sheetql configuration based on the values provided in 'config.yaml',
// the environment and the bound flags. The 'config.yaml' file is loaded from '/etc/sheetql',
// '$HOME/.sheetql', or the current working directory. If no configuration file is present,
// the default values are returned.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	return cfg, nil
}
