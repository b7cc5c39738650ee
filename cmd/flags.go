package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sheetql/sheetql/cmd/util"
	"github.com/sheetql/sheetql/pkg/config"
)

// configFlag ties a CLI flag to its config key.
type configFlag struct {
	flag string
	key  string
}

var configFlags = []configFlag{
	{datastoreEngineFlag, datastoreEngineConf},
	{datastoreURIFlag, datastoreURIConf},
	{"datastore-username", "datastore.username"},
	{"datastore-password", "datastore.password"},
	{"datastore-max-open-conns", "datastore.maxOpenConns"},
	{"datastore-max-idle-conns", "datastore.maxIdleConns"},
	{"datastore-conn-max-idle-time", "datastore.connMaxIdleTime"},
	{"datastore-conn-max-lifetime", "datastore.connMaxLifetime"},
	{"datastore-max-concurrent-calls", "datastore.maxConcurrentCalls"},
	{"datastore-metrics-enabled", "datastore.metrics.enabled"},
	{"sheets-spreadsheet-id", "sheets.spreadsheetId"},
	{"sheets-base-url", "sheets.baseUrl"},
	{"sheets-token-url", "sheets.tokenUrl"},
	{"sheets-credentials-file", "sheets.credentialsFile"},
	{"sheets-credentials-json", "sheets.credentialsJson"},
	{"sheets-timeout", "sheets.timeout"},
	{"sheets-retry-max", "sheets.retryMax"},
	{"log-format", "log.format"},
	{"log-level", "log.level"},
	{"trace-enabled", "trace.enabled"},
	{"trace-otlp-endpoint", "trace.otlp.endpoint"},
	{"trace-sample-ratio", "trace.sampleRatio"},
	{"trace-service-name", "trace.serviceName"},
	{"metrics-enabled", "metrics.enabled"},
	{"read-policy", "query.readPolicy"},
	{"schema", "query.schema"},
}

// AddConfigFlags registers the flags of every command that opens a datastore.
func AddConfigFlags(flags *pflag.FlagSet) {
	defaultConfig := config.DefaultConfig()

	flags.String(datastoreEngineFlag, defaultConfig.Datastore.Engine, "the datastore engine that will be used for persistence (memory, sheets, sqlite, postgres, mysql)")
	flags.String(datastoreURIFlag, defaultConfig.Datastore.URI, "the connection uri to use to connect to the datastore (for the sql engines)")
	flags.String("datastore-username", "", "the connection username to use to connect to the datastore (overwrites any username provided in the connection uri)")
	flags.String("datastore-password", "", "the connection password to use to connect to the datastore (overwrites any password provided in the connection uri)")
	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")
	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")
	flags.Duration("datastore-conn-max-idle-time", defaultConfig.Datastore.ConnMaxIdleTime, "the maximum amount of time a connection to the datastore may be idle")
	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")
	flags.Uint32("datastore-max-concurrent-calls", defaultConfig.Datastore.MaxConcurrentCalls, "the maximum number of datastore calls in flight (0 for no bound)")
	flags.Bool("datastore-metrics-enabled", defaultConfig.Datastore.Metrics.Enabled, "enable/disable sql connection pool metrics")

	flags.String("sheets-spreadsheet-id", defaultConfig.Sheets.SpreadsheetID, "the id of the spreadsheet holding the collections (sheets engine)")
	flags.String("sheets-base-url", defaultConfig.Sheets.BaseURL, "the root url of the spreadsheet values api")
	flags.String("sheets-token-url", defaultConfig.Sheets.TokenURL, "overrides the oauth2 token endpoint named by the service account key")
	flags.String("sheets-credentials-file", defaultConfig.Sheets.CredentialsFile, "the path of a service account key file")
	flags.String("sheets-credentials-json", defaultConfig.Sheets.CredentialsJSON, "the content of a service account key (used when no file is given)")
	flags.Duration("sheets-timeout", defaultConfig.Sheets.Timeout, "the timeout of a single spreadsheet api request")
	flags.Int("sheets-retry-max", defaultConfig.Sheets.RetryMax, "the number of retries of a failed spreadsheet api request")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable datastore operation metrics")

	flags.String("read-policy", defaultConfig.Query.ReadPolicy, "what a failed read turns into: 'degrade' (log and return no rows) or 'strict' (fail)")
	flags.String("schema", defaultConfig.Query.Schema, "the path of a YAML entity schema (the built-in directory is used if omitted)")
}

// BindConfigFlagsFunc binds the flags registered by AddConfigFlags to the equivalent config
// value being managed by viper, together with their SHEETQL_ environment variables.
// This bridges the config between cobra flags and viper flags.
func BindConfigFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		for _, f := range configFlags {
			util.MustBindPFlag(f.key, flags.Lookup(f.flag))
			util.MustBindEnv(f.key, envName(f.flag), envName(f.key))
		}
	}
}

func envName(key string) string {
	return "SHEETQL_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}
