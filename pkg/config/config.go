// Package config contains all knobs and defaults used to configure the sheetql CLI and library.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sheetql/sheetql/pkg/repository"
	"github.com/sheetql/sheetql/pkg/storage/sheets"
)

const (
	DefaultMaxOpenConns = 30
	DefaultMaxIdleConns = 10

	DefaultSheetsTimeout  = sheets.DefaultTimeout
	DefaultSheetsRetryMax = sheets.DefaultRetryMax

	DefaultTraceEndpoint    = "0.0.0.0:4317"
	DefaultTraceSampleRatio = 0.2
	DefaultServiceName      = "sheetql"
)

// Engines lists the supported datastore engines.
var Engines = []string{"memory", "sheets", "sqlite", "postgres", "mysql"}

var logLevels = []string{"none", "debug", "info", "warn", "error", "panic", "fatal"}

// DatastoreMetricsConfig defines configuration for datastore metrics.
type DatastoreMetricsConfig struct {
	// Enabled enables export of the Datastore metrics.
	Enabled bool
}

// DatastoreConfig defines configurations specific to the datastore.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'memory', 'sheets', 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string `json:"-"` // private field, won't be logged
	Username string
	Password string `json:"-"` // private field, won't be logged

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// MaxConcurrentCalls bounds the in-flight calls to the datastore. 0 disables the bound.
	MaxConcurrentCalls uint32

	// Metrics is configuration for the Datastore metrics.
	Metrics DatastoreMetricsConfig
}

// SheetsConfig configures the spreadsheet-values backend.
type SheetsConfig struct {
	SpreadsheetID string
	BaseURL       string

	// TokenURL overrides the token endpoint named by the credentials.
	TokenURL string

	// CredentialsFile is the path of a service account key file.
	CredentialsFile string
	// CredentialsJSON is the content of a service account key, used when CredentialsFile is empty.
	CredentialsJSON string `json:"-"`

	Timeout  time.Duration
	RetryMax int
}

// LogConfig defines sheetql's logging configuration.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

type OTLPTraceConfig struct {
	Endpoint string
}

// TraceConfig defines sheetql's tracing configuration.
type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

// MetricConfig defines configurations for exporting sheetql metrics.
type MetricConfig struct {
	Enabled bool
}

// QueryConfig defines how queries read from the datastore.
type QueryConfig struct {
	// ReadPolicy is one of 'degrade' or 'strict'.
	ReadPolicy string

	// Schema is the path of a YAML entity registry. The built-in directory is used when empty.
	Schema string
}

type Config struct {
	Datastore DatastoreConfig
	Sheets    SheetsConfig
	Log       LogConfig
	Trace     TraceConfig
	Metrics   MetricConfig
	Query     QueryConfig
}

// Verify checks the values of cfg and returns the first problem found.
func (cfg *Config) Verify() error {
	if !slices.Contains(Engines, cfg.Datastore.Engine) {
		return fmt.Errorf(
			"config 'datastore.engine' must be one of ['memory', 'sheets', 'sqlite', 'postgres', 'mysql'], got %q",
			cfg.Datastore.Engine,
		)
	}

	switch cfg.Datastore.Engine {
	case "sheets":
		if cfg.Sheets.SpreadsheetID == "" {
			return errors.New("config 'sheets.spreadsheetId' must be set for the sheets engine")
		}
	case "sqlite", "postgres", "mysql":
		if cfg.Datastore.URI == "" {
			return fmt.Errorf("config 'datastore.uri' must be set for the %s engine", cfg.Datastore.Engine)
		}
	}

	if cfg.Datastore.MaxOpenConns < 0 || cfg.Datastore.MaxIdleConns < 0 {
		return errors.New("config 'datastore.maxOpenConns' and 'datastore.maxIdleConns' must be non-negative")
	}

	if cfg.Sheets.Timeout < 0 {
		return errors.New("config 'sheets.timeout' must be non-negative")
	}

	if cfg.Sheets.RetryMax < 0 {
		return errors.New("config 'sheets.retryMax' must be non-negative")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if !slices.Contains(logLevels, cfg.Log.Level) {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
		return errors.New("config 'trace.sampleRatio' must be between 0 and 1")
	}

	if _, err := repository.ParseReadPolicy(cfg.Query.ReadPolicy); err != nil {
		return fmt.Errorf("config 'query.readPolicy' must be one of ['degrade', 'strict']")
	}

	return nil
}

// DefaultConfig is the sheetql default configuration.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:       "memory",
			MaxIdleConns: DefaultMaxIdleConns,
			MaxOpenConns: DefaultMaxOpenConns,
		},
		Sheets: SheetsConfig{
			BaseURL:  sheets.DefaultBaseURL,
			Timeout:  DefaultSheetsTimeout,
			RetryMax: DefaultSheetsRetryMax,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: DefaultTraceEndpoint,
			},
			SampleRatio: DefaultTraceSampleRatio,
			ServiceName: DefaultServiceName,
		},
		Metrics: MetricConfig{
			Enabled: false,
		},
		Query: QueryConfig{
			ReadPolicy: string(repository.ReadPolicyDegrade),
		},
	}
}

// MustDefaultConfig returns a default configuration that has passed Verify.
func MustDefaultConfig() *Config {
	cfg := DefaultConfig()
	if err := cfg.Verify(); err != nil {
		panic(err)
	}
	return cfg
}
