package sheets

import (
	"time"

	"github.com/sheetql/sheetql/pkg/logger"
)

const (
	// DefaultBaseURL is the root of the spreadsheet values API.
	DefaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
	// DefaultTokenURL is used when the credentials carry no token_uri.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// Scope grants read and write access to spreadsheets.
	Scope = "https://www.googleapis.com/auth/spreadsheets"

	// DefaultTimeout bounds one HTTP attempt.
	DefaultTimeout  = 30 * time.Second
	DefaultRetryMax = 4

	defaultRetryWaitMin = 100 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

// Config defines the configuration parameters for talking to one spreadsheet.
type Config struct {
	SpreadsheetID string
	BaseURL       string

	// Timeout bounds a single HTTP attempt, retries excluded.
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger      logger.Logger
	TokenSource TokenSource
}

// DatastoreOption defines a function type used for configuring a Config object.
type DatastoreOption func(*Config)

// WithBaseURL points the client at another values API root, such as a local emulator.
func WithBaseURL(u string) DatastoreOption {
	return func(cfg *Config) {
		cfg.BaseURL = u
	}
}

// WithTimeout returns a DatastoreOption that sets the per-attempt timeout.
func WithTimeout(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.Timeout = d
	}
}

// WithRetryMax returns a DatastoreOption that sets how many times a failed request is retried.
func WithRetryMax(n int) DatastoreOption {
	return func(cfg *Config) {
		cfg.RetryMax = n
	}
}

// WithRetryWait returns a DatastoreOption that bounds the wait between retries.
func WithRetryWait(waitMin, waitMax time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.RetryWaitMin = waitMin
		cfg.RetryWaitMax = waitMax
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithTokenSource returns a DatastoreOption that sets where bearer tokens come from.
// Without one, requests are sent unauthenticated.
func WithTokenSource(ts TokenSource) DatastoreOption {
	return func(cfg *Config) {
		cfg.TokenSource = ts
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(spreadsheetID string, opts ...DatastoreOption) *Config {
	cfg := &Config{
		SpreadsheetID: spreadsheetID,
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		RetryMax:      DefaultRetryMax,
		RetryWaitMin:  defaultRetryWaitMin,
		RetryWaitMax:  defaultRetryWaitMax,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	return cfg
}
