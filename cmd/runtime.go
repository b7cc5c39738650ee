package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/sheetql/sheetql/internal/build"
	"github.com/sheetql/sheetql/internal/directory"
	"github.com/sheetql/sheetql/pkg/config"
	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/relation"
	"github.com/sheetql/sheetql/pkg/repository"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/storage/memory"
	"github.com/sheetql/sheetql/pkg/storage/mysql"
	"github.com/sheetql/sheetql/pkg/storage/postgres"
	"github.com/sheetql/sheetql/pkg/storage/sheets"
	"github.com/sheetql/sheetql/pkg/storage/sqlcommon"
	"github.com/sheetql/sheetql/pkg/storage/sqlite"
	"github.com/sheetql/sheetql/pkg/storage/storagewrappers"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

const readinessTimeout = 10 * time.Second

// Runtime holds what a command needs to work against the configured datastore.
type Runtime struct {
	Config   *config.Config
	Logger   logger.Logger
	Store    storage.TabularStore
	Registry *relation.Registry

	readPolicy      repository.ReadPolicy
	locks           *repository.WriteLocks
	shutdownTracing func() error
}

// NewRuntime builds the logger, tracer, entity registry and datastore described by cfg.
// The caller must call Close.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	policy, err := repository.ParseReadPolicy(cfg.Query.ReadPolicy)
	if err != nil {
		return nil, err
	}

	registry, err := LoadRegistry(cfg.Query.Schema)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     log,
		Registry:   registry,
		readPolicy: policy,
		locks:      repository.NewWriteLocks(),
	}
	rt.shutdownTracing = rt.telemetryConfig()

	store, err := NewDatastore(cfg, log)
	if err != nil {
		_ = rt.shutdownTracing()
		return nil, err
	}
	rt.Store = store

	return rt, nil
}

// Repository returns a repository of entity over the runtime datastore.
func (rt *Runtime) Repository(entity string) (*repository.Repository, error) {
	return repository.New(rt.Store, rt.Registry, entity,
		repository.WithLogger(rt.Logger),
		repository.WithReadPolicy(rt.readPolicy),
		repository.WithWriteLocks(rt.locks),
	)
}

// Close releases the datastore and flushes pending spans.
func (rt *Runtime) Close() {
	if rt.Config.Metrics.Enabled {
		rt.logMetrics()
	}
	if rt.Store != nil {
		rt.Store.Close()
	}
	if err := rt.shutdownTracing(); err != nil {
		rt.Logger.Warn("failed to shut down tracing", zap.Error(err))
	}
}

// telemetryConfig returns the function that must be called to shut down tracing.
func (rt *Runtime) telemetryConfig() func() error {
	cfg := rt.Config.Trace
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func() error { return nil }
	}

	rt.Logger.Info(fmt.Sprintf("tracing enabled: sampling ratio is %v and sending traces to '%s'", cfg.SampleRatio, cfg.OTLP.Endpoint))

	tp, err := telemetry.NewTracerProvider(
		telemetry.WithOTLPEndpoint(cfg.OTLP.Endpoint),
		telemetry.WithServiceName(cfg.ServiceName),
		telemetry.WithSamplingRatio(cfg.SampleRatio),
	)
	if err != nil {
		rt.Logger.Warn("tracing disabled", zap.Error(err))
		return func() error { return nil }
	}

	return func() error {
		// the batch span processor may take up to 5 seconds to flush
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		return telemetry.Shutdown(ctx, tp)
	}
}

// logMetrics reports the datastore metrics gathered during the command.
func (rt *Runtime) logMetrics() {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		rt.Logger.Warn("failed to gather metrics", zap.Error(err))
		return
	}

	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), build.ProjectName+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName())}
			for _, label := range m.GetLabel() {
				fields = append(fields, zap.String(label.GetName(), label.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				fields = append(fields,
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum", m.GetHistogram().GetSampleSum()),
				)
			case m.GetGauge() != nil:
				fields = append(fields, zap.Float64("value", m.GetGauge().GetValue()))
			}
			rt.Logger.Debug("datastore metric", fields...)
		}
	}
}

// LoadRegistry reads the entity schema at path, or returns the built-in directory when path is empty.
func LoadRegistry(path string) (*relation.Registry, error) {
	if path == "" {
		return directory.Registry(), nil
	}

	registry, err := relation.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load entity schema: %w", err)
	}
	return registry, nil
}

// NewDatastore opens the datastore of cfg.Datastore.Engine and applies the configured wrappers.
func NewDatastore(cfg *config.Config, log logger.Logger) (storage.TabularStore, error) {
	datastoreOptions := []sqlcommon.DatastoreOption{
		sqlcommon.WithUsername(cfg.Datastore.Username),
		sqlcommon.WithPassword(cfg.Datastore.Password),
		sqlcommon.WithLogger(log),
		sqlcommon.WithMaxOpenConns(cfg.Datastore.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(cfg.Datastore.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(cfg.Datastore.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(cfg.Datastore.ConnMaxLifetime),
	}

	if cfg.Datastore.Metrics.Enabled {
		datastoreOptions = append(datastoreOptions, sqlcommon.WithMetrics())
	}

	dsCfg := sqlcommon.NewConfig(datastoreOptions...)

	var datastore storage.TabularStore
	var err error
	switch cfg.Datastore.Engine {
	case "memory":
		datastore, err = newMemoryDatastore(cfg.Datastore.URI)
		if err != nil {
			return nil, fmt.Errorf("initialize memory datastore: %w", err)
		}
	case "sheets":
		datastore, err = newSheetsDatastore(cfg.Sheets, log)
		if err != nil {
			return nil, fmt.Errorf("initialize sheets datastore: %w", err)
		}
	case "mysql":
		datastore, err = mysql.New(cfg.Datastore.URI, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize mysql datastore: %w", err)
		}
	case "postgres":
		datastore, err = postgres.New(cfg.Datastore.URI, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres datastore: %w", err)
		}
	case "sqlite":
		datastore, err = sqlite.New(cfg.Datastore.URI, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite datastore: %w", err)
		}
	default:
		return nil, fmt.Errorf("storage engine '%s' is unsupported", cfg.Datastore.Engine)
	}

	log.Debug(fmt.Sprintf("using '%v' storage engine", cfg.Datastore.Engine))

	if err := checkReadiness(datastore); err != nil {
		datastore.Close()
		return nil, fmt.Errorf("%s datastore: %w", cfg.Datastore.Engine, err)
	}

	if cfg.Metrics.Enabled {
		datastore = storagewrappers.NewMetricsStore(datastore)
	}
	if cfg.Datastore.MaxConcurrentCalls > 0 {
		datastore = storagewrappers.NewBoundedConcurrencyStore(datastore, cfg.Datastore.MaxConcurrentCalls)
	}

	return datastore, nil
}

// readinessChecker is implemented by the backends that can report whether they can serve requests.
type readinessChecker interface {
	IsReady(ctx context.Context) (storage.ReadinessStatus, error)
}

// ErrDatastoreNotReady is returned when the datastore reports it cannot serve requests yet.
var ErrDatastoreNotReady = errors.New("datastore is not ready")

func checkReadiness(datastore storage.TabularStore) error {
	checker, ok := datastore.(readinessChecker)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	status, err := checker.IsReady(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatastoreNotReady, err)
	}
	if !status.IsReady {
		return fmt.Errorf("%w: %s", ErrDatastoreNotReady, status.Message)
	}
	return nil
}

// newMemoryDatastore seeds a memory datastore from the fixture file at path, if any. The
// fixture maps each collection to its rows, header first:
//
//	users:
//	  - [id, name]
//	  - [u1, Ann]
func newMemoryDatastore(path string) (*memory.MemoryBackend, error) {
	if path == "" {
		return memory.New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fixture map[string][][]any
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	opts := make([]memory.StorageOption, 0, len(fixture))
	for collection, rows := range fixture {
		table := &storage.Table{}
		for i, row := range rows {
			if i == 0 {
				table.Headers = fixtureCells(row)
				continue
			}
			table.Rows = append(table.Rows, fixtureCells(row))
		}
		opts = append(opts, memory.WithTable(collection, table))
	}
	return memory.New(opts...), nil
}

// fixtureCells turns scalar YAML values into cells. Null is the empty cell.
func fixtureCells(row []any) []string {
	cells := make([]string, len(row))
	for i, v := range row {
		if v != nil {
			cells[i] = fmt.Sprint(v)
		}
	}
	return cells
}

func newSheetsDatastore(cfg config.SheetsConfig, log logger.Logger) (*sheets.Datastore, error) {
	tokens, err := newTokenSource(cfg)
	if err != nil {
		return nil, err
	}

	return sheets.New(sheets.NewConfig(cfg.SpreadsheetID,
		sheets.WithBaseURL(cfg.BaseURL),
		sheets.WithTimeout(cfg.Timeout),
		sheets.WithRetryMax(cfg.RetryMax),
		sheets.WithLogger(log),
		sheets.WithTokenSource(tokens),
	))
}

// ErrMissingCredentials is returned when the sheets engine has no service account key.
var ErrMissingCredentials = errors.New("one of 'sheets.credentialsFile' or 'sheets.credentialsJson' must be set")

func newTokenSource(cfg config.SheetsConfig) (sheets.TokenSource, error) {
	var (
		creds *sheets.Credentials
		err   error
	)
	switch {
	case cfg.CredentialsFile != "":
		creds, err = sheets.LoadCredentials(cfg.CredentialsFile)
	case cfg.CredentialsJSON != "":
		creds, err = sheets.ParseCredentials([]byte(cfg.CredentialsJSON))
	default:
		return nil, ErrMissingCredentials
	}
	if err != nil {
		return nil, err
	}

	return sheets.NewServiceAccountTokenSource(creds, sheets.WithTokenURL(cfg.TokenURL))
}
