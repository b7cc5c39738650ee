// Package migrate applies the embedded goose migrations of the SQL backends.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/sheetql/sheetql/assets"
	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/storage/mysql"
	"github.com/sheetql/sheetql/pkg/storage/postgres"
	"github.com/sheetql/sheetql/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations
type MigrationConfig = storage.MigrationConfig

// ErrUnsupportedEngine is returned for engines without migrations.
var ErrUnsupportedEngine = errors.New("no migrations for datastore engine")

type engine struct {
	driver  string
	dialect goose.Dialect
	dir     string
	prepare func(cfg MigrationConfig) (string, error)
}

var engines = map[string]engine{
	"sqlite": {
		driver:  "sqlite",
		dialect: goose.DialectSQLite3,
		dir:     assets.SqliteMigrationDir,
		prepare: func(cfg MigrationConfig) (string, error) {
			return sqlite.PrepareDSN(cfg.URI)
		},
	},
	"postgres": {
		driver:  "pgx",
		dialect: goose.DialectPostgres,
		dir:     assets.PostgresMigrationDir,
		prepare: func(cfg MigrationConfig) (string, error) {
			return postgres.PrepareURI(cfg.URI, cfg.Username, cfg.Password)
		},
	},
	"mysql": {
		driver:  "mysql",
		dialect: goose.DialectMySQL,
		dir:     assets.MySQLMigrationDir,
		prepare: func(cfg MigrationConfig) (string, error) {
			return mysql.PrepareDSN(cfg.URI, cfg.Username, cfg.Password)
		},
	},
}

// Engines lists the engines RunMigrations accepts besides the schemaless ones.
func Engines() []string {
	return []string{"mysql", "postgres", "sqlite"}
}

// RunMigrations migrates the database described by cfg up to the latest
// version, or up or down to cfg.TargetVersion when set. The memory and
// sheets engines have no schema and are a no-op.
func RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	if cfg.Engine == "memory" || cfg.Engine == "sheets" {
		log.Info("no migrations to run", zap.String("engine", cfg.Engine))
		return nil
	}

	provider, closeDB, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get %s db version: %w", cfg.Engine, err)
	}
	log.Info("current schema version", zap.String("engine", cfg.Engine), zap.Int64("version", current))

	target := int64(cfg.TargetVersion)
	var results []*goose.MigrationResult
	switch {
	case target == 0:
		results, err = provider.Up(ctx)
	case target < current:
		results, err = provider.DownTo(ctx, target)
	case target > current:
		results, err = provider.UpTo(ctx, target)
	default:
		log.Info("nothing to do", zap.String("engine", cfg.Engine))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run %s migrations: %w", cfg.Engine, err)
	}

	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		log.Info("applied migration",
			zap.String("engine", cfg.Engine),
			zap.Int64("version", r.Source.Version),
			zap.String("direction", r.Direction),
			zap.Duration("duration", r.Duration),
		)
	}
	log.Info("migration done", zap.String("engine", cfg.Engine))
	return nil
}

// CurrentVersion returns the schema version of the database.
func CurrentVersion(ctx context.Context, cfg MigrationConfig) (int64, error) {
	provider, closeDB, err := open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer closeDB()

	return provider.GetDBVersion(ctx)
}

func open(ctx context.Context, cfg MigrationConfig) (*goose.Provider, func(), error) {
	e, ok := engines[cfg.Engine]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, cfg.Engine)
	}

	uri, err := e.prepare(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := goose.OpenDBWithDriver(e.driver, uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s connection: %w", cfg.Engine, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}

	// Test connection with backoff
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize %s connection: %w", cfg.Engine, err)
	}

	migrations, err := fs.Sub(assets.EmbedMigrations, e.dir)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	provider, err := goose.NewProvider(e.dialect, db, migrations, goose.WithVerbose(cfg.Verbose))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create goose provider: %w", err)
	}

	return provider, func() { db.Close() }, nil
}
