package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/storage/sqlcommon"
)

const duplicateEntry = 1062

// Datastore provides a MySQL based implementation of [storage.TabularStore].
type Datastore struct {
	*sqlcommon.Store
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
}

// Ensures that Datastore implements the TabularStore interface.
var _ storage.TabularStore = (*Datastore)(nil)

// PrepareDSN sets the credentials on the dsn and enables parseTime.
func PrepareDSN(uri, username, password string) (string, error) {
	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if username != "" {
		dsnCfg.User = username
	}
	if password != "" {
		dsnCfg.Passwd = password
	}
	dsnCfg.ParseTime = true

	return dsnCfg.FormatDSN(), nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	collector, err := sqlcommon.ConfigureDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	return &Datastore{
		Store:            sqlcommon.NewStore(db, sq.StatementBuilder, "mysql", HandleSQLError),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

// Close closes the datastore and cleans up any residual resources.
func (m *Datastore) Close() {
	if m.dbStatsCollector != nil {
		prometheus.Unregister(m.dbStatsCollector)
	}
	m.Store.Close()
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == duplicateEntry {
		return fmt.Errorf("%w: %w", storage.ErrCollision, err)
	}

	return sqlcommon.HandleSQLError(err)
}
