// Package sqlcommon holds the SQL implementation of storage.TabularStore
// shared by the sqlite, postgres and mysql backends.
//
// A collection is one row of the collections table holding the header as a
// JSON array; its data rows live in collection_rows keyed by a contiguous
// 0-based row_index, cells also stored as a JSON array.
package sqlcommon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

var tracer = otel.Tracer("sheetql/pkg/storage/sqlcommon")

const (
	collectionsTable = "collections"
	rowsTable        = "collection_rows"

	// insertBatchSize bounds the rows of one INSERT so statements stay below
	// the placeholder limits of every engine.
	insertBatchSize = 500
)

// ErrorHandlerFn maps a driver error onto the storage sentinel errors.
type ErrorHandlerFn func(error) error

// RetryFn runs fn, retrying it on transient errors.
type RetryFn func(fn func() error) error

func noRetry(fn func() error) error { return fn() }

// Store implements [storage.TabularStore] on top of a database/sql handle.
type Store struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	handleSQLError ErrorHandlerFn
	retry          RetryFn
	engine         string
}

var _ storage.TabularStore = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetry wraps every write transaction of the store in fn.
func WithRetry(fn RetryFn) StoreOption {
	return func(s *Store) {
		s.retry = fn
	}
}

// NewStore builds a Store. engine names the goose dialect and prefixes span
// names; stbl must already carry the engine's placeholder format.
func NewStore(db *sql.DB, stbl sq.StatementBuilderType, engine string, errorHandler ErrorHandlerFn, opts ...StoreOption) *Store {
	if err := goose.SetDialect(engine); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	s := &Store{
		db:             db,
		stbl:           stbl.RunWith(db),
		handleSQLError: errorHandler,
		retry:          noRetry,
		engine:         engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) startTrace(ctx context.Context, name, collection string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, s.engine+"."+name)
	span.SetAttributes(attribute.String("collection", collection))
	return ctx, span
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// IsReady see [IsReady].
func (s *Store) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	return IsReady(ctx, s.db)
}

// Close closes the database handle.
func (s *Store) Close() {
	s.db.Close()
}

// CreateCollection registers an empty collection if it does not exist yet.
func (s *Store) CreateCollection(ctx context.Context, collection string) error {
	ctx, span := s.startTrace(ctx, "CreateCollection", collection)
	defer span.End()

	return s.inTx(ctx, span, func(stbl sq.StatementBuilderType) error {
		_, err := readHeaders(ctx, stbl, collection)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrCollectionNotFound) {
			return err
		}
		return insertCollection(ctx, stbl, collection, []string{})
	})
}

// FetchRows see [storage.TabularStore].FetchRows.
func (s *Store) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	ctx, span := s.startTrace(ctx, "FetchRows", collection)
	defer span.End()

	headers, err := readHeaders(ctx, s.stbl, collection)
	if err != nil {
		return nil, s.traced(span, err)
	}

	rows, err := s.stbl.
		Select("cells").
		From(rowsTable).
		Where(sq.Eq{"collection": collection}).
		OrderBy("row_index").
		QueryContext(ctx)
	if err != nil {
		return nil, s.traced(span, s.handleSQLError(err))
	}
	defer rows.Close()

	table := &storage.Table{Headers: headers, Rows: [][]string{}}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, s.traced(span, s.handleSQLError(err))
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, s.traced(span, err)
		}
		table.Rows = append(table.Rows, storage.PadRow(cells, len(headers)))
	}
	if err := rows.Err(); err != nil {
		return nil, s.traced(span, s.handleSQLError(err))
	}

	span.SetAttributes(attribute.Int("rows", len(table.Rows)))
	return table, nil
}

// AppendRow see [storage.TabularStore].AppendRow.
func (s *Store) AppendRow(ctx context.Context, collection string, row []string) error {
	ctx, span := s.startTrace(ctx, "AppendRow", collection)
	defer span.End()

	cells, err := encodeCells(row)
	if err != nil {
		return s.traced(span, err)
	}

	return s.inTx(ctx, span, func(stbl sq.StatementBuilderType) error {
		if _, err := readHeaders(ctx, stbl, collection); err != nil {
			return err
		}

		var last sql.NullInt64
		err := stbl.
			Select("MAX(row_index)").
			From(rowsTable).
			Where(sq.Eq{"collection": collection}).
			QueryRowContext(ctx).
			Scan(&last)
		if err != nil {
			return s.handleSQLError(err)
		}
		next := int64(0)
		if last.Valid {
			next = last.Int64 + 1
		}

		_, err = stbl.
			Insert(rowsTable).
			Columns("collection", "row_index", "cells").
			Values(collection, next, cells).
			ExecContext(ctx)
		if err != nil {
			return s.handleSQLError(err)
		}
		return nil
	})
}

// OverwriteRow see [storage.TabularStore].OverwriteRow.
func (s *Store) OverwriteRow(ctx context.Context, collection string, index int, row []string) error {
	ctx, span := s.startTrace(ctx, "OverwriteRow", collection)
	defer span.End()
	span.SetAttributes(attribute.Int("index", index))

	if index < 0 {
		return s.traced(span, storage.InvalidRowIndexError(collection, index))
	}

	cells, err := encodeCells(row)
	if err != nil {
		return s.traced(span, err)
	}

	return s.inTx(ctx, span, func(stbl sq.StatementBuilderType) error {
		if _, err := readHeaders(ctx, stbl, collection); err != nil {
			return err
		}

		res, err := stbl.
			Update(rowsTable).
			Set("cells", cells).
			Where(sq.Eq{"collection": collection, "row_index": index}).
			ExecContext(ctx)
		if err != nil {
			return s.handleSQLError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return s.handleSQLError(err)
		}
		if affected == 0 {
			return storage.InvalidRowIndexError(collection, index)
		}
		return nil
	})
}

// OverwriteAll see [storage.TabularStore].OverwriteAll.
func (s *Store) OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error {
	ctx, span := s.startTrace(ctx, "OverwriteAll", collection)
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(rows)))

	encoded := make([]string, 0, len(rows))
	for _, row := range rows {
		cells, err := encodeCells(row)
		if err != nil {
			return s.traced(span, err)
		}
		encoded = append(encoded, cells)
	}

	return s.inTx(ctx, span, func(stbl sq.StatementBuilderType) error {
		if _, err := stbl.Delete(rowsTable).Where(sq.Eq{"collection": collection}).ExecContext(ctx); err != nil {
			return s.handleSQLError(err)
		}
		if _, err := stbl.Delete(collectionsTable).Where(sq.Eq{"name": collection}).ExecContext(ctx); err != nil {
			return s.handleSQLError(err)
		}
		if err := insertCollection(ctx, stbl, collection, headers); err != nil {
			return s.handleSQLError(err)
		}

		for start := 0; start < len(encoded); start += insertBatchSize {
			end := min(start+insertBatchSize, len(encoded))
			ib := stbl.Insert(rowsTable).Columns("collection", "row_index", "cells")
			for i := start; i < end; i++ {
				ib = ib.Values(collection, i, encoded[i])
			}
			if _, err := ib.ExecContext(ctx); err != nil {
				return s.handleSQLError(err)
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, retried as a whole by the store's RetryFn.
func (s *Store) inTx(ctx context.Context, span trace.Span, fn func(stbl sq.StatementBuilderType) error) error {
	err := s.retry(func() error {
		txn, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return s.handleSQLError(err)
		}
		defer func() {
			_ = txn.Rollback()
		}()

		if err := fn(s.stbl.RunWith(txn)); err != nil {
			return err
		}

		if err := txn.Commit(); err != nil {
			return s.handleSQLError(err)
		}
		return nil
	})
	if err != nil {
		return s.traced(span, err)
	}
	return nil
}

func (s *Store) traced(span trace.Span, err error) error {
	telemetry.TraceError(span, err)
	return err
}

func readHeaders(ctx context.Context, stbl sq.StatementBuilderType, collection string) ([]string, error) {
	var raw string
	err := stbl.
		Select("headers").
		From(collectionsTable).
		Where(sq.Eq{"name": collection}).
		QueryRowContext(ctx).
		Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.CollectionNotFoundError(collection)
		}
		return nil, HandleSQLError(err)
	}
	return decodeCells(raw)
}

func insertCollection(ctx context.Context, stbl sq.StatementBuilderType, collection string, headers []string) error {
	raw, err := encodeCells(headers)
	if err != nil {
		return err
	}
	_, err = stbl.
		Insert(collectionsTable).
		Columns("name", "headers").
		Values(collection, raw).
		ExecContext(ctx)
	return err
}

func encodeCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	b, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("encode cells: %w", err)
	}
	return string(b), nil
}

func decodeCells(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	if cells == nil {
		cells = []string{}
	}
	return cells, nil
}

// HandleSQLError maps the errors every engine shares. Engine packages handle
// their own driver errors first and fall back to it.
func HandleSQLError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", storage.ErrCancelled, err)
	case errors.Is(err, storage.ErrCollectionNotFound),
		errors.Is(err, storage.ErrInvalidRowIndex),
		errors.Is(err, storage.ErrCollision),
		errors.Is(err, storage.ErrCancelled):
		return err
	}
	return fmt.Errorf("sql error: %w", err)
}
