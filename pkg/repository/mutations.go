package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

// WriteLocks serializes the read-modify-write cycles of one process per
// collection. Writers in other processes are not excluded.
type WriteLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex // GUARDED_BY(mu)
}

func NewWriteLocks() *WriteLocks {
	return &WriteLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock locks collection and returns the unlock func.
func (w *WriteLocks) Lock(collection string) func() {
	w.mu.Lock()
	l, ok := w.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		w.locks[collection] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create appends a row built from data and returns it as stored. A new id is
// generated unless data carries one, which must not exist yet. A collection
// without a header gets one made of id followed by the sorted keys of data.
func (r *Repository) Create(ctx context.Context, data map[string]string) (*record.Record, error) {
	ctx, span := r.startWrite(ctx, "Create")
	defer span.End()

	unlock := r.locks.Lock(r.entity.Collection)
	defer unlock()

	table, err := r.store.FetchRows(ctx, r.entity.Collection)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	id := data[record.IDColumn]
	if id == "" {
		id = uuid.NewString()
	} else if slices.ContainsFunc(record.FromTable(table), func(row *record.Record) bool { return row.ID() == id }) {
		err := fmt.Errorf("%w: %s %q", storage.ErrCollision, r.entity.Name, id)
		telemetry.TraceError(span, err)
		return nil, err
	}

	values := make(map[string]string, len(data)+1)
	for k, v := range data {
		values[k] = v
	}
	values[record.IDColumn] = id

	headers := table.Headers
	if len(headers) == 0 {
		headers = headerFor(values)
	}
	cells := record.FromMap(headers, values).Cells(headers)

	if len(table.Headers) == 0 {
		err = r.store.OverwriteAll(ctx, r.entity.Collection, headers, [][]string{cells})
	} else {
		r.warnUnknownColumns(ctx, headers, values)
		err = r.store.AppendRow(ctx, r.entity.Collection, cells)
	}
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("id", id))
	r.logger.DebugWithContext(ctx, "record created",
		zap.String("entity", r.entity.Name),
		zap.String("id", id),
	)
	return record.New(headers, cells), nil
}

// Update merges data into the row with id and returns the merged row. The id
// cannot be changed and columns not in the header are ignored. It returns
// nil and performs no write when no row has that id.
func (r *Repository) Update(ctx context.Context, id string, data map[string]string) (*record.Record, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	ctx, span := r.startWrite(ctx, "Update")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	unlock := r.locks.Lock(r.entity.Collection)
	defer unlock()

	table, index, err := r.locate(ctx, id)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	if index < 0 {
		return nil, nil
	}

	r.warnUnknownColumns(ctx, table.Headers, data)
	merged := record.New(table.Headers, table.Rows[index])
	for _, column := range table.Headers {
		if column == record.IDColumn {
			continue
		}
		if v, ok := data[column]; ok {
			merged.Set(column, v)
		}
	}

	cells := merged.Cells(table.Headers)
	if err := r.store.OverwriteRow(ctx, r.entity.Collection, index, cells); err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	r.logger.DebugWithContext(ctx, "record updated",
		zap.String("entity", r.entity.Name),
		zap.String("id", id),
		zap.Int("row", index),
	)
	return merged, nil
}

// Delete removes the row with id by rewriting the collection without it. It
// returns false and performs no write when no row has that id.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrMissingID
	}
	ctx, span := r.startWrite(ctx, "Delete")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	unlock := r.locks.Lock(r.entity.Collection)
	defer unlock()

	table, index, err := r.locate(ctx, id)
	if err != nil {
		telemetry.TraceError(span, err)
		return false, err
	}
	if index < 0 {
		return false, nil
	}

	rows := slices.Delete(slices.Clone(table.Rows), index, index+1)
	if err := r.store.OverwriteAll(ctx, r.entity.Collection, table.Headers, rows); err != nil {
		telemetry.TraceError(span, err)
		return false, err
	}

	r.logger.DebugWithContext(ctx, "record deleted",
		zap.String("entity", r.entity.Name),
		zap.String("id", id),
		zap.Int("row", index),
	)
	return true, nil
}

func (r *Repository) startWrite(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "repository."+operation, trace.WithAttributes(
		attribute.String("entity", r.entity.Name),
		attribute.String("collection", r.entity.Collection),
	))
}

// locate fetches the collection and finds the data row index of id, or -1.
// Fetch failures are always returned, whatever the read policy.
func (r *Repository) locate(ctx context.Context, id string) (*storage.Table, int, error) {
	table, err := r.store.FetchRows(ctx, r.entity.Collection)
	if err != nil {
		return nil, -1, err
	}
	column := table.ColumnIndex(record.IDColumn)
	if column < 0 {
		return table, -1, nil
	}
	for i, row := range table.Rows {
		if column < len(row) && row[column] == id {
			return table, i, nil
		}
	}
	return table, -1, nil
}

func (r *Repository) warnUnknownColumns(ctx context.Context, headers []string, data map[string]string) {
	var unknown []string
	for column := range data {
		if !slices.Contains(headers, column) {
			unknown = append(unknown, column)
		}
	}
	if len(unknown) == 0 {
		return
	}
	sort.Strings(unknown)
	r.logger.WarnWithContext(ctx, "ignoring columns missing from the header",
		zap.String("entity", r.entity.Name),
		zap.Strings("columns", unknown),
	)
}

// headerFor returns id followed by the other keys of values in sorted order.
func headerFor(values map[string]string) []string {
	headers := make([]string, 0, len(values))
	for column := range values {
		if column != record.IDColumn {
			headers = append(headers, column)
		}
	}
	sort.Strings(headers)
	return append([]string{record.IDColumn}, headers...)
}
