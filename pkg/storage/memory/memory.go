package memory

import (
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sheetql/sheetql/pkg/storage"
)

var tracer = otel.Tracer("sheetql/pkg/storage/memory")

// StorageOption defines a function type used for configuring a [MemoryBackend] instance.
type StorageOption func(dataStore *MemoryBackend)

// WithTable seeds the backend with a collection.
func WithTable(collection string, table *storage.Table) StorageOption {
	return func(ds *MemoryBackend) {
		ds.tables[collection] = table.Clone()
	}
}

// MemoryBackend provides an ephemeral memory-backed implementation of [storage.TabularStore].
// These instances may be safely shared by multiple go-routines.
type MemoryBackend struct {
	// map: collection => header and rows
	tables map[string]*storage.Table // GUARDED_BY(mu).
	mu     sync.RWMutex
}

// Ensures that [MemoryBackend] implements the [storage.TabularStore] interface.
var _ storage.TabularStore = (*MemoryBackend)(nil)

// New creates a new [MemoryBackend] given the options.
func New(opts ...StorageOption) *MemoryBackend {
	ds := &MemoryBackend{
		tables: make(map[string]*storage.Table),
	}

	for _, opt := range opts {
		opt(ds)
	}

	return ds
}

// Close does not do anything for [MemoryBackend].
func (s *MemoryBackend) Close() {}

// CreateCollection registers an empty collection, as creating a new sheet would.
func (s *MemoryBackend) CreateCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[collection]; !ok {
		s.tables[collection] = &storage.Table{}
	}
}

// FetchRows see [storage.TabularStore].FetchRows.
func (s *MemoryBackend) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	_, span := tracer.Start(ctx, "memory.FetchRows")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.tables[collection]
	if !ok {
		return nil, storage.CollectionNotFoundError(collection)
	}

	return table.Clone(), nil
}

// AppendRow see [storage.TabularStore].AppendRow.
func (s *MemoryBackend) AppendRow(ctx context.Context, collection string, row []string) error {
	_, span := tracer.Start(ctx, "memory.AppendRow")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[collection]
	if !ok {
		return storage.CollectionNotFoundError(collection)
	}

	table.Rows = append(table.Rows, slices.Clone(row))
	return nil
}

// OverwriteRow see [storage.TabularStore].OverwriteRow.
func (s *MemoryBackend) OverwriteRow(ctx context.Context, collection string, index int, row []string) error {
	_, span := tracer.Start(ctx, "memory.OverwriteRow")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("index", index))

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[collection]
	if !ok {
		return storage.CollectionNotFoundError(collection)
	}
	if index < 0 || index >= len(table.Rows) {
		return storage.InvalidRowIndexError(collection, index)
	}

	table.Rows[index] = slices.Clone(row)
	return nil
}

// OverwriteAll see [storage.TabularStore].OverwriteAll.
func (s *MemoryBackend) OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error {
	_, span := tracer.Start(ctx, "memory.OverwriteAll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("rows", len(rows)))

	if ctx.Err() != nil {
		return ctx.Err()
	}

	table := &storage.Table{
		Headers: slices.Clone(headers),
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, slices.Clone(row))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[collection] = table
	return nil
}
