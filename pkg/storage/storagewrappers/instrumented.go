package storagewrappers

import (
	"context"
	"sync/atomic"

	"github.com/sheetql/sheetql/pkg/storage"
)

var _ storage.TabularStore = (*InstrumentedStore)(nil)

type InstrumentedStore struct {
	storage.TabularStore
	countReads  atomic.Uint32
	countWrites atomic.Uint32
}

// NewInstrumentedStore creates a new instance of InstrumentedStore that wraps the specified store and maintains metrics per query.
// InstrumentedStore is thread-safe but should not be shared across multiple queries.
// It is crucial that the wrapped object does NOT return results from an in-memory cache for this object to return accurate metrics.
func NewInstrumentedStore(wrapped storage.TabularStore) *InstrumentedStore {
	return &InstrumentedStore{
		TabularStore: wrapped,
	}
}

type Metrics struct {
	DatastoreQueryCount uint32
	DatastoreWriteCount uint32
}

func (m *InstrumentedStore) GetMetrics() Metrics {
	return Metrics{
		DatastoreQueryCount: m.countReads.Load(),
		DatastoreWriteCount: m.countWrites.Load(),
	}
}

// FetchRows see [storage.TabularStore].FetchRows.
func (m *InstrumentedStore) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	m.countReads.Add(1)

	return m.TabularStore.FetchRows(ctx, collection)
}

// AppendRow see [storage.TabularStore].AppendRow.
func (m *InstrumentedStore) AppendRow(ctx context.Context, collection string, row []string) error {
	m.countWrites.Add(1)

	return m.TabularStore.AppendRow(ctx, collection, row)
}

// OverwriteRow see [storage.TabularStore].OverwriteRow.
func (m *InstrumentedStore) OverwriteRow(ctx context.Context, collection string, index int, row []string) error {
	m.countWrites.Add(1)

	return m.TabularStore.OverwriteRow(ctx, collection, index, row)
}

// OverwriteAll see [storage.TabularStore].OverwriteAll.
func (m *InstrumentedStore) OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error {
	m.countWrites.Add(1)

	return m.TabularStore.OverwriteAll(ctx, collection, headers, rows)
}
