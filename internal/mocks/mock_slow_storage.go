package mocks

import (
	"context"
	"time"

	"github.com/sheetql/sheetql/pkg/storage"
)

// slowTabularStore is a proxy to the actual store except the fetches are
// delayed by fetchDelay, or until the context is done.
// This allows simulating a remote store that hangs past a query deadline.
type slowTabularStore struct {
	fetchDelay time.Duration
	storage.TabularStore
}

// NewMockSlowTabularStore returns a wrapper of a store that adds artificial delays into the fetches.
func NewMockSlowTabularStore(ds storage.TabularStore, fetchDelay time.Duration) storage.TabularStore {
	return &slowTabularStore{
		fetchDelay:   fetchDelay,
		TabularStore: ds,
	}
}

func (m *slowTabularStore) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	timer := time.NewTimer(m.fetchDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.TabularStore.FetchRows(ctx, collection)
}
