package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sheetql/sheetql/internal/build"
	"github.com/sheetql/sheetql/pkg/storage"
)

var _ storage.TabularStore = (*BoundedConcurrencyStore)(nil)

var (
	timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "time_waiting_for_datastore_calls",
		Help:      "Time (in ms) spent waiting for a free slot before calling the datastore",
		Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000}, // milliseconds
	})
)

// BoundedConcurrencyStore makes sure that there are, at most, N concurrent
// calls to the wrapped store. Remote stores enforce per-client quotas that a
// burst of queries would otherwise exhaust.
type BoundedConcurrencyStore struct {
	storage.TabularStore
	limiter chan struct{}
}

func NewBoundedConcurrencyStore(wrapped storage.TabularStore, n uint32) *BoundedConcurrencyStore {
	return &BoundedConcurrencyStore{
		TabularStore: wrapped,
		limiter:      make(chan struct{}, n),
	}
}

// acquire waits for a slot or for ctx to be done.
func (b *BoundedConcurrencyStore) acquire(ctx context.Context) (func(), error) {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("time_waiting", timeWaiting))

	return func() {
		<-b.limiter
	}, nil
}

// FetchRows see [storage.TabularStore].FetchRows.
func (b *BoundedConcurrencyStore) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return b.TabularStore.FetchRows(ctx, collection)
}

// AppendRow see [storage.TabularStore].AppendRow.
func (b *BoundedConcurrencyStore) AppendRow(ctx context.Context, collection string, row []string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return b.TabularStore.AppendRow(ctx, collection, row)
}

// OverwriteRow see [storage.TabularStore].OverwriteRow.
func (b *BoundedConcurrencyStore) OverwriteRow(ctx context.Context, collection string, index int, row []string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return b.TabularStore.OverwriteRow(ctx, collection, index, row)
}

// OverwriteAll see [storage.TabularStore].OverwriteAll.
func (b *BoundedConcurrencyStore) OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return b.TabularStore.OverwriteAll(ctx, collection, headers, rows)
}
