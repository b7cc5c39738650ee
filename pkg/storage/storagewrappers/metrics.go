package storagewrappers

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sheetql/sheetql/internal/build"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

var tracer = otel.Tracer("sheetql/pkg/storage/storagewrappers")

var (
	datastoreOperationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "datastore_operations_total",
		Help:      "The total number of calls to the backing store, by operation and outcome.",
	}, []string{"operation", "outcome"})

	datastoreOperationDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "datastore_operation_duration_ms",
		Help:      "The duration (in ms) of calls to the backing store.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"operation"})

	datastoreRowsFetchedHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "datastore_rows_fetched",
		Help:      "The number of data rows returned by one fetch.",
		Buckets:   []float64{0, 10, 100, 1000, 10000, 100000},
	})
)

const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

var _ storage.TabularStore = (*MetricsStore)(nil)

// MetricsStore records prometheus metrics and a span for every call to the
// wrapped store.
type MetricsStore struct {
	storage.TabularStore
}

func NewMetricsStore(wrapped storage.TabularStore) *MetricsStore {
	return &MetricsStore{TabularStore: wrapped}
}

func (m *MetricsStore) start(ctx context.Context, operation, collection string) (context.Context, trace.Span, time.Time) {
	ctx, span := tracer.Start(ctx, "datastore."+operation, trace.WithAttributes(
		attribute.String("collection", collection),
	))
	return ctx, span, time.Now()
}

func (m *MetricsStore) finish(span trace.Span, operation string, start time.Time, err error) {
	defer span.End()

	datastoreOperationDurationHistogram.WithLabelValues(operation).Observe(float64(time.Since(start).Milliseconds()))

	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrCollectionNotFound):
		outcome = outcomeNotFound
	default:
		outcome = outcomeError
		telemetry.TraceError(span, err)
	}
	datastoreOperationCounter.WithLabelValues(operation, outcome).Inc()
}

// FetchRows see [storage.TabularStore].FetchRows.
func (m *MetricsStore) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	ctx, span, start := m.start(ctx, "FetchRows", collection)

	table, err := m.TabularStore.FetchRows(ctx, collection)
	if err == nil {
		datastoreRowsFetchedHistogram.Observe(float64(table.Len()))
		span.SetAttributes(attribute.Int("rows", table.Len()))
	}
	m.finish(span, "FetchRows", start, err)
	return table, err
}

// AppendRow see [storage.TabularStore].AppendRow.
func (m *MetricsStore) AppendRow(ctx context.Context, collection string, row []string) error {
	ctx, span, start := m.start(ctx, "AppendRow", collection)

	err := m.TabularStore.AppendRow(ctx, collection, row)
	m.finish(span, "AppendRow", start, err)
	return err
}

// OverwriteRow see [storage.TabularStore].OverwriteRow.
func (m *MetricsStore) OverwriteRow(ctx context.Context, collection string, index int, row []string) error {
	ctx, span, start := m.start(ctx, "OverwriteRow", collection)
	span.SetAttributes(attribute.Int("index", index))

	err := m.TabularStore.OverwriteRow(ctx, collection, index, row)
	m.finish(span, "OverwriteRow", start, err)
	return err
}

// OverwriteAll see [storage.TabularStore].OverwriteAll.
func (m *MetricsStore) OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error {
	ctx, span, start := m.start(ctx, "OverwriteAll", collection)
	span.SetAttributes(attribute.Int("rows", len(rows)))

	err := m.TabularStore.OverwriteAll(ctx, collection, headers, rows)
	m.finish(span, "OverwriteAll", start, err)
	return err
}
