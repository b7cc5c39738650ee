package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := MustNewTracerProvider(
		WithServiceName("sheetql-test"),
		WithSamplingRatio(1),
		WithSpanExporter(exporter),
	)

	_, span := tp.Tracer("").Start(context.Background(), "test")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "test", spans[0].Name)

	require.NoError(t, Shutdown(context.Background(), tp))
}

func TestTraceError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	exporter := tracetest.NewInMemoryExporter()
	tp := MustNewTracerProvider(WithSamplingRatio(1), WithSpanExporter(exporter))
	tp.RegisterSpanProcessor(recorder)

	_, span := tp.Tracer("").Start(context.Background(), "failing")
	TraceError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Equal(t, "boom", ended[0].Status().Description)
	require.NoError(t, Shutdown(context.Background(), tp))
}

func TestShutdownNil(t *testing.T) {
	require.NoError(t, Shutdown(context.Background(), nil))
}
