package observe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/valvoice/internal/observe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Metrics)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}

	return found
}

func TestRecordNarration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	met, err := observe.NewMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	met.RecordNarration(ctx, "remote", 1500*time.Millisecond, 2048, "", nil)
	met.RecordNarration(ctx, "remote", 200*time.Millisecond, 0, "http_status", errors.New("401"))

	found := collect(t, reader)

	requests, ok := found["valvoice.narration.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range requests.DataPoints {
		total += dp.Value
	}

	assert.Equal(t, int64(2), total)

	errs, ok := found["valvoice.narration.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	assert.Equal(t, int64(1), errs.DataPoints[0].Value)

	kind, present := errs.DataPoints[0].Attributes.Value("kind")
	require.True(t, present)
	assert.Equal(t, "http_status", kind.AsString())

	duration, ok := found["valvoice.narration.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(2), duration.DataPoints[0].Count)
	assert.InDelta(t, 1.7, duration.DataPoints[0].Sum, 0.001)
}

func TestProviderSummary(t *testing.T) {
	t.Parallel()

	provider := observe.NewProvider()

	met, err := observe.NewMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	met.RecordDropped(ctx, "blocked")
	met.RecordDropped(ctx, "quota")
	met.RecordNarration(ctx, "local", time.Second, 0, "", nil)

	lines, err := provider.Summary(ctx)
	require.NoError(t, err)

	assert.Contains(t, lines, "valvoice.bus.dropped 2")
	assert.Contains(t, lines, "valvoice.narration.requests 1")
	assert.Contains(t, lines, "valvoice.narration.duration count=1 sum=1.000")
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var met *observe.Metrics

	assert.NotPanics(t, func() {
		met.RecordNarration(context.Background(), "remote", time.Second, 1, "", nil)
		met.RecordDropped(context.Background(), "blocked")
	})

	assert.NotPanics(t, func() {
		observe.Discard().RecordDropped(context.Background(), "blocked")
	})
}
