package observe

import (
	"context"
	"fmt"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Provider is an in-process meter provider whose measurements can be read back.
type Provider struct {
	*sdkmetric.MeterProvider

	reader *sdkmetric.ManualReader
}

// NewProvider creates a meter provider backed by a manual reader.
func NewProvider() *Provider {
	reader := sdkmetric.NewManualReader()

	return &Provider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:        reader,
	}
}

// Summary collects the current measurements as "name value" lines sorted by
// name. Counters report their total; histograms report count and sum.
func (p *Provider) Summary(ctx context.Context) ([]string, error) {
	var rm metricdata.ResourceMetrics

	err := p.reader.Collect(ctx, &rm)
	if err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	var lines []string

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			lines = append(lines, summarize(m)...)
		}
	}

	sort.Strings(lines)

	return lines, nil
}

func summarize(m metricdata.Metrics) []string {
	var lines []string

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		var total int64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}

		lines = append(lines, fmt.Sprintf("%s %d", m.Name, total))
	case metricdata.Histogram[float64]:
		var (
			count uint64
			sum   float64
		)
		for _, dp := range data.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}

		lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3f", m.Name, count, sum))
	case metricdata.Histogram[int64]:
		var (
			count uint64
			sum   int64
		)
		for _, dp := range data.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}

		lines = append(lines, fmt.Sprintf("%s count=%d sum=%d", m.Name, count, sum))
	}

	return lines
}
