// Package observe provides OpenTelemetry metrics for the narration pipeline.
//
// Components take a [Metrics] built with [NewMetrics] from any
// [metric.MeterProvider]. Hosts without an exporter use [NewProvider], which
// keeps measurements in memory so they can be summarised at shutdown; tests
// should read through an sdk ManualReader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all valvoice metrics.
const meterName = "github.com/book-expert/valvoice"

// Outcome attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the metric instruments for narration.
type Metrics struct {
	// Requests counts narration attempts. Attributes: backend, status.
	Requests metric.Int64Counter

	// Errors counts failed narrations. Attributes: backend, kind.
	Errors metric.Int64Counter

	// Duration tracks synthesis latency. Attribute: backend.
	Duration metric.Float64Histogram

	// AudioBytes tracks the size of synthesized audio.
	AudioBytes metric.Int64Histogram

	// Dropped counts bus requests refused before synthesis. Attribute: reason.
	Dropped metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds for one utterance.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30, 60,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Requests, err = m.Int64Counter("valvoice.narration.requests",
		metric.WithDescription("Narration attempts by backend and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("valvoice.narration.errors",
		metric.WithDescription("Failed narrations by backend and error kind."),
	); err != nil {
		return nil, err
	}
	if met.Duration, err = m.Float64Histogram("valvoice.narration.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Histogram("valvoice.narration.bytes",
		metric.WithDescription("Size of synthesized audio."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("valvoice.bus.dropped",
		metric.WithDescription("Bus narration requests refused before synthesis."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop meter provider failed: " + err.Error())
	}

	return met
}

// RecordNarration records one synthesis attempt. kind classifies err and is
// ignored when err is nil.
func (m *Metrics) RecordNarration(ctx context.Context, backend string, elapsed time.Duration, size int, kind string, err error) {
	if m == nil {
		return
	}

	backendAttr := attribute.String("backend", backend)
	status := StatusOK

	if err != nil {
		status = StatusError
		m.Errors.Add(ctx, 1, metric.WithAttributes(backendAttr, attribute.String("kind", kind)))
	}

	m.Requests.Add(ctx, 1, metric.WithAttributes(backendAttr, attribute.String("status", status)))
	m.Duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(backendAttr))

	if size > 0 {
		m.AudioBytes.Record(ctx, int64(size), metric.WithAttributes(backendAttr))
	}
}

// RecordDropped counts a refused bus request.
func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}

	m.Dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
