// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/dmhud/dmhud"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ExtractionDuration tracks entity-extraction model call latency.
	ExtractionDuration metric.Float64Histogram

	// ReconcileDuration tracks diff application latency.
	ReconcileDuration metric.Float64Histogram

	// --- Pipeline shape ---

	// BatchSize tracks how many utterances each extraction batch carried.
	BatchSize metric.Int64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CardMutations counts card changes applied by the reconciler. Use with
	// attribute: attribute.String("op", ...) — one of created, updated,
	// hp, status, synthesized.
	CardMutations metric.Int64Counter

	// StoreWrites counts persistence mirror writes by status.
	StoreWrites metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// DiffParseFailures counts model responses that failed to parse.
	DiffParseFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live play sessions.
	ActiveSessions metric.Int64UpDownCounter

	// PendingUtterances tracks utterances queued for the next batch.
	PendingUtterances metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a pipeline whose slowest stage is a model call capped at 30s.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("dmhud.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("dmhud.extraction.duration",
		metric.WithDescription("Latency of entity extraction model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReconcileDuration, err = m.Float64Histogram("dmhud.reconcile.duration",
		metric.WithDescription("Latency of diff application."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchSize, err = m.Int64Histogram("dmhud.extraction.batch_size",
		metric.WithDescription("Utterances per extraction batch."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("dmhud.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CardMutations, err = m.Int64Counter("dmhud.cards.mutations",
		metric.WithDescription("Total card mutations applied by the reconciler, by op."),
	); err != nil {
		return nil, err
	}
	if met.StoreWrites, err = m.Int64Counter("dmhud.store.writes",
		metric.WithDescription("Total persistence mirror writes by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("dmhud.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.DiffParseFailures, err = m.Int64Counter("dmhud.extraction.parse_failures",
		metric.WithDescription("Model responses that failed to parse as a diff."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("dmhud.active_sessions",
		metric.WithDescription("Number of live play sessions."),
	); err != nil {
		return nil, err
	}
	if met.PendingUtterances, err = m.Int64UpDownCounter("dmhud.pending_utterances",
		metric.WithDescription("Utterances queued for the next extraction batch."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("dmhud.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCardMutation is a convenience method that records a reconciler card
// mutation by operation kind.
func (m *Metrics) RecordCardMutation(ctx context.Context, op string) {
	m.CardMutations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordStoreWrite is a convenience method that records a persistence mirror
// write outcome.
func (m *Metrics) RecordStoreWrite(ctx context.Context, status string) {
	m.StoreWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
