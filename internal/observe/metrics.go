// Package observe provides application-wide observability primitives for
// jurubahasa: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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
const meterName = "github.com/MrWong99/jurubahasa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TranslationDuration tracks translation call latency. Attributes:
	//   attribute.String("provider", ...), attribute.String("intent", ...)
	TranslationDuration metric.Float64Histogram

	// --- Reconciler counters ---

	// TranslationsDispatched counts translation calls issued by sessions.
	// Attribute: attribute.String("intent", "preview"|"final")
	TranslationsDispatched metric.Int64Counter

	// TranslationsSuppressed counts finals that the duplicate guard swallowed.
	// Attribute: attribute.String("rule", ...)
	TranslationsSuppressed metric.Int64Counter

	// TranslationsDropped counts results that never reached the display.
	// Attributes: attribute.String("intent", ...), attribute.String("reason", "error"|"empty"|"stale")
	TranslationsDropped metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Recognizer lifecycle ---

	// RecognizerRestarts counts automatic recognizer restarts.
	RecognizerRestarts metric.Int64Counter

	// RecognizerErrors counts recognizer error events. Attribute:
	//   attribute.String("code", ...)
	RecognizerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveViewers tracks the number of connected read-only viewers.
	ActiveViewers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time, including the
	// lifetime of websocket sessions. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// interactive translation latencies.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.2, 0.35, 0.5, 0.75, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranslationDuration, err = m.Float64Histogram("jurubahasa.translation.duration",
		metric.WithDescription("Latency of translation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.TranslationsDispatched, err = m.Int64Counter("jurubahasa.translations.dispatched",
		metric.WithDescription("Translation calls issued by intent."),
	); err != nil {
		return nil, err
	}
	if met.TranslationsSuppressed, err = m.Int64Counter("jurubahasa.translations.suppressed",
		metric.WithDescription("Final translations suppressed as duplicates."),
	); err != nil {
		return nil, err
	}
	if met.TranslationsDropped, err = m.Int64Counter("jurubahasa.translations.dropped",
		metric.WithDescription("Translation results discarded by intent and reason."),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("jurubahasa.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("jurubahasa.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.RecognizerRestarts, err = m.Int64Counter("jurubahasa.recognizer.restarts",
		metric.WithDescription("Automatic recognizer restarts."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("jurubahasa.recognizer.errors",
		metric.WithDescription("Recognizer error events by code."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("jurubahasa.active_sessions",
		metric.WithDescription("Number of running sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveViewers, err = m.Int64UpDownCounter("jurubahasa.active_viewers",
		metric.WithDescription("Number of connected read-only viewers."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("jurubahasa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and mux route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDispatched records one issued translation call.
func (m *Metrics) RecordDispatched(ctx context.Context, intent string) {
	m.TranslationsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordSuppressed records one final swallowed by the duplicate guard.
func (m *Metrics) RecordSuppressed(ctx context.Context, rule string) {
	m.TranslationsSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

// RecordDropped records one translation result that was not displayed.
func (m *Metrics) RecordDropped(ctx context.Context, intent, reason string) {
	m.TranslationsDropped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("reason", reason),
		),
	)
}

// RecordTranslation records the latency of one translation call.
func (m *Metrics) RecordTranslation(ctx context.Context, provider, intent string, seconds float64) {
	m.TranslationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("intent", intent),
		),
	)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRestart records one automatic recognizer restart.
func (m *Metrics) RecordRestart(ctx context.Context) {
	m.RecognizerRestarts.Add(ctx, 1)
}

// RecordRecognizerError records one recognizer error event.
func (m *Metrics) RecordRecognizerError(ctx context.Context, code string) {
	m.RecognizerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
