package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the data point carrying key=value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestTranslationCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDispatched(ctx, "preview")
	m.RecordDispatched(ctx, "final")
	m.RecordDispatched(ctx, "final")
	m.RecordSuppressed(ctx, "exact")
	m.RecordDropped(ctx, "preview", "stale")
	m.RecordDropped(ctx, "final", "error")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "jurubahasa.translations.dispatched", "intent", "final"); got != 2 {
		t.Errorf("dispatched final = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "jurubahasa.translations.suppressed", "rule", "exact"); got != 1 {
		t.Errorf("suppressed = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "jurubahasa.translations.dropped", "reason", "stale"); got != 1 {
		t.Errorf("dropped stale = %d, want 1", got)
	}
}

func TestTranslationDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranslation(ctx, "google", "final", 0.12)
	m.RecordTranslation(ctx, "google", "final", 0.34)

	rm := collect(t, reader)
	met := findMetric(rm, "jurubahasa.translation.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
		t.Errorf("expected 2 samples, got %+v", hist.DataPoints)
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "google", "translate", "ok")
	m.RecordProviderRequest(ctx, "google", "translate", "ok")
	m.RecordProviderRequest(ctx, "google", "translate", "error")
	m.RecordProviderError(ctx, "google", "translate")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "jurubahasa.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("requests ok = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "jurubahasa.provider.errors", "provider", "google"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestRecognizerCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRestart(ctx)
	m.RecordRestart(ctx)
	m.RecordRecognizerError(ctx, "network")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "jurubahasa.recognizer.restarts", "", ""); got != 2 {
		t.Errorf("restarts = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "jurubahasa.recognizer.errors", "code", "network"); got != 1 {
		t.Errorf("recognizer errors = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveViewers.Add(ctx, 3)
	m.ActiveViewers.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "jurubahasa.active_sessions", "", ""); got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "jurubahasa.active_viewers", "", ""); got != 2 {
		t.Errorf("active viewers = %d, want 2", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
