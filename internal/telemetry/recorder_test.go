package telemetry

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestRecorder_CountsByEventType(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	rec, err := NewRecorder(provider.Meter("test"), nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	done := make(chan struct{})
	go func() {
		rec.Run()
		close(done)
	}()

	rec.Record(&Event{Type: EventSessionCreated})
	rec.Record(&Event{Type: EventSessionCreated})
	rec.Record(&Event{Type: EventSessionRotated, Outcome: OutcomeOK})
	rec.Record(&Event{Type: EventRefreshDenied, Outcome: OutcomeInvalidToken})
	rec.Record(&Event{Type: EventSessionInvalidated, Count: 3, Source: "logout_all"})
	rec.Record(&Event{Type: EventSessionReaped, Count: 5, Source: "reaper"})

	rec.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not drain after Close")
	}

	if got := collectSum(t, reader, "auth.sessions.created"); got != 2 {
		t.Errorf("created = %d, want 2", got)
	}
	if got := collectSum(t, reader, "auth.sessions.rotations"); got != 2 {
		t.Errorf("rotations = %d, want 2", got)
	}
	if got := collectSum(t, reader, "auth.sessions.invalidated"); got != 8 {
		t.Errorf("invalidated = %d, want 8", got)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	// Should not panic.
	rec.Record(&Event{Type: EventSessionCreated})
}
