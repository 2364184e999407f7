package telemetry

import (
	"testing"
	"time"

	"github.com/mohammad-safakhou/scholar/config"
)

func TestTelemetryTotals(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})

	tele.RecordLLMUsage("gpt-4o", 100, 50, 0.015)
	tele.RecordLLMUsage("gpt-4o", 200, 100, 0.030)

	cost, tokens := tele.Totals()
	if tokens != 450 {
		t.Fatalf("expected 450 tokens, got %d", tokens)
	}
	if cost < 0.044 || cost > 0.046 {
		t.Fatalf("expected cost around 0.045, got %v", cost)
	}
}

func TestTelemetryCostTrackingDisabled(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: false})

	tele.RecordLLMUsage("gpt-4o", 100, 50, 0.015)

	cost, tokens := tele.Totals()
	if cost != 0 || tokens != 0 {
		t.Fatalf("expected no totals when cost tracking is off, got %v / %d", cost, tokens)
	}
}

func TestTelemetryNilSafe(t *testing.T) {
	var tele *Telemetry
	tele.RecordTask("completed", time.Second)
	tele.RecordRevision()
	tele.RecordEvidence("web", 3)
	tele.RecordLLMUsage("m", 1, 1, 0.1)
	if cost, tokens := tele.Totals(); cost != 0 || tokens != 0 {
		t.Fatal("nil telemetry must report zero totals")
	}
}

func TestTelemetryHandler(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: true})
	if tele.Handler() == nil {
		t.Fatal("expected a metrics handler")
	}
	// Two instances must not clash on metric registration.
	other := NewTelemetry(config.TelemetryConfig{Enabled: true})
	if other.Handler() == nil {
		t.Fatal("expected a second independent handler")
	}
}
