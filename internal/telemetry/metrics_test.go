package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.Lookups == nil {
		t.Error("Lookups is nil")
	}
	if m.DurableErrors == nil {
		t.Error("DurableErrors is nil")
	}
	if m.DurableDuration == nil {
		t.Error("DurableDuration is nil")
	}
	if m.InvalidatedKeys == nil {
		t.Error("InvalidatedKeys is nil")
	}
	if m.Entries == nil {
		t.Error("Entries is nil")
	}

	// Vec collectors emit nothing until a label set is used.
	m.ActiveRequests.Set(1)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("GET", "/admin/cache/stats", "2xx").Inc()
	m.Lookups.WithLabelValues("content", "memory", "hit").Inc()
	m.Lookups.WithLabelValues("content", "durable", "miss").Inc()
	m.DurableErrors.WithLabelValues("content", "get").Inc()
	m.DurableDuration.WithLabelValues("get").Observe(0.004)
	m.InvalidatedKeys.WithLabelValues("content").Add(3)
	m.Entries.WithLabelValues("media").Set(12)
	m.EventQueueLength.Set(2)
	m.RateLimited.WithLabelValues("write").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"tiercache_requests_total",
		"tiercache_lookups_total",
		"tiercache_durable_errors_total",
		"tiercache_durable_duration_seconds",
		"tiercache_invalidated_keys_total",
		"tiercache_entries",
		"tiercache_event_queue_length",
		"tiercache_rate_limited_total",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}
