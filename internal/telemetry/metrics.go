// Package telemetry provides observability primitives for the cache service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the cache service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	Lookups          *prometheus.CounterVec
	DurableErrors    *prometheus.CounterVec
	DurableDuration  *prometheus.HistogramVec
	InvalidatedKeys  *prometheus.CounterVec
	Entries          *prometheus.GaugeVec
	WarmedEntries    *prometheus.CounterVec
	EventQueueLength prometheus.Gauge
	RateLimited      *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "requests_total",
			Help:      "Total number of admin HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "tiercache",
			Name:                            "request_duration_seconds",
			Help:                            "Admin HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tiercache",
			Name:      "active_requests",
			Help:      "Number of currently active admin requests.",
		}),

		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "lookups_total",
			Help:      "Cache lookups by namespace, tier and result.",
		}, []string{"namespace", "tier", "result"}),

		DurableErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "durable_errors_total",
			Help:      "Durable tier failures absorbed by the cache.",
		}, []string{"namespace", "op"}),

		DurableDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "tiercache",
			Name:                            "durable_duration_seconds",
			Help:                            "Durable tier call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"op"}),

		InvalidatedKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "invalidated_keys_total",
			Help:      "Keys removed by pattern invalidation.",
		}, []string{"namespace"}),

		Entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tiercache",
			Name:      "entries",
			Help:      "Live entries in the memory tier.",
		}, []string{"namespace"}),

		WarmedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "warmed_entries_total",
			Help:      "Entries loaded by cache warming.",
		}, []string{"namespace"}),

		EventQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tiercache",
			Name:      "event_queue_length",
			Help:      "Current number of queued invalidation events.",
		}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "rate_limited_total",
			Help:      "Admin requests rejected by the per-client rate limiter.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.Lookups,
		m.DurableErrors,
		m.DurableDuration,
		m.InvalidatedKeys,
		m.Entries,
		m.WarmedEntries,
		m.EventQueueLength,
		m.RateLimited,
	)

	return m
}
