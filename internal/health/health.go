// Package health classifies each cache namespace as healthy, warning or
// unhealthy from its hit rate, memory footprint and durable tier state.
package health

import (
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/circuitbreaker"
)

// Status is a tri-state health classification. Higher is worse.
type Status int

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	default:
		return "unhealthy"
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Thresholds drive the classification.
type Thresholds struct {
	HealthyHitRate  float64 // at or above: healthy
	WarningHitRate  float64 // below: unhealthy
	MinSamples      int64   // requests needed before hit rate is judged
	MaxMemoryBytes  int64   // above: unhealthy
	WarnMemoryBytes int64   // above: warning
	MaxEntries      int     // above: warning; 0 disables
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HealthyHitRate:  0.70,
		WarningHitRate:  0.40,
		MinSamples:      10,
		MaxMemoryBytes:  50 << 20,
		WarnMemoryBytes: 40 << 20,
	}
}

// NamespaceHealth is the classification of one namespace.
type NamespaceHealth struct {
	Namespace   string                `json:"namespace"`
	Status      Status                `json:"status"`
	HitRate     float64               `json:"hitRate"`
	MemoryUsage int64                 `json:"memoryUsage"`
	EntryCount  int                   `json:"entryCount"`
	Durable     *circuitbreaker.State `json:"durable,omitempty"`
	Reasons     []string              `json:"reasons,omitempty"`
}

// Report is the subsystem health: the worst namespace status plus detail.
type Report struct {
	Status     Status            `json:"status"`
	Namespaces []NamespaceHealth `json:"namespaces"`
}

// Evaluator checks a registry against thresholds.
type Evaluator struct {
	th       Thresholds
	breakers *circuitbreaker.Registry // nil = durable state not reported
}

// NewEvaluator creates an evaluator. breakers may be nil.
func NewEvaluator(th Thresholds, breakers *circuitbreaker.Registry) *Evaluator {
	return &Evaluator{th: th, breakers: breakers}
}

// Check classifies every registered namespace.
func (e *Evaluator) Check(reg *cache.Registry) Report {
	r := Report{Status: StatusHealthy, Namespaces: []NamespaceHealth{}}
	for _, svc := range reg.Services() {
		nh := e.Namespace(svc)
		r.Status = max(r.Status, nh.Status)
		r.Namespaces = append(r.Namespaces, nh)
	}
	return r
}

// Namespace classifies one service.
func (e *Evaluator) Namespace(svc *cache.Service) NamespaceHealth {
	st := svc.Stats()
	nh := NamespaceHealth{
		Namespace:   svc.Namespace(),
		HitRate:     st.HitRate(),
		MemoryUsage: svc.MemoryUsage(),
		EntryCount:  svc.Len(),
	}
	var state *circuitbreaker.State
	if e.breakers != nil {
		if b := e.breakers.Get(svc.Namespace()); b != nil {
			s := b.State()
			state = &s
		}
	}
	nh.Durable = state
	nh.Status, nh.Reasons = e.Classify(nh.HitRate, st.Hits()+st.Misses(), nh.MemoryUsage, nh.EntryCount, state)
	return nh
}

// Classify applies the thresholds and returns the status with the reasons
// that raised it.
func (e *Evaluator) Classify(hitRate float64, samples, memory int64, entries int, durable *circuitbreaker.State) (Status, []string) {
	status := StatusHealthy
	var reasons []string
	raise := func(s Status, reason string) {
		status = max(status, s)
		reasons = append(reasons, reason)
	}

	switch {
	case e.th.MaxMemoryBytes > 0 && memory > e.th.MaxMemoryBytes:
		raise(StatusUnhealthy, "memory above limit")
	case e.th.WarnMemoryBytes > 0 && memory > e.th.WarnMemoryBytes:
		raise(StatusWarning, "memory above warning level")
	}

	if samples >= e.th.MinSamples {
		switch {
		case hitRate < e.th.WarningHitRate:
			raise(StatusUnhealthy, "hit rate below warning level")
		case hitRate < e.th.HealthyHitRate:
			raise(StatusWarning, "hit rate below healthy level")
		}
	}

	if e.th.MaxEntries > 0 && entries > e.th.MaxEntries {
		raise(StatusWarning, "entry count above limit")
	}
	if durable != nil && *durable != circuitbreaker.StateClosed {
		raise(StatusWarning, "durable tier breaker "+durable.String())
	}
	return status, reasons
}
