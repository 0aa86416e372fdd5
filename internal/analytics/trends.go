package analytics

import (
	"sync"
	"time"
)

// DefaultTrendPoints is the number of samples kept by a TrendRecorder.
const DefaultTrendPoints = 288

// TrendPoint is one periodic sample of the overview.
type TrendPoint struct {
	At          time.Time `json:"at"`
	HitRate     float64   `json:"hit_rate"`
	Requests    int64     `json:"total_requests"`
	Entries     int       `json:"total_entries"`
	MemoryUsage int64     `json:"memory_usage"`
}

// TrendRecorder keeps a bounded history of overview samples.
type TrendRecorder struct {
	agg *Aggregator

	mu     sync.Mutex
	points []TrendPoint
	size   int
}

// NewTrendRecorder creates a recorder keeping the last size samples.
func NewTrendRecorder(agg *Aggregator, size int) *TrendRecorder {
	if size <= 0 {
		size = DefaultTrendPoints
	}
	return &TrendRecorder{agg: agg, size: size}
}

// Point returns a trend point for the current overview without recording it.
func (a *Aggregator) Point() TrendPoint {
	o := a.Overview()
	return TrendPoint{
		At:          a.now(),
		HitRate:     o.OverallHitRate,
		Requests:    o.TotalRequests,
		Entries:     o.TotalEntries,
		MemoryUsage: o.TotalMemoryUsage,
	}
}

// Sample appends the current overview.
func (t *TrendRecorder) Sample() TrendPoint {
	p := t.agg.Point()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.points) == t.size {
		copy(t.points, t.points[1:])
		t.points = t.points[:t.size-1]
	}
	t.points = append(t.points, p)
	return p
}

// Points returns the samples, oldest first.
func (t *TrendRecorder) Points() []TrendPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TrendPoint{}, t.points...)
}
