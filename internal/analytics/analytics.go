// Package analytics derives hit rates, a modeled performance estimate and
// per-namespace efficiency scores from the cache registry.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/invalidation"
)

// Model holds the constants of the performance estimate. The numbers are
// assumptions about the backend, not measurements.
type Model struct {
	AvgBackendLatency time.Duration // cost of one avoided backend query
	CostPerQuery      float64       // dollars per avoided backend query
	SizeScale         int64         // entry size at which efficiency halves
}

// DefaultModel returns the default performance model.
func DefaultModel() Model {
	return Model{
		AvgBackendLatency: 48 * time.Millisecond,
		CostPerQuery:      0.000001,
		SizeScale:         1024,
	}
}

func (m Model) withDefaults() Model {
	d := DefaultModel()
	if m.AvgBackendLatency <= 0 {
		m.AvgBackendLatency = d.AvgBackendLatency
	}
	if m.CostPerQuery <= 0 {
		m.CostPerQuery = d.CostPerQuery
	}
	if m.SizeScale <= 0 {
		m.SizeScale = d.SizeScale
	}
	return m
}

// Overview aggregates every registered namespace.
type Overview struct {
	TotalHits        int64   `json:"total_hits"`
	TotalMisses      int64   `json:"total_misses"`
	TotalRequests    int64   `json:"total_requests"`
	OverallHitRate   float64 `json:"overall_hit_rate"`
	TotalEntries     int     `json:"total_entries"`
	TotalMemoryUsage int64   `json:"total_memory_usage"`
	MemoryUsageHuman string  `json:"memory_usage_human"`
	AvgEntrySize     int64   `json:"avg_entry_size"`
}

// Performance is the modeled benefit of the cache.
type Performance struct {
	DBQueriesAvoided     int64   `json:"db_queries_avoided"`
	TimeSavedMs          int64   `json:"time_saved_ms"`
	EstimatedCostSavings float64 `json:"estimated_cost_savings"`
}

// NamespaceAnalytics describes one namespace.
type NamespaceAnalytics struct {
	Namespace        string  `json:"namespace"`
	HitRate          float64 `json:"hit_rate"`
	TotalRequests    int64   `json:"total_requests"`
	MemoryHits       int64   `json:"memory_hits"`
	DurableHits      int64   `json:"durable_hits"`
	EntryCount       int     `json:"entry_count"`
	MemoryUsage      int64   `json:"memory_usage"`
	MemoryUsageHuman string  `json:"memory_usage_human"`
	AvgEntrySize     int64   `json:"avg_entry_size"`
	Efficiency       float64 `json:"efficiency"`
}

// Report is the full analytics document.
type Report struct {
	Overview     Overview             `json:"overview"`
	Performance  Performance          `json:"performance"`
	Namespaces   []NamespaceAnalytics `json:"namespaces"`
	Invalidation invalidation.Summary `json:"invalidation"`
}

// KeyInfo describes one entry in the top-keys listing.
type KeyInfo struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Size      int    `json:"size"`
	SizeHuman string `json:"size_human"`
	AgeMs     int64  `json:"age_ms"`
}

// Aggregator computes analytics over a registry.
type Aggregator struct {
	reg   *cache.Registry
	log   *invalidation.Log // nil = no invalidation summary
	model Model
	now   func() time.Time
}

// NewAggregator creates an aggregator. log may be nil.
func NewAggregator(reg *cache.Registry, log *invalidation.Log, model Model) *Aggregator {
	return &Aggregator{reg: reg, log: log, model: model.withDefaults(), now: time.Now}
}

// Overview sums stats and memory across every namespace.
func (a *Aggregator) Overview() Overview {
	var o Overview
	for _, svc := range a.reg.Services() {
		st := svc.Stats()
		o.TotalHits += st.Hits()
		o.TotalMisses += st.Misses()
		o.TotalEntries += svc.Len()
		o.TotalMemoryUsage += svc.MemoryUsage()
	}
	o.TotalRequests = o.TotalHits + o.TotalMisses
	o.OverallHitRate = tiercache.HitRate(o.TotalHits, o.TotalMisses)
	o.MemoryUsageHuman = humanize.IBytes(uint64(o.TotalMemoryUsage))
	if o.TotalEntries > 0 {
		o.AvgEntrySize = o.TotalMemoryUsage / int64(o.TotalEntries)
	}
	return o
}

// Performance applies the model to the total hit count.
func (a *Aggregator) Performance() Performance {
	var hits int64
	for _, svc := range a.reg.Services() {
		hits += svc.Stats().Hits()
	}
	return Performance{
		DBQueriesAvoided:     hits,
		TimeSavedMs:          hits * a.model.AvgBackendLatency.Milliseconds(),
		EstimatedCostSavings: float64(hits) * a.model.CostPerQuery,
	}
}

// Namespace computes analytics for one service.
func (a *Aggregator) Namespace(svc *cache.Service) NamespaceAnalytics {
	st := svc.Stats()
	count, usage := svc.Len(), svc.MemoryUsage()
	na := NamespaceAnalytics{
		Namespace:        svc.Namespace(),
		HitRate:          st.HitRate(),
		TotalRequests:    st.Requests(),
		MemoryHits:       st.MemoryHits,
		DurableHits:      st.DurableHits,
		EntryCount:       count,
		MemoryUsage:      usage,
		MemoryUsageHuman: humanize.IBytes(uint64(usage)),
	}
	if count > 0 {
		na.AvgEntrySize = usage / int64(count)
	}
	na.Efficiency = Efficiency(na.HitRate, na.AvgEntrySize, a.model.SizeScale)
	return na
}

// Namespaces computes analytics for every registered namespace.
func (a *Aggregator) Namespaces() []NamespaceAnalytics {
	svcs := a.reg.Services()
	out := make([]NamespaceAnalytics, 0, len(svcs))
	for _, svc := range svcs {
		out = append(out, a.Namespace(svc))
	}
	return out
}

// Report assembles the full analytics document.
func (a *Aggregator) Report() Report {
	r := Report{
		Overview:    a.Overview(),
		Performance: a.Performance(),
		Namespaces:  a.Namespaces(),
	}
	if a.log != nil {
		r.Invalidation = a.log.Summary(10)
	} else {
		r.Invalidation.Recent = []invalidation.Record{}
	}
	return r
}

// TopKeys returns the largest live entries across all namespaces.
func (a *Aggregator) TopKeys(limit int) []KeyInfo {
	now := a.now()
	var out []KeyInfo
	for _, svc := range a.reg.Services() {
		for _, e := range svc.Entries() {
			out = append(out, KeyInfo{
				Namespace: svc.Namespace(),
				Key:       e.Key,
				Size:      e.Size(),
				SizeHuman: humanize.IBytes(uint64(e.Size())),
				AgeMs:     max(0, now.Sub(e.StoredAt).Milliseconds()),
			})
		}
	}
	slices.SortFunc(out, func(x, y KeyInfo) int {
		if c := cmp.Compare(y.Size, x.Size); c != 0 {
			return c
		}
		return cmp.Compare(x.Namespace+"/"+x.Key, y.Namespace+"/"+y.Key)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Efficiency scores a namespace from 0 to 100: the hit rate discounted by
// average entry size, halving at scale bytes.
func Efficiency(hitRate float64, avgEntrySize, scale int64) float64 {
	if hitRate <= 0 || scale <= 0 {
		return 0
	}
	return hitRate * (1 / (1 + float64(avgEntrySize)/float64(scale))) * 100
}
