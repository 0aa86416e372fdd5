// Package tiercache defines domain types for the tiered namespace cache.
// This package has no project imports -- it is the dependency root.
package tiercache

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// --- Namespace configuration ---

// CacheConfig declares a namespace and its default policy. Values are
// immutable once registered.
type CacheConfig struct {
	Namespace  string        `json:"namespace"`
	TTL        time.Duration `json:"-"`
	MaxEntries int           `json:"max_entries,omitempty"` // 0 = registry default
	MaxBytes   int64         `json:"max_bytes,omitempty"`   // memory-tier byte cap; 0 = registry default
}

// TTLSeconds reports the TTL in whole seconds for JSON responses.
func (c CacheConfig) TTLSeconds() int64 { return int64(c.TTL / time.Second) }

// MarshalJSON renders the TTL in seconds alongside the other fields.
func (c CacheConfig) MarshalJSON() ([]byte, error) {
	type alias CacheConfig
	return json.Marshal(struct {
		alias
		TTLSeconds int64 `json:"ttl_s"`
	}{alias(c), c.TTLSeconds()})
}

// DefaultConfigs is the table of well-known namespaces. Other subsystems
// reference these instead of hardcoding TTLs.
var DefaultConfigs = map[string]CacheConfig{
	"api":        {Namespace: "api", TTL: 5 * time.Minute},
	"user":       {Namespace: "user", TTL: 10 * time.Minute},
	"content":    {Namespace: "content", TTL: 5 * time.Minute},
	"collection": {Namespace: "collection", TTL: 10 * time.Minute},
	"media":      {Namespace: "media", TTL: time.Hour},
	"config":     {Namespace: "config", TTL: 30 * time.Minute},
	"plugin":     {Namespace: "plugin", TTL: time.Hour},
	"session":    {Namespace: "session", TTL: 30 * time.Minute},
}

// DefaultNamespaces returns the names in DefaultConfigs, sorted.
func DefaultNamespaces() []string {
	out := make([]string, 0, len(DefaultConfigs))
	for ns := range DefaultConfigs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// --- Entries and lookups ---

// Source identifies the tier that served a lookup.
type Source string

const (
	SourceMemory  Source = "memory"
	SourceDurable Source = "durable"
	SourceMiss    Source = "miss"
)

// Entry is a live cache record. Value holds the serialized (JSON) form.
type Entry struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"-"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"-"`
	Tier     Source          `json:"tier"`
}

// ExpiresAt returns the instant the entry stops being served.
func (e Entry) ExpiresAt() time.Time { return e.StoredAt.Add(e.TTL) }

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt()) }

// Remaining returns the TTL left at now, never negative.
func (e Entry) Remaining(now time.Time) time.Duration {
	return max(0, e.ExpiresAt().Sub(now))
}

// Size is the serialized size of the value in bytes.
func (e Entry) Size() int { return len(e.Value) }

// Result describes a lookup together with the tier that served it.
type Result struct {
	Data     json.RawMessage `json:"data"`
	Source   Source          `json:"source"`
	Hit      bool            `json:"hit"`
	TTL      time.Duration   `json:"-"`
	StoredAt time.Time       `json:"-"`
}

// MarshalJSON emits ttl in seconds and timestamp in unix millis when known.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Data      json.RawMessage `json:"data"`
		Source    Source          `json:"source"`
		Hit       bool            `json:"hit"`
		TTL       *float64        `json:"ttl,omitempty"`
		Timestamp *int64          `json:"timestamp,omitempty"`
	}{Data: r.Data, Source: r.Source, Hit: r.Hit}
	if out.Data == nil {
		out.Data = json.RawMessage("null")
	}
	if r.TTL > 0 {
		ttl := r.TTL.Seconds()
		out.TTL = &ttl
	}
	if !r.StoredAt.IsZero() {
		ts := r.StoredAt.UnixMilli()
		out.Timestamp = &ts
	}
	return json.Marshal(out)
}

// --- Stats ---

// Stats is a snapshot of a namespace's lookup counters.
type Stats struct {
	MemoryHits    int64 `json:"memory_hits"`
	MemoryMisses  int64 `json:"memory_misses"`
	DurableHits   int64 `json:"durable_hits"`
	DurableMisses int64 `json:"durable_misses"`
}

// Hits returns hits across both tiers.
func (s Stats) Hits() int64 { return s.MemoryHits + s.DurableHits }

// Misses counts lookups that missed every tier. A memory miss followed by a
// durable hit is not a miss.
func (s Stats) Misses() int64 { return s.MemoryMisses - s.DurableHits }

// Requests returns the number of lookups recorded.
func (s Stats) Requests() int64 { return s.MemoryHits + s.MemoryMisses }

// HitRate returns hits/(hits+misses), or 0 when nothing has been recorded.
func (s Stats) HitRate() float64 {
	return HitRate(s.Hits(), s.Misses())
}

// HitRate returns hits/(hits+misses), or 0 when both are zero.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total <= 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
