package invalidation

import (
	"sync"
	"time"
)

// DefaultLogSize is the number of recent invalidations kept.
const DefaultLogSize = 100

// Record is one completed pattern invalidation.
type Record struct {
	Namespace string    `json:"namespace"`
	Pattern   string    `json:"pattern"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

// Summary aggregates the log for analytics.
type Summary struct {
	TotalInvalidations   int64      `json:"total_invalidations"`
	TotalKeysInvalidated int64      `json:"total_keys_invalidated"`
	LastInvalidation     *time.Time `json:"last_invalidation"`
	Recent               []Record   `json:"recent"`
}

// Log is a bounded ring of recent invalidations plus running totals. It is
// safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	ring  []Record
	next  int
	full  bool
	total int64
	keys  int64
	now   func() time.Time
}

// NewLog creates a log keeping the last size records.
func NewLog(size int) *Log {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &Log{ring: make([]Record, size), now: time.Now}
}

// Record appends an invalidation. Its signature matches cache.InvalidationHook.
func (l *Log) Record(namespace, pattern string, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = Record{Namespace: namespace, Pattern: pattern, Count: count, At: l.now()}
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	l.keys += int64(count)
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (l *Log) Recent(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recentLocked(limit)
}

func (l *Log) recentLocked(limit int) []Record {
	n := l.next
	if l.full {
		n = len(l.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, l.ring[(l.next-i+len(l.ring))%len(l.ring)])
	}
	return out
}

// Summary returns totals and the most recent records.
func (l *Log) Summary(recent int) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Summary{
		TotalInvalidations:   l.total,
		TotalKeysInvalidated: l.keys,
		Recent:               l.recentLocked(recent),
	}
	if len(s.Recent) > 0 {
		at := s.Recent[0].At
		s.LastInvalidation = &at
	}
	return s
}
