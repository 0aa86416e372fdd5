package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/maypok86/otter/v2"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/keys"
)

// Memory is the process-local tier: a W-TinyLFU cache backed by otter.
// Entries carry their own TTL; expired entries read as misses and are
// removed on access.
type Memory struct {
	cache *otter.Cache[string, tiercache.Entry]
}

// NewMemory creates a memory tier holding at most maxEntries entries whose
// keys and values total at most maxBytes. Either bound may be 0 (unbounded),
// not both.
func NewMemory(maxEntries int, maxBytes int64) (*Memory, error) {
	opts := &otter.Options[string, tiercache.Entry]{
		ExpiryCalculator: otter.ExpiryWritingFunc(func(e otter.Entry[string, tiercache.Entry]) time.Duration {
			return e.Value.TTL
		}),
	}
	switch {
	case maxBytes <= 0:
		opts.MaximumSize = maxEntries
	default:
		// otter takes one bound, so every entry weighs at least
		// maxBytes/maxEntries; that caps the count as well.
		var floor uint64
		if maxEntries > 0 {
			floor = uint64(maxBytes+int64(maxEntries)-1) / uint64(maxEntries)
		}
		opts.MaximumWeight = uint64(maxBytes)
		opts.Weigher = func(key string, e tiercache.Entry) uint32 {
			return uint32(min(max(uint64(len(key)+e.Size()), floor), math.MaxUint32))
		}
	}
	c, err := otter.New[string, tiercache.Entry](opts)
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get returns the entry for key if present and not expired at now.
func (m *Memory) Get(key string, now time.Time) (tiercache.Entry, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return tiercache.Entry{}, false
	}
	if e.Expired(now) {
		m.cache.Invalidate(key)
		return tiercache.Entry{}, false
	}
	return e, true
}

// Set stores an entry, replacing any previous value for its key.
func (m *Memory) Set(e tiercache.Entry) {
	m.cache.Set(e.Key, e)
}

// Delete removes key and reports whether it was present.
func (m *Memory) Delete(key string) bool {
	_, ok := m.cache.Invalidate(key)
	return ok
}

// Purge removes every entry.
func (m *Memory) Purge() {
	m.cache.InvalidateAll()
}

// DeleteMatching removes every key accepted by match and returns them.
func (m *Memory) DeleteMatching(match keys.Matcher) []string {
	var removed []string
	for k := range m.cache.Keys() {
		if match.Match(k) {
			if _, ok := m.cache.Invalidate(k); ok {
				removed = append(removed, k)
			}
		}
	}
	return removed
}

// Entries returns a snapshot of the entries still live at now.
func (m *Memory) Entries(now time.Time) []tiercache.Entry {
	out := make([]tiercache.Entry, 0, m.cache.EstimatedSize())
	for _, e := range m.cache.All() {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// PurgeExpired drops entries past their TTL at now and returns how many.
func (m *Memory) PurgeExpired(now time.Time) int {
	var n int
	for k, e := range m.cache.All() {
		if e.Expired(now) {
			if _, ok := m.cache.Invalidate(k); ok {
				n++
			}
		}
	}
	return n
}

// Usage returns the entry count and the summed serialized size of live
// entries at now.
func (m *Memory) Usage(now time.Time) (count int, bytes int64) {
	for _, e := range m.cache.All() {
		if e.Expired(now) {
			continue
		}
		count++
		bytes += int64(e.Size())
	}
	return count, bytes
}
