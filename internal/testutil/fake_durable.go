// Package testutil provides configurable test fakes for cache interfaces.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
)

type record struct {
	val       []byte
	expiresAt time.Time
}

// FakeDurable is an in-memory storage.Durable with failure and latency
// injection.
type FakeDurable struct {
	mu      sync.Mutex
	records map[string]record
	err     error
	latency time.Duration
	calls   map[string]int

	// Now drives expiry. Defaults to time.Now.
	Now func() time.Time
}

// NewFakeDurable returns an empty FakeDurable.
func NewFakeDurable() *FakeDurable {
	return &FakeDurable{
		records: make(map[string]record),
		calls:   make(map[string]int),
		Now:     time.Now,
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (f *FakeDurable) FailWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// SetLatency delays every subsequent call by d, or until ctx is done.
func (f *FakeDurable) SetLatency(d time.Duration) {
	f.mu.Lock()
	f.latency = d
	f.mu.Unlock()
}

// Calls returns how many times op ("get", "put", "delete", "list", "ping")
// was invoked.
func (f *FakeDurable) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Keys returns every stored key, sorted, including expired ones.
func (f *FakeDurable) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.records))
	for k := range f.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Seed stores a raw value directly, bypassing failure injection.
func (f *FakeDurable) Seed(key string, val []byte, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = f.newRecord(val, ttl)
}

func (f *FakeDurable) newRecord(val []byte, ttl time.Duration) record {
	r := record{val: append([]byte(nil), val...)}
	if ttl > 0 {
		r.expiresAt = f.Now().Add(ttl)
	}
	return r
}

// enter records the call and applies injected latency and failure.
func (f *FakeDurable) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	latency, err := f.latency, f.err
	f.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Get returns the live value for key.
func (f *FakeDurable) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	if err := f.enter(ctx, "get"); err != nil {
		return nil, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key]
	if !ok {
		return nil, time.Time{}, tiercache.ErrNotFound
	}
	if !r.expiresAt.IsZero() && !f.Now().Before(r.expiresAt) {
		delete(f.records, key)
		return nil, time.Time{}, tiercache.ErrNotFound
	}
	return append([]byte(nil), r.val...), r.expiresAt, nil
}

// Put stores val for ttl.
func (f *FakeDurable) Put(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := f.enter(ctx, "put"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = f.newRecord(val, ttl)
	return nil
}

// Delete removes key.
func (f *FakeDurable) Delete(ctx context.Context, key string) error {
	if err := f.enter(ctx, "delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, key)
	return nil
}

// List returns live keys with the given prefix, sorted.
func (f *FakeDurable) List(ctx context.Context, prefix string) ([]string, error) {
	if err := f.enter(ctx, "list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.Now()
	var out []string
	for k, r := range f.records {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !r.expiresAt.IsZero() && !now.Before(r.expiresAt) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Ping reports the injected failure, if any.
func (f *FakeDurable) Ping(ctx context.Context) error {
	return f.enter(ctx, "ping")
}

// Close is a no-op.
func (f *FakeDurable) Close() error { return nil }
