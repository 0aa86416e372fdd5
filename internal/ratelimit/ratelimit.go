// Package ratelimit implements per-client admin request limiting on
// per-minute token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits holds the per-minute request budgets for one client.
// A value of 0 means unlimited.
type Limits struct {
	RPM int64 // any admin request
	WPM int64 // mutating requests: clear, invalidate, warm, events
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

func perMinute(limit int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(limit)/60.0), int(limit))
}

// retryAfter returns seconds until one token is available at now.
func retryAfter(b *rate.Limiter, now time.Time) float64 {
	tokens := b.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	return (1 - tokens) / float64(b.Limit())
}

// Limiter holds the read and write buckets for a single client.
type Limiter struct {
	mu       sync.Mutex
	rpm      *rate.Limiter // nil if unlimited
	wpm      *rate.Limiter // nil if unlimited
	limits   Limits
	lastUsed time.Time
	now      func() time.Time
}

func newLimiter(limits Limits, now func() time.Time) *Limiter {
	l := &Limiter{limits: limits, lastUsed: now(), now: now}
	if limits.RPM > 0 {
		l.rpm = perMinute(limits.RPM)
	}
	if limits.WPM > 0 {
		l.wpm = perMinute(limits.WPM)
	}
	return l
}

// Allow consumes one request token, and one write token when write is set.
// A denied write does not spend the request token.
func (l *Limiter) Allow(write bool) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.lastUsed = now

	writes := write && l.wpm != nil
	if writes && l.wpm.TokensAt(now) < 1 {
		return Result{Limit: l.limits.WPM, RetryAfterSeconds: retryAfter(l.wpm, now)}
	}
	if l.rpm != nil {
		if !l.rpm.AllowN(now, 1) {
			return Result{Limit: l.limits.RPM, RetryAfterSeconds: retryAfter(l.rpm, now)}
		}
		if writes {
			l.wpm.AllowN(now, 1)
		}
		return Result{Allowed: true, Limit: l.limits.RPM, Remaining: int64(l.rpm.TokensAt(now))}
	}
	if writes {
		l.wpm.AllowN(now, 1)
		return Result{Allowed: true, Limit: l.limits.WPM, Remaining: int64(l.wpm.TokensAt(now))}
	}
	return Result{Allowed: true}
}

// Registry manages per-client Limiters sharing one set of limits.
type Registry struct {
	limits Limits

	mu       sync.RWMutex
	limiters map[string]*Limiter
	now      func() time.Time
}

// NewRegistry creates a registry applying limits to every client.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		limits:   limits,
		limiters: make(map[string]*Limiter),
		now:      time.Now,
	}
}

// Limits returns the configured limits.
func (r *Registry) Limits() Limits { return r.limits }

// Allow checks and consumes the budget of client.
func (r *Registry) Allow(client string, write bool) Result {
	return r.get(client).Allow(write)
}

func (r *Registry) get(client string) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[client]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[client]; ok {
		return l
	}
	l = newLimiter(r.limits, r.now)
	r.limiters[client] = l
	return l
}

// Len returns the number of tracked clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// EvictStale removes limiters not used since cutoff.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, l := range r.limiters {
		l.mu.Lock()
		stale := l.lastUsed.Before(cutoff)
		l.mu.Unlock()
		if stale {
			delete(r.limiters, k)
			evicted++
		}
	}
	return evicted
}
