// Package circuitbreaker guards the durable tier. Each namespace gets a
// breaker fed by a sliding-window error rate; while it is open the cache
// skips the durable tier entirely and serves from memory, so an outage costs
// a state check instead of a timeout per lookup.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed lets every durable call through.
	StateClosed State = iota
	// StateOpen short-circuits durable calls.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

// String returns the state name used in health reports.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config holds breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate that trips the breaker
	MinSamples     int           // calls required before the breaker may open
	WindowSeconds  int           // sliding window length, 1..60
	OpenTimeout    time.Duration // time spent open before a probe is allowed
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinSamples:     5,
		WindowSeconds:  30,
		OpenTimeout:    10 * time.Second,
	}
}

type bucket struct {
	errors float64
	total  int
}

// window is a ring of one-second buckets.
type window struct {
	buckets [60]bucket
	size    int
	head    int
	headSec int64
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > 60 {
		seconds = 60
	}
	return window{size: seconds}
}

// advance rotates the ring to nowSec, zeroing buckets that fell out.
func (w *window) advance(nowSec int64) {
	if w.headSec == 0 {
		w.headSec = nowSec
		return
	}
	gap := nowSec - w.headSec
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.buckets[(w.head+1+i)%w.size] = bucket{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headSec = nowSec
}

func (w *window) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

func (w *window) rate(now time.Time) (rate float64, samples int) {
	w.advance(now.Unix())
	var errs float64
	for i := range w.size {
		errs += w.buckets[i].errors
		samples += w.buckets[i].total
	}
	if samples == 0 {
		return 0, 0
	}
	return errs / float64(samples), samples
}

func (w *window) reset() {
	*w = newWindow(w.size)
}

// Breaker is the per-namespace state machine.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	win      window
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, win: newWindow(cfg.WindowSeconds), now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a durable call may proceed.
func (b *Breaker) Allow() bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	default: // half-open: one probe at a time
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// RecordSuccess records a completed durable call.
func (b *Breaker) RecordSuccess() {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.record(0, now)
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probing = false
		b.win.reset()
	}
}

// RecordError records a failed durable call with the given weight.
func (b *Breaker) RecordError(weight float64) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.record(weight, now)

	switch b.state {
	case StateClosed:
		rate, samples := b.win.rate(now)
		if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
	}
}
