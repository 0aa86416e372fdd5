// Package cache implements the namespaced two-tier cache: a process-local
// memory tier in front of a shared durable tier.
package cache

import (
	"time"

	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/telemetry"
)

// Defaults applied by NewRegistry when Options leaves a field zero.
const (
	DefaultMaxEntries     = 10_000
	DefaultMaxBytes       = 50 << 20
	DefaultDurableTimeout = 250 * time.Millisecond
	DefaultMirrorTimeout  = 5 * time.Second
)

// InvalidationHook observes completed pattern invalidations.
type InvalidationHook func(namespace, pattern string, count int)

// Options tune every Service created by a Registry.
type Options struct {
	DefaultMaxEntries int
	DefaultMaxBytes   int64
	DurableTimeout    time.Duration // bound on reads, deletes and listings
	MirrorTimeout     time.Duration // bound on detached writes and bulk removals

	Metrics      *telemetry.Metrics       // nil = no metrics
	Breakers     *circuitbreaker.Registry // nil = durable tier never short-circuited
	OnInvalidate InvalidationHook         // nil = not observed
	Now          func() time.Time         // nil = time.Now
}

func (o Options) withDefaults() Options {
	if o.DefaultMaxEntries <= 0 {
		o.DefaultMaxEntries = DefaultMaxEntries
	}
	if o.DefaultMaxBytes <= 0 {
		o.DefaultMaxBytes = DefaultMaxBytes
	}
	if o.DurableTimeout <= 0 {
		o.DurableTimeout = DefaultDurableTimeout
	}
	if o.MirrorTimeout <= 0 {
		o.MirrorTimeout = DefaultMirrorTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL overrides the namespace TTL for one write.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}
