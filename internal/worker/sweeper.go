package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/storage"
	"github.com/eugener/tiercache/internal/telemetry"
)

// Sweeper defaults.
const (
	DefaultSweepInterval = time.Minute
	DefaultPurgeTimeout  = 5 * time.Second
)

// SweeperOptions configures an ExpirySweeper. Zero values take the defaults;
// Breakers and Metrics may be nil.
type SweeperOptions struct {
	Interval     time.Duration
	PurgeTimeout time.Duration
	Breakers     *circuitbreaker.Registry // durable purge skipped while any breaker is open
	Metrics      *telemetry.Metrics
}

// ExpirySweeper periodically drops expired entries from every namespace and
// refreshes the per-namespace entry gauge. When the durable tier implements
// storage.Purger its expired rows are removed too.
type ExpirySweeper struct {
	reg          *cache.Registry
	purger       storage.Purger
	interval     time.Duration
	purgeTimeout time.Duration
	breakers     *circuitbreaker.Registry
	metrics      *telemetry.Metrics
}

// NewExpirySweeper creates a sweeper. durable may be nil.
func NewExpirySweeper(reg *cache.Registry, durable storage.Durable, o SweeperOptions) *ExpirySweeper {
	if o.Interval <= 0 {
		o.Interval = DefaultSweepInterval
	}
	if o.PurgeTimeout <= 0 {
		o.PurgeTimeout = DefaultPurgeTimeout
	}
	w := &ExpirySweeper{
		reg:          reg,
		interval:     o.Interval,
		purgeTimeout: o.PurgeTimeout,
		breakers:     o.Breakers,
		metrics:      o.Metrics,
	}
	if p, ok := durable.(storage.Purger); ok {
		w.purger = p
	}
	return w
}

// Name returns the worker identifier.
func (w *ExpirySweeper) Name() string { return "expiry_sweeper" }

// Run sweeps on every tick until ctx is cancelled.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of memory entries removed.
func (w *ExpirySweeper) Sweep(ctx context.Context) int {
	var purged int
	for _, svc := range w.reg.Services() {
		purged += svc.PurgeExpired()
		if w.metrics != nil {
			w.metrics.Entries.WithLabelValues(svc.Namespace()).Set(float64(svc.Len()))
		}
	}

	rows := w.purgeDurable(ctx)
	if purged > 0 || rows > 0 {
		slog.Debug("expired entries swept", "memory", purged, "durable", rows)
	}
	return purged
}

func (w *ExpirySweeper) purgeDurable(ctx context.Context) int {
	if w.purger == nil || w.breakerOpen() {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, w.purgeTimeout)
	defer cancel()
	n, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "durable purge failed",
			slog.String("error", err.Error()),
		)
	}
	return n
}

func (w *ExpirySweeper) breakerOpen() bool {
	if w.breakers == nil {
		return false
	}
	for _, st := range w.breakers.States() {
		if st == circuitbreaker.StateOpen {
			return true
		}
	}
	return false
}
