package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/rs/dnscache"

	"github.com/eugener/tiercache/internal/analytics"
	"github.com/eugener/tiercache/internal/ratelimit"
	"github.com/eugener/tiercache/internal/warming"
)

// Periodic runs a function on a fixed interval.
type Periodic struct {
	name     string
	interval time.Duration
	initial  bool
	fn       func(ctx context.Context)
}

// NewPeriodic creates a Periodic worker. When initial is true fn also runs
// once at start.
func NewPeriodic(name string, interval time.Duration, initial bool, fn func(ctx context.Context)) *Periodic {
	return &Periodic{name: name, interval: interval, initial: initial, fn: fn}
}

// Name returns the worker identifier.
func (p *Periodic) Name() string { return p.name }

// Run calls fn on every tick until ctx is cancelled. A non-positive
// interval disables ticking.
func (p *Periodic) Run(ctx context.Context) error {
	if p.initial {
		p.fn(ctx)
	}
	if p.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.fn(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// NewTrendSampler records an analytics trend point every interval.
func NewTrendSampler(rec *analytics.TrendRecorder, interval time.Duration) *Periodic {
	return NewPeriodic("trend_sampler", interval, true, func(context.Context) {
		rec.Sample()
	})
}

// NewDNSRefresher refreshes cached DNS records every interval, dropping
// entries that were not used since the last refresh.
func NewDNSRefresher(r *dnscache.Resolver, interval time.Duration) *Periodic {
	return NewPeriodic("dns_refresh", interval, false, func(context.Context) {
		r.Refresh(true)
	})
}

// NewLimiterEvictor drops admin rate limiters idle for longer than idle.
func NewLimiterEvictor(rl *ratelimit.Registry, interval, idle time.Duration) *Periodic {
	return NewPeriodic("ratelimit_evict", interval, false, func(ctx context.Context) {
		if n := rl.EvictStale(time.Now().Add(-idle)); n > 0 {
			slog.LogAttrs(ctx, slog.LevelDebug, "evicted idle rate limiters", slog.Int("count", n))
		}
	})
}

// NewWarmer runs WarmCommon at start and then every interval.
func NewWarmer(c *warming.Coordinator, interval time.Duration) *Periodic {
	return NewPeriodic("cache_warmer", interval, true, func(ctx context.Context) {
		res := c.WarmCommon(ctx)
		if res.Errors > 0 {
			slog.LogAttrs(ctx, slog.LevelWarn, "cache warming incomplete",
				slog.Int("warmed", res.Warmed),
				slog.Int("errors", res.Errors),
			)
		}
	})
}
