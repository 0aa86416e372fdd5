package config

import (
	"context"
	"log/slog"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/analytics"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/health"
	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/ratelimit"
)

// Bootstrap registers the configured namespaces, then any default namespace
// the file did not override. Configured entries win because the first
// registration of a namespace fixes its policy.
func Bootstrap(ctx context.Context, cfg *Config, reg *cache.Registry) error {
	for _, nc := range cfg.NamespaceConfigs() {
		if _, err := reg.Service(nc); err != nil {
			return err
		}
		slog.LogAttrs(ctx, slog.LevelInfo, "registered namespace",
			slog.String("namespace", nc.Namespace),
			slog.Duration("ttl", nc.TTL),
		)
	}
	for _, ns := range tiercache.DefaultNamespaces() {
		if _, err := reg.Service(tiercache.DefaultConfigs[ns]); err != nil {
			return err
		}
	}
	return nil
}

// NamespaceConfigs converts the declared namespaces.
func (c *Config) NamespaceConfigs() []tiercache.CacheConfig {
	out := make([]tiercache.CacheConfig, 0, len(c.Cache.Namespaces))
	for _, ns := range c.Cache.Namespaces {
		out = append(out, tiercache.CacheConfig{
			Namespace:  ns.Namespace,
			TTL:        time.Duration(ns.TTLs) * time.Second,
			MaxEntries: ns.MaxEntries,
			MaxBytes:   ns.MaxBytes,
		})
	}
	return out
}

// CacheOptions returns the registry options derived from the file. Metrics,
// breakers and hooks are wired by the caller.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		DefaultMaxEntries: c.Cache.DefaultMaxEntries,
		DefaultMaxBytes:   c.Cache.DefaultMaxBytes,
		DurableTimeout:    c.Durable.Timeout,
		MirrorTimeout:     c.Durable.MirrorTimeout,
	}
}

// BreakerConfig returns the circuit breaker settings.
func (c *Config) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		ErrorThreshold: c.Breaker.ErrorThreshold,
		MinSamples:     c.Breaker.MinSamples,
		WindowSeconds:  c.Breaker.WindowSeconds,
		OpenTimeout:    c.Breaker.OpenTimeout,
	}
}

// Thresholds returns the health thresholds.
func (c *Config) Thresholds() health.Thresholds {
	return health.Thresholds{
		HealthyHitRate:  c.Health.HealthyHitRate,
		WarningHitRate:  c.Health.WarningHitRate,
		MinSamples:      c.Health.MinSamples,
		MaxMemoryBytes:  c.Health.MaxMemoryBytes,
		WarnMemoryBytes: c.Health.WarnMemoryBytes,
		MaxEntries:      c.Health.MaxEntries,
	}
}

// Model returns the analytics performance model.
func (c *Config) Model() analytics.Model {
	return analytics.Model{
		AvgBackendLatency: c.Analytics.AvgBackendLatency,
		CostPerQuery:      c.Analytics.CostPerQuery,
		SizeScale:         c.Analytics.SizeScale,
	}
}

// Rules returns the default invalidation rules plus the configured actions.
func (c *Config) Rules() invalidation.Rules {
	return invalidation.DefaultRules().Merge(c.Invalidation.Rules)
}

// RateLimits returns the per-client admin budgets. ok is false when both
// are unlimited.
func (c *Config) RateLimits() (limits ratelimit.Limits, ok bool) {
	limits = ratelimit.Limits{RPM: c.Server.AdminRPM, WPM: c.Server.AdminWPM}
	return limits, limits.RPM > 0 || limits.WPM > 0
}
