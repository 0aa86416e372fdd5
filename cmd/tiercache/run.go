package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/tiercache/internal/analytics"
	"github.com/eugener/tiercache/internal/browser"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/config"
	"github.com/eugener/tiercache/internal/dialer"
	"github.com/eugener/tiercache/internal/health"
	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/ratelimit"
	"github.com/eugener/tiercache/internal/server"
	"github.com/eugener/tiercache/internal/storage"
	"github.com/eugener/tiercache/internal/storage/redis"
	"github.com/eugener/tiercache/internal/storage/sqlite"
	"github.com/eugener/tiercache/internal/telemetry"
	"github.com/eugener/tiercache/internal/warming"
	"github.com/eugener/tiercache/internal/worker"
)

const (
	dnsRefreshInterval   = 5 * time.Minute
	limiterEvictInterval = 5 * time.Minute
	limiterIdle          = 30 * time.Minute
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	slog.Info("starting tiercache", "version", version, "addr", cfg.Server.Addr, "durable", cfg.Durable.Driver)

	ctx := context.Background()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			Endpoint:       cfg.Telemetry.Tracing.Endpoint,
			SampleRate:     cfg.Telemetry.Tracing.SampleRate,
			ServiceVersion: version,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	// Durable tier
	resolver := &dnscache.Resolver{}
	durable, err := openDurable(ctx, cfg.Durable, resolver)
	if err != nil {
		return err
	}
	if durable != nil {
		defer durable.Close()
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(promReg)
		metricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}

	// Cache registry
	var breakers *circuitbreaker.Registry
	if cfg.Breaker.Enabled {
		breakers = circuitbreaker.NewRegistry(cfg.BreakerConfig())
	}
	invLog := invalidation.NewLog(cfg.Analytics.InvalidationLog)
	opts := cfg.CacheOptions()
	opts.Metrics = metrics
	opts.Breakers = breakers
	opts.OnInvalidate = invLog.Record
	reg := cache.NewRegistry(durable, opts)

	if err := config.Bootstrap(ctx, cfg, reg); err != nil {
		return err
	}

	// Wire services
	agg := analytics.NewAggregator(reg, invLog, cfg.Model())
	trends := analytics.NewTrendRecorder(agg, cfg.Analytics.TrendPoints)

	client := &http.Client{Transport: dialer.NewTransport(resolver), Timeout: cfg.Warming.Timeout}
	fetchers := make([]warming.Fetcher, 0, len(cfg.Warming.Sources))
	for _, src := range cfg.Warming.Sources {
		fetchers = append(fetchers, warming.HTTPFetcher(client, src))
	}
	warmer := warming.NewCoordinator(reg, cfg.Warming.Timeout, metrics, fetchers...)
	dispatcher := worker.NewInvalidationDispatcher(reg, cfg.Rules(), metrics)

	runner := worker.NewRunner(
		worker.NewExpirySweeper(reg, durable, worker.SweeperOptions{
			Interval:     cfg.Cache.SweepInterval,
			PurgeTimeout: cfg.Durable.MirrorTimeout,
			Breakers:     breakers,
			Metrics:      metrics,
		}),
		dispatcher,
		worker.NewTrendSampler(trends, cfg.Analytics.TrendInterval),
		worker.NewDNSRefresher(resolver, dnsRefreshInterval),
	)
	if cfg.Warming.Interval > 0 && len(fetchers) > 0 {
		runner.Add(worker.NewWarmer(warmer, cfg.Warming.Interval))
	}
	var limiter *ratelimit.Registry
	if limits, ok := cfg.RateLimits(); ok {
		limiter = ratelimit.NewRegistry(limits)
		runner.Add(worker.NewLimiterEvictor(limiter, limiterEvictInterval, limiterIdle))
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Registry:       reg,
		Health:         health.NewEvaluator(cfg.Thresholds(), breakers),
		Analytics:      agg,
		Trends:         trends,
		Browser:        browser.New(reg),
		Warming:        warmer,
		Events:         dispatcher,
		ReadyCheck:     reg.Ping,
		AdminToken:     cfg.Server.AdminToken,
		RateLimiter:    limiter,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workerErr := make(chan error, 1)
	go func() { workerErr <- runner.Run(workerCtx) }()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("tiercache ready", "addr", cfg.Server.Addr, "namespaces", len(reg.Namespaces()))

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		runErr = err
	case err := <-workerErr:
		runErr = fmt.Errorf("worker: %w", err)
		workerErr = nil
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	stopWorkers()
	if workerErr != nil {
		<-workerErr
	}
	if err := reg.Flush(shutdownCtx); err != nil {
		slog.Warn("pending durable writes not flushed", "error", err)
	}

	slog.Info("tiercache stopped")
	return runErr
}

// openDurable returns the configured durable tier, or nil for memory-only.
func openDurable(ctx context.Context, cfg config.DurableConfig, resolver *dnscache.Resolver) (storage.Durable, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.SQLite.DSN)
	case config.DriverRedis:
		return redis.New(ctx, redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			PoolSize:  cfg.Redis.PoolSize,
			Resolver:  resolver,
		})
	default:
		return nil, nil
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	} else {
		h = slog.NewTextHandler(os.Stderr, hopts)
	}
	slog.SetDefault(slog.New(h))
}
