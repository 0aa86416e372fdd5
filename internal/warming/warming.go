// Package warming pre-populates cache namespaces, either by running backend
// fetchers or from explicit entry lists.
package warming

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/telemetry"
)

// Item is one key/value pair to store.
type Item = cache.Item

// Fetcher loads items for one namespace from a backend.
type Fetcher struct {
	Name      string
	Namespace string
	Fetch     func(ctx context.Context) ([]Item, error)
}

// Detail reports the outcome of one fetcher.
type Detail struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
}

// Result summarizes a WarmCommon run. Failed fetchers are counted in Errors;
// the run itself still succeeds.
type Result struct {
	Warmed  int      `json:"warmed"`
	Errors  int      `json:"errors"`
	Details []Detail `json:"details"`
}

// DefaultTimeout bounds a WarmCommon run.
const DefaultTimeout = 30 * time.Second

// maxParallel caps concurrently running fetchers.
const maxParallel = 4

// Coordinator runs warming against a registry.
type Coordinator struct {
	reg      *cache.Registry
	fetchers []Fetcher
	timeout  time.Duration
	metrics  *telemetry.Metrics
}

// NewCoordinator creates a coordinator. metrics may be nil.
func NewCoordinator(reg *cache.Registry, timeout time.Duration, metrics *telemetry.Metrics, fetchers ...Fetcher) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{reg: reg, fetchers: fetchers, timeout: timeout, metrics: metrics}
}

// WarmCommon runs every fetcher in parallel and stores what they return.
func (c *Coordinator) WarmCommon(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	details := make([]Detail, len(c.fetchers))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, f := range c.fetchers {
		g.Go(func() error {
			details[i] = c.run(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Details: details}
	for _, d := range details {
		res.Warmed += d.Count
		if d.Error != "" {
			res.Errors++
		}
	}
	slog.Info("cache warmed", "entries", res.Warmed, "fetchers", len(details), "errors", res.Errors)
	return res
}

func (c *Coordinator) run(ctx context.Context, f Fetcher) Detail {
	d := Detail{Name: f.Name, Namespace: f.Namespace}
	fail := func(err error) Detail {
		d.Error = err.Error()
		slog.LogAttrs(ctx, slog.LevelWarn, "warming fetcher failed",
			slog.String("fetcher", f.Name),
			slog.String("namespace", f.Namespace),
			slog.String("error", err.Error()),
		)
		return d
	}

	svc, err := c.service(f.Namespace)
	if err != nil {
		return fail(err)
	}
	items, err := f.Fetch(ctx)
	if err != nil {
		return fail(err)
	}
	n, err := c.store(ctx, svc, items)
	d.Count = n
	if err != nil {
		return fail(err)
	}
	return d
}

// WarmNamespace stores entries directly into namespace and returns how many
// were stored. Namespaces not yet registered are created from the default
// configs.
func (c *Coordinator) WarmNamespace(ctx context.Context, namespace string, entries []Item) (int, error) {
	if entries == nil {
		return 0, fmt.Errorf("%w: entries must be an array", tiercache.ErrValidation)
	}
	svc, err := c.service(namespace)
	if err != nil {
		return 0, err
	}
	return c.store(ctx, svc, entries)
}

func (c *Coordinator) store(ctx context.Context, svc *cache.Service, items []Item) (int, error) {
	var n int
	for _, it := range items {
		if err := svc.Set(ctx, it.Key, it.Value); err != nil {
			c.count(svc.Namespace(), n)
			return n, fmt.Errorf("warm %s/%s: %w", svc.Namespace(), it.Key, err)
		}
		n++
	}
	c.count(svc.Namespace(), n)
	return n, nil
}

func (c *Coordinator) count(ns string, n int) {
	if c.metrics != nil && n > 0 {
		c.metrics.WarmedEntries.WithLabelValues(ns).Add(float64(n))
	}
}

func (c *Coordinator) service(ns string) (*cache.Service, error) {
	if svc, ok := c.reg.Lookup(ns); ok {
		return svc, nil
	}
	cfg, ok := tiercache.DefaultConfigs[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %q", tiercache.ErrConfiguration, ns)
	}
	return c.reg.Service(cfg)
}
