package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/telemetry"
	"github.com/eugener/tiercache/internal/testutil"
)

type purgingDurable struct {
	*testutil.FakeDurable
	purges atomic.Int32
	block  bool
}

func (p *purgingDurable) PurgeExpired(ctx context.Context) (int, error) {
	p.purges.Add(1)
	if p.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return 0, nil
}

func TestExpirySweeper_Sweep(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	now := func() time.Time { return at.Add(time.Duration(offset.Load())) }

	durable := &purgingDurable{FakeDurable: testutil.NewFakeDurable()}
	reg := cache.NewRegistry(durable, cache.Options{Now: now})
	content := reg.MustService(tiercache.DefaultConfigs["content"]) // 5m
	media := reg.MustService(tiercache.DefaultConfigs["media"])     // 1h
	ctx := t.Context()
	for _, k := range []string{"a", "b"} {
		if err := content.Set(ctx, k, k); err != nil {
			t.Fatal(err)
		}
	}
	if err := media.Set(ctx, "logo", "x"); err != nil {
		t.Fatal(err)
	}

	m := telemetry.NewMetrics(prometheus.NewRegistry())
	w := NewExpirySweeper(reg, durable, SweeperOptions{Metrics: m})
	offset.Store(int64(10 * time.Minute))

	if n := w.Sweep(ctx); n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}
	if durable.purges.Load() != 1 {
		t.Errorf("durable purges = %d, want 1", durable.purges.Load())
	}
	if got := promtest.ToFloat64(m.Entries.WithLabelValues("content")); got != 0 {
		t.Errorf("content gauge = %v, want 0", got)
	}
	if got := promtest.ToFloat64(m.Entries.WithLabelValues("media")); got != 1 {
		t.Errorf("media gauge = %v, want 1", got)
	}
}

func TestExpirySweeper_NonPurgingDurable(t *testing.T) {
	t.Parallel()
	reg := cache.NewRegistry(testutil.NewFakeDurable(), cache.Options{})
	w := NewExpirySweeper(reg, testutil.NewFakeDurable(), SweeperOptions{Interval: time.Hour})
	if w.purger != nil {
		t.Error("purger set for a durable without PurgeExpired")
	}
	if w.interval != time.Hour {
		t.Errorf("interval = %v", w.interval)
	}
	if n := w.Sweep(t.Context()); n != 0 {
		t.Errorf("purged = %d, want 0", n)
	}
}

func TestExpirySweeper_PurgeIsBounded(t *testing.T) {
	t.Parallel()
	durable := &purgingDurable{FakeDurable: testutil.NewFakeDurable(), block: true}
	reg := cache.NewRegistry(durable, cache.Options{})
	w := NewExpirySweeper(reg, durable, SweeperOptions{PurgeTimeout: 20 * time.Millisecond})

	start := time.Now()
	w.Sweep(t.Context())
	if d := time.Since(start); d > time.Second {
		t.Fatalf("Sweep blocked for %v on a hung durable purge", d)
	}
	if durable.purges.Load() != 1 {
		t.Errorf("durable purges = %d, want 1", durable.purges.Load())
	}
}

func TestExpirySweeper_SkipsPurgeWhileBreakerOpen(t *testing.T) {
	t.Parallel()
	durable := &purgingDurable{FakeDurable: testutil.NewFakeDurable()}
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	b := breakers.GetOrCreate("content")
	for range 50 {
		b.RecordError(1)
	}
	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", b.State())
	}
	reg := cache.NewRegistry(durable, cache.Options{})
	w := NewExpirySweeper(reg, durable, SweeperOptions{Breakers: breakers})

	w.Sweep(t.Context())
	if durable.purges.Load() != 0 {
		t.Errorf("durable purged %d times with an open breaker", durable.purges.Load())
	}
}
