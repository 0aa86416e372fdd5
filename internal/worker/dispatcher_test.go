package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/telemetry"
)

func TestInvalidationDispatcher_AppliesEvents(t *testing.T) {
	t.Parallel()
	reg := cache.NewRegistry(nil, cache.Options{})
	content := reg.MustService(tiercache.DefaultConfigs["content"])
	for _, k := range []string{"item:1", "item:2"} {
		if err := content.Set(t.Context(), k, k); err != nil {
			t.Fatal(err)
		}
	}

	d := NewInvalidationDispatcher(reg, invalidation.DefaultRules(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	ev, ok := d.Publish(invalidation.Event{Name: "content.update", EntityID: "1"})
	if !ok {
		t.Fatal("event dropped")
	}
	if ev.ID == "" || ev.At.IsZero() {
		t.Errorf("event not stamped: %+v", ev)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := content.Entry("item:1"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("event not applied")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if _, ok := content.Entry("item:2"); !ok {
		t.Error("unrelated entry removed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestInvalidationDispatcher_DropsWhenFull(t *testing.T) {
	t.Parallel()
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	d := NewInvalidationDispatcher(cache.NewRegistry(nil, cache.Options{}), nil, m)

	for range eventChanSize {
		if _, ok := d.Publish(invalidation.Event{Name: "config.update"}); !ok {
			t.Fatal("dropped before queue was full")
		}
	}
	if _, ok := d.Publish(invalidation.Event{Name: "config.update"}); ok {
		t.Error("publish succeeded on a full queue")
	}
	if got := promtest.ToFloat64(m.EventQueueLength); got != eventChanSize {
		t.Errorf("queue gauge = %v, want %d", got, eventChanSize)
	}
}

func TestInvalidationDispatcher_DrainsOnShutdown(t *testing.T) {
	t.Parallel()
	reg := cache.NewRegistry(nil, cache.Options{})
	cfg := reg.MustService(tiercache.DefaultConfigs["config"])
	if err := cfg.Set(t.Context(), "config:site", 1); err != nil {
		t.Fatal(err)
	}

	d := NewInvalidationDispatcher(reg, invalidation.DefaultRules(), nil)
	d.Publish(invalidation.Event{Name: "config.update"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if cfg.Len() != 0 {
		t.Errorf("entries = %d, want 0 after drain", cfg.Len())
	}
}
