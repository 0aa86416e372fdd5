package cache

import (
	"errors"
	"testing"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/testutil"
)

func TestRegistry_SameInstanceAcrossLookups(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testutil.NewFakeDurable(), Options{})
	ctx := t.Context()

	cfg := tiercache.DefaultConfigs["content"]
	if cfg.TTL != 300*time.Second {
		t.Fatalf("content TTL = %v, want 300s", cfg.TTL)
	}

	a, err := reg.Service(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Set(ctx, "post:1", map[string]string{"title": "Hello"}); err != nil {
		t.Fatal(err)
	}

	b, err := reg.Service(tiercache.DefaultConfigs["content"])
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("second lookup returned a different instance")
	}
	got, ok, err := GetAs[map[string]string](ctx, b, "post:1")
	if err != nil || !ok || got["title"] != "Hello" {
		t.Fatalf("GetAs = %v, %v, %v", got, ok, err)
	}
}

func TestRegistry_FirstConfigWins(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil, Options{})

	first := reg.MustService(tiercache.CacheConfig{Namespace: "x", TTL: time.Minute})
	second := reg.MustService(tiercache.CacheConfig{Namespace: "x", TTL: time.Hour, MaxEntries: 5})
	if first != second {
		t.Fatal("different instances for one namespace")
	}
	if got := second.Config().TTL; got != time.Minute {
		t.Fatalf("TTL = %v, want first registration's 1m", got)
	}
	if got := second.Config().MaxEntries; got != DefaultMaxEntries {
		t.Fatalf("MaxEntries = %d, want default %d", got, DefaultMaxEntries)
	}
}

func TestRegistry_InvalidConfig(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil, Options{})

	if _, err := reg.Service(tiercache.CacheConfig{TTL: time.Minute}); !errors.Is(err, tiercache.ErrConfiguration) {
		t.Fatalf("empty namespace err = %v", err)
	}
	if _, err := reg.Service(tiercache.CacheConfig{Namespace: "x"}); !errors.Is(err, tiercache.ErrConfiguration) {
		t.Fatalf("zero TTL err = %v", err)
	}
	if _, ok := reg.Lookup("x"); ok {
		t.Fatal("invalid config was registered")
	}
}

func TestRegistry_ClearAllAndReset(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil, Options{})
	ctx := t.Context()

	for _, ns := range []string{"user", "media", "api"} {
		svc := reg.MustService(tiercache.DefaultConfigs[ns])
		if err := svc.Set(ctx, "k", ns); err != nil {
			t.Fatal(err)
		}
	}
	if got := reg.Namespaces(); len(got) != 3 || got[0] != "api" || got[2] != "user" {
		t.Fatalf("Namespaces = %v", got)
	}

	if err := reg.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	for _, svc := range reg.Services() {
		if svc.Len() != 0 {
			t.Errorf("%s has %d entries after ClearAll", svc.Namespace(), svc.Len())
		}
	}

	if err := reg.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if len(reg.Namespaces()) != 0 {
		t.Fatal("Reset left namespaces registered")
	}
	if err := reg.Ping(ctx); err != nil {
		t.Fatalf("memory-only Ping: %v", err)
	}
}
