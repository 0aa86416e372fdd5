package sqlite

import (
	"errors"
	"strings"
	"testing"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.Context(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKVRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	if err := s.Put(ctx, "content/post:1", []byte(`{"title":"Hello"}`), time.Minute); err != nil {
		t.Fatal("put:", err)
	}
	val, expiresAt, err := s.Get(ctx, "content/post:1")
	if err != nil {
		t.Fatal("get:", err)
	}
	if string(val) != `{"title":"Hello"}` {
		t.Errorf("value = %s", val)
	}
	if expiresAt.IsZero() || time.Until(expiresAt) > time.Minute {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	// Overwrite keeps one row.
	if err := s.Put(ctx, "content/post:1", []byte(`2`), 0); err != nil {
		t.Fatal("put:", err)
	}
	val, expiresAt, err = s.Get(ctx, "content/post:1")
	if err != nil || string(val) != "2" || !expiresAt.IsZero() {
		t.Fatalf("after overwrite = %s, %v, %v", val, expiresAt, err)
	}

	if err := s.Delete(ctx, "content/post:1"); err != nil {
		t.Fatal("delete:", err)
	}
	if _, _, err := s.Get(ctx, "content/post:1"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "content/post:1"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestKVExpiry(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Put(ctx, "a/short", []byte(`1`), time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "a/long", []byte(`2`), time.Hour); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Second)
	if _, _, err := s.Get(ctx, "a/short"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Fatalf("expired get err = %v", err)
	}
	keys, err := s.List(ctx, "a/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "a/long" {
		t.Fatalf("List = %v, want [a/long]", keys)
	}

	n, err := s.PurgeExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired = %d, %v; want 1", n, err)
	}
}

func TestKVListPrefix(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	for _, k := range []string{"content/b", "content/a", "contents/x", "media/a"} {
		if err := s.Put(ctx, k, []byte(`0`), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.List(ctx, "content/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "content/a" || keys[1] != "content/b" {
		t.Fatalf("List = %v", keys)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(t.Context()); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	a, err := New(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.Put(ctx, "content/x", []byte(`1`), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Get(ctx, "content/x"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Errorf("second in-memory store saw the first one's data: %v", err)
	}
	if _, _, err := a.Get(ctx, "content/x"); err != nil {
		t.Errorf("read pool cannot see the write pool's data: %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		prefix string
	}{
		{"cache.db", "file:cache.db?_pragma="},
		{"file:/var/lib/cache.db", "file:/var/lib/cache.db?_pragma="},
		{"file:cache.db?mode=rwc", "file:cache.db?mode=rwc&_pragma="},
		{":memory:", "file:mem-"},
	}
	for _, tt := range tests {
		if got := buildDSN(tt.in); !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("buildDSN(%q) = %q, want prefix %q", tt.in, got, tt.prefix)
		}
	}
}
