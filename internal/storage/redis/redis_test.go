package redis

import (
	"errors"
	"os"
	"testing"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
)

func TestMatchPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		want   string
	}{
		{"content/", "content/*"},
		{"tc:content/", "tc:content/*"},
		{"a*b/", `a\*b/*`},
		{"q?[x]/", `q\?\[x\]/*`},
		{"", "*"},
	}
	for _, tt := range tests {
		if got := matchPrefix(tt.prefix); got != tt.want {
			t.Errorf("matchPrefix(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

// TestStoreIntegration runs against a real server when TIERCACHE_TEST_REDIS_ADDR is set.
func TestStoreIntegration(t *testing.T) {
	addr := os.Getenv("TIERCACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TIERCACHE_TEST_REDIS_ADDR not set")
	}
	ctx := t.Context()
	prefix := "tiercache-test:" + time.Now().Format("150405.000000") + ":"
	s, err := New(ctx, Options{Addr: addr, KeyPrefix: prefix})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Put(ctx, "content/post:1", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "media/x", []byte(`1`), 0); err != nil {
		t.Fatal(err)
	}

	val, expiresAt, err := s.Get(ctx, "content/post:1")
	if err != nil || string(val) != `{"a":1}` || expiresAt.IsZero() {
		t.Fatalf("Get = %s, %v, %v", val, expiresAt, err)
	}
	keys, err := s.List(ctx, "content/")
	if err != nil || len(keys) != 1 || keys[0] != "content/post:1" {
		t.Fatalf("List = %v, %v", keys, err)
	}

	for _, k := range []string{"content/post:1", "media/x"} {
		if err := s.Delete(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := s.Get(ctx, "content/post:1"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
}
