package invalidation

import (
	"testing"
	"time"

	"github.com/eugener/tiercache/internal/cache"
)

func TestLog_RingAndSummary(t *testing.T) {
	t.Parallel()
	l := NewLog(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	if s := l.Summary(10); s.TotalInvalidations != 0 || s.LastInvalidation != nil || len(s.Recent) != 0 {
		t.Fatalf("empty summary = %+v", s)
	}

	for i, p := range []string{"a:*", "b:*", "c:*", "d:*"} {
		l.Record("content", p, i+1)
	}

	recent := l.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("recent len = %d, want 3", len(recent))
	}
	if recent[0].Pattern != "d:*" || recent[2].Pattern != "b:*" {
		t.Fatalf("recent order = %v", recent)
	}
	if got := l.Recent(1); len(got) != 1 || got[0].Pattern != "d:*" {
		t.Fatalf("Recent(1) = %v", got)
	}

	s := l.Summary(2)
	if s.TotalInvalidations != 4 || s.TotalKeysInvalidated != 10 {
		t.Fatalf("totals = %d/%d", s.TotalInvalidations, s.TotalKeysInvalidated)
	}
	if s.LastInvalidation == nil || !s.LastInvalidation.Equal(base.Add(4*time.Second)) {
		t.Fatalf("last = %v", s.LastInvalidation)
	}
	if len(s.Recent) != 2 {
		t.Fatalf("summary recent = %d", len(s.Recent))
	}
}

func TestLog_FedByServiceHook(t *testing.T) {
	t.Parallel()
	l := NewLog(10)
	reg := cache.NewRegistry(nil, cache.Options{OnInvalidate: l.Record})
	svc := seed(t, reg, "media", "list:1", "list:2")

	if _, err := svc.Invalidate(t.Context(), "list:*"); err != nil {
		t.Fatal(err)
	}
	rec := l.Recent(1)
	if len(rec) != 1 || rec[0].Namespace != "media" || rec[0].Count != 2 {
		t.Fatalf("recent = %+v", rec)
	}
}
