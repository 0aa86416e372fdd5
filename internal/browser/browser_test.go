package browser

import (
	"errors"
	"testing"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fixture stores three content entries one second apart and one media entry.
func fixture(t *testing.T) *Browser {
	t.Helper()
	at := epoch
	now := func() time.Time { return at }
	reg := cache.NewRegistry(nil, cache.Options{Now: now})
	content := reg.MustService(tiercache.DefaultConfigs["content"])
	media := reg.MustService(tiercache.DefaultConfigs["media"])

	set := func(svc *cache.Service, key string, v any) {
		t.Helper()
		if err := svc.Set(t.Context(), key, v); err != nil {
			t.Fatal(err)
		}
		at = at.Add(time.Second)
	}
	set(content, "post:1", map[string]any{"title": "First", "tags": []string{"a", "b"}})
	set(content, "page:about", "x")
	set(content, "post:2", 2)
	set(media, "item:logo", "logo.png")

	b := New(reg)
	b.now = now
	return b
}

func keysOf(p Page) []string {
	out := make([]string, len(p.Entries))
	for i, l := range p.Entries {
		out[i] = l.Key
	}
	return out
}

func TestList(t *testing.T) {
	t.Parallel()
	b := fixture(t)

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"default age newest first", Query{Namespace: "content"}, []string{"post:2", "page:about", "post:1"}},
		{"size desc", Query{Namespace: "content", Sort: SortSize}, []string{"post:1", "page:about", "post:2"}},
		{"key asc", Query{Namespace: "content", Sort: SortKey}, []string{"page:about", "post:1", "post:2"}},
		{"search", Query{Namespace: "content", Search: "POST", Sort: SortKey}, []string{"post:1", "post:2"}},
		{"all namespaces", Query{Sort: SortKey}, []string{"item:logo", "page:about", "post:1", "post:2"}},
		{"no match", Query{Search: "zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := b.List(tt.q)
			if err != nil {
				t.Fatal(err)
			}
			got := keysOf(p)
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("keys = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestListFields(t *testing.T) {
	t.Parallel()
	b := fixture(t)
	p, err := b.List(Query{Namespace: "media"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Entries) != 1 {
		t.Fatalf("entries = %d", len(p.Entries))
	}
	l := p.Entries[0]
	// stored at epoch+3s, clock now at epoch+4s, media ttl 1h
	if l.AgeMs != 1000 {
		t.Errorf("age_ms = %d, want 1000", l.AgeMs)
	}
	if l.TTLSecs != 3599 {
		t.Errorf("ttl_s = %v, want 3599", l.TTLSecs)
	}
	if l.Size != len(`"logo.png"`) {
		t.Errorf("size = %d", l.Size)
	}
}

func TestListLimit(t *testing.T) {
	t.Parallel()
	b := fixture(t)
	p, err := b.List(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 4 || p.Showing != 2 || len(p.Entries) != 2 {
		t.Errorf("total=%d showing=%d entries=%d", p.Total, p.Showing, len(p.Entries))
	}
}

func TestListErrors(t *testing.T) {
	t.Parallel()
	b := fixture(t)
	if _, err := b.List(Query{Namespace: "nope"}); !errors.Is(err, tiercache.ErrNotFound) {
		t.Errorf("unknown namespace: err = %v", err)
	}
	if _, err := b.List(Query{Sort: "random"}); !errors.Is(err, tiercache.ErrValidation) {
		t.Errorf("unknown sort: err = %v", err)
	}
}

func TestEntry(t *testing.T) {
	t.Parallel()
	b := fixture(t)

	d, err := b.Entry("content", "post:1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Namespace != "content" || d.Key != "post:1" || !d.StoredAt.Equal(epoch) {
		t.Errorf("detail = %+v", d)
	}

	sel, err := d.Select("tags.1")
	if err != nil {
		t.Fatal(err)
	}
	if string(sel.Data) != `"b"` {
		t.Errorf("selected = %s", sel.Data)
	}
	if _, err := d.Select("missing.path"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Errorf("missing path: err = %v", err)
	}

	if _, err := b.Entry("content", "post:404"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Errorf("missing key: err = %v", err)
	}
	if _, err := b.Entry("nope", "post:1"); !errors.Is(err, tiercache.ErrNotFound) {
		t.Errorf("unknown namespace: err = %v", err)
	}
}
