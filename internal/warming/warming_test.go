package warming

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/telemetry"
)

func static(name, ns string, items ...Item) Fetcher {
	return Fetcher{Name: name, Namespace: ns, Fetch: func(context.Context) ([]Item, error) {
		return items, nil
	}}
}

func TestWarmCommon_ContinuesPastFailures(t *testing.T) {
	t.Parallel()
	reg := cache.NewRegistry(nil, cache.Options{})
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	failing := Fetcher{Name: "broken", Namespace: "media", Fetch: func(context.Context) ([]Item, error) {
		return nil, errors.New("backend down")
	}}
	c := NewCoordinator(reg, time.Second, m,
		static("collections", "collection", Item{Key: "item:1", Value: 1}, Item{Key: "list:all", Value: []int{1}}),
		failing,
		static("recent", "content", Item{Key: "item:9", Value: "nine"}),
	)

	res := c.WarmCommon(t.Context())
	if res.Warmed != 3 {
		t.Errorf("warmed = %d, want 3", res.Warmed)
	}
	if res.Errors != 1 {
		t.Errorf("errors = %d, want 1", res.Errors)
	}
	if len(res.Details) != 3 || res.Details[1].Error == "" || res.Details[1].Name != "broken" {
		t.Errorf("details = %+v", res.Details)
	}

	content, ok := reg.Lookup("content")
	if !ok {
		t.Fatal("content namespace not registered")
	}
	if _, ok := content.Entry("item:9"); !ok {
		t.Error("item:9 not warmed")
	}
	if got := promtest.ToFloat64(m.WarmedEntries.WithLabelValues("collection")); got != 2 {
		t.Errorf("warmed metric = %v, want 2", got)
	}
}

func TestWarmCommon_UnknownNamespace(t *testing.T) {
	t.Parallel()
	reg := cache.NewRegistry(nil, cache.Options{})
	c := NewCoordinator(reg, 0, nil, static("x", "nope", Item{Key: "k", Value: 1}))

	res := c.WarmCommon(t.Context())
	if res.Errors != 1 || res.Warmed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestWarmNamespace(t *testing.T) {
	t.Parallel()
	reg := cache.NewRegistry(nil, cache.Options{})
	c := NewCoordinator(reg, 0, nil)

	n, err := c.WarmNamespace(t.Context(), "config", []Item{
		{Key: "site", Value: map[string]string{"title": "x"}},
		{Key: "theme", Value: "dark"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}

	n, err = c.WarmNamespace(t.Context(), "config", []Item{})
	if err != nil || n != 0 {
		t.Errorf("empty entries: n=%d err=%v", n, err)
	}

	tests := []struct {
		name    string
		ns      string
		entries []Item
		want    error
	}{
		{"unknown namespace", "nope", []Item{{Key: "k", Value: 1}}, tiercache.ErrConfiguration},
		{"nil entries", "config", nil, tiercache.ErrValidation},
		{"empty key", "config", []Item{{Key: "", Value: 1}}, tiercache.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := c.WarmNamespace(t.Context(), tt.ns, tt.entries); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/content":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"items":[{"id":"a","title":"A"},{"id":"b","title":"B"},{"title":"no id"},{"id":"c"}]}}`))
		case "/bad":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := HTTPFetcher(srv.Client(), Source{
		Name: "recent", Namespace: "content", URL: srv.URL + "/content",
		ItemsPath: "data.items", ListKey: "list:recent", Limit: 3,
	})
	items, err := f.Fetch(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	// a, b, list (limit stops before c; the id-less item is only listed)
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3: %+v", len(items), items)
	}
	if items[0].Key != "item:a" || items[1].Key != "item:b" || items[2].Key != "list:recent" {
		t.Errorf("keys = %q %q %q", items[0].Key, items[1].Key, items[2].Key)
	}

	reg := cache.NewRegistry(nil, cache.Options{})
	c := NewCoordinator(reg, time.Second, nil, f)
	if res := c.WarmCommon(t.Context()); res.Warmed != 3 || res.Errors != 0 {
		t.Fatalf("result = %+v", res)
	}
	content, _ := reg.Lookup("content")
	e, ok := content.Entry("item:a")
	if !ok || string(e.Value) != `{"id":"a","title":"A"}` {
		t.Errorf("item:a = %s, %v", e.Value, ok)
	}
	list, _ := content.Entry("list:recent")
	if string(list.Value) != `[{"id":"a","title":"A"},{"id":"b","title":"B"},{"title":"no id"}]` {
		t.Errorf("list = %s", list.Value)
	}

	for _, path := range []string{"/bad", "/missing"} {
		f := HTTPFetcher(srv.Client(), Source{Name: path, Namespace: "content", URL: srv.URL + path})
		if _, err := f.Fetch(t.Context()); err == nil {
			t.Errorf("%s: expected error", path)
		}
	}
}

func TestExtractRootArray(t *testing.T) {
	t.Parallel()
	items, err := extract([]byte(`[{"slug":"x"},{"slug":"y"}]`), "", "slug", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].Key != "item:y" {
		t.Errorf("items = %+v", items)
	}
	if _, err := extract([]byte(`{"a":1}`), "a", "id", "", 0); err == nil {
		t.Error("expected error for non-array path")
	}
}
