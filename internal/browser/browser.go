// Package browser exposes a read-only view of memory-tier entries for the
// admin surface.
package browser

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
)

// Sort orders.
const (
	SortAge  = "age"
	SortSize = "size"
	SortKey  = "key"
)

// DefaultLimit caps List results when Query.Limit is zero.
const DefaultLimit = 100

// Query selects entries to list. An empty Namespace lists every namespace.
type Query struct {
	Namespace string
	Search    string // case-insensitive key substring
	Sort      string // age (default), size or key
	Limit     int    // 0 = DefaultLimit, negative = unlimited
}

// Listing is one row of a List result.
type Listing struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	AgeMs     int64     `json:"age_ms"`
	ExpiresAt time.Time `json:"expires_at"`
	TTLSecs   float64   `json:"ttl_s"`
}

// Page is a List result together with the number of matches before the
// limit was applied.
type Page struct {
	Entries []Listing `json:"entries"`
	Total   int       `json:"total"`
	Showing int       `json:"showing"`
}

// Detail is a single entry with its value.
type Detail struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	TTLSecs   float64         `json:"ttl_s"`
	Size      int             `json:"size"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Select narrows Data to the sub-document at a gjson path. An empty path
// returns d unchanged; a path matching nothing yields ErrNotFound.
func (d Detail) Select(path string) (Detail, error) {
	if path == "" {
		return d, nil
	}
	r := gjson.GetBytes(d.Data, path)
	if !r.Exists() {
		return d, fmt.Errorf("%w: path %q in %s/%s", tiercache.ErrNotFound, path, d.Namespace, d.Key)
	}
	d.Data = json.RawMessage(r.Raw)
	return d, nil
}

// Browser reads entries from a registry.
type Browser struct {
	reg *cache.Registry
	now func() time.Time
}

// New creates a Browser over reg.
func New(reg *cache.Registry) *Browser {
	return &Browser{reg: reg, now: time.Now}
}

// List returns live entries matching q.
func (b *Browser) List(q Query) (Page, error) {
	less, err := order(q.Sort)
	if err != nil {
		return Page{}, err
	}

	var services []*cache.Service
	if q.Namespace == "" {
		services = b.reg.Services()
	} else {
		svc, ok := b.reg.Lookup(q.Namespace)
		if !ok {
			return Page{}, fmt.Errorf("%w: namespace %q", tiercache.ErrNotFound, q.Namespace)
		}
		services = []*cache.Service{svc}
	}

	now := b.now()
	search := strings.ToLower(q.Search)
	out := []Listing{}
	for _, svc := range services {
		for _, e := range svc.Entries() {
			if search != "" && !strings.Contains(strings.ToLower(e.Key), search) {
				continue
			}
			out = append(out, Listing{
				Namespace: svc.Namespace(),
				Key:       e.Key,
				Size:      e.Size(),
				AgeMs:     now.Sub(e.StoredAt).Milliseconds(),
				ExpiresAt: e.ExpiresAt(),
				TTLSecs:   e.Remaining(now).Seconds(),
			})
		}
	}
	slices.SortStableFunc(out, less)

	page := Page{Total: len(out)}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	page.Entries = out
	page.Showing = len(out)
	return page, nil
}

// Entry returns a single live entry.
func (b *Browser) Entry(namespace, key string) (Detail, error) {
	svc, ok := b.reg.Lookup(namespace)
	if !ok {
		return Detail{}, fmt.Errorf("%w: namespace %q", tiercache.ErrNotFound, namespace)
	}
	e, ok := svc.Entry(key)
	if !ok {
		return Detail{}, fmt.Errorf("%w: entry %q not found in %s", tiercache.ErrNotFound, key, namespace)
	}
	return Detail{
		Namespace: namespace,
		Key:       e.Key,
		Data:      e.Value,
		TTLSecs:   e.Remaining(b.now()).Seconds(),
		Size:      e.Size(),
		StoredAt:  e.StoredAt,
		ExpiresAt: e.ExpiresAt(),
	}, nil
}

func order(sort string) (func(a, b Listing) int, error) {
	switch sort {
	case "", SortAge:
		return func(a, b Listing) int {
			return cmp.Or(cmp.Compare(a.AgeMs, b.AgeMs), cmp.Compare(a.Key, b.Key))
		}, nil
	case SortSize:
		return func(a, b Listing) int {
			return cmp.Or(cmp.Compare(b.Size, a.Size), cmp.Compare(a.Key, b.Key))
		}, nil
	case SortKey:
		return func(a, b Listing) int {
			return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.Namespace, b.Namespace))
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", tiercache.ErrValidation, sort)
	}
}
