package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/analytics"
	"github.com/eugener/tiercache/internal/browser"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/warming"
)

// service resolves a namespace for a mutating route, registering it from
// the default table on first use. Unknown namespaces are ErrConfiguration.
func (s *server) service(ns string) (*cache.Service, error) {
	if svc, ok := s.deps.Registry.Lookup(ns); ok {
		return svc, nil
	}
	if cfg, ok := tiercache.DefaultConfigs[ns]; ok {
		return s.deps.Registry.Service(cfg)
	}
	return nil, fmt.Errorf("%w: %s", tiercache.ErrConfiguration, ns)
}

// --- Stats and health ---

type namespaceStats struct {
	Namespace string                `json:"namespace"`
	Config    tiercache.CacheConfig `json:"config"`
	tiercache.Stats
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	TotalRequests int64   `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"`
	EntryCount    int     `json:"entry_count"`
	MemoryUsage   int64   `json:"memory_usage"`
}

func statsFor(svc *cache.Service) namespaceStats {
	st := svc.Stats()
	return namespaceStats{
		Namespace:     svc.Namespace(),
		Config:        svc.Config(),
		Stats:         st,
		Hits:          st.Hits(),
		Misses:        st.Misses(),
		TotalRequests: st.Requests(),
		HitRate:       st.HitRate(),
		EntryCount:    svc.Len(),
		MemoryUsage:   svc.MemoryUsage(),
	}
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]namespaceStats)
	for _, svc := range s.deps.Registry.Services() {
		out[svc.Namespace()] = statsFor(svc)
	}
	writeJSON(w, http.StatusOK, okResponse(out))
}

func (s *server) handleNamespaceStats(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	svc, ok := s.deps.Registry.Lookup(ns)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: namespace %q", tiercache.ErrNotFound, ns))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(statsFor(svc)))
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(s.deps.Health.Check(s.deps.Registry)))
}

// --- Clear and invalidate ---

func (s *server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"namespaces": s.deps.Registry.Namespaces(),
	}))
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(chi.URLParam(r, "namespace"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]any{"namespace": svc.Namespace()}))
}

type invalidateRequest struct {
	Pattern   string `json:"pattern"`
	Namespace string `json:"namespace"`
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Pattern == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("pattern is required"))
		return
	}

	services := s.deps.Registry.Services()
	if req.Namespace != "" {
		svc, err := s.service(req.Namespace)
		if err != nil {
			writeError(w, r, err)
			return
		}
		services = []*cache.Service{svc}
	}

	var total int
	for _, svc := range services {
		n, err := svc.Invalidate(r.Context(), req.Pattern)
		if err != nil {
			writeError(w, r, err)
			return
		}
		total += n
	}

	ns := req.Namespace
	if ns == "" {
		ns = "all"
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"invalidated": total,
		"pattern":     req.Pattern,
		"namespace":   ns,
	}))
}

// --- Browser ---

type browseResponse struct {
	browser.Page
	Namespace string `json:"namespace,omitempty"`
	Search    string `json:"search,omitempty"`
	SortBy    string `json:"sortBy,omitempty"`
}

func (s *server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := browser.Query{
		Namespace: q.Get("namespace"),
		Search:    q.Get("search"),
		Sort:      q.Get("sort"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse("limit must be a positive integer"))
			return
		}
		query.Limit = limit
	}

	page, err := s.deps.Browser.List(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(browseResponse{
		Page:      page,
		Namespace: query.Namespace,
		Search:    query.Search,
		SortBy:    query.Sort,
	}))
}

func (s *server) handleBrowseEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if k, err := url.PathUnescape(key); err == nil {
		key = k
	}
	d, err := s.deps.Browser.Entry(chi.URLParam(r, "namespace"), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if d, err = d.Select(r.URL.Query().Get("path")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(d))
}

// --- Analytics ---

func (s *server) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(s.deps.Analytics.Report()))
}

func (s *server) handleTrends(w http.ResponseWriter, _ *http.Request) {
	var points []analytics.TrendPoint
	if s.deps.Trends != nil {
		points = s.deps.Trends.Points()
	}
	if len(points) == 0 {
		points = []analytics.TrendPoint{s.deps.Analytics.Point()}
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"trends": points,
		"note":   "periodic samples of cumulative counters since start or last clear",
	}))
}

const defaultTopKeys = 10

func (s *server) handleTopKeys(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopKeys
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse("limit must be a positive integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"topKeys": s.deps.Analytics.TopKeys(limit),
		"note":    "largest live entries by serialized size; per-key access counts are not tracked",
	}))
}

// --- Warming ---

func (s *server) handleWarm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(s.deps.Warming.WarmCommon(r.Context())))
}

type warmRequest struct {
	Entries json.RawMessage `json:"entries"`
}

// warmEntry accepts the value under "value" or "data".
type warmEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Data  json.RawMessage `json:"data"`
}

func (s *server) handleWarmNamespace(w http.ResponseWriter, r *http.Request) {
	var req warmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var entries []warmEntry
	if len(req.Entries) == 0 || req.Entries[0] != '[' || json.Unmarshal(req.Entries, &entries) != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("entries must be an array"))
		return
	}

	items := make([]warming.Item, 0, len(entries))
	for _, e := range entries {
		v := e.Value
		if v == nil {
			v = e.Data
		}
		items = append(items, warming.Item{Key: e.Key, Value: v})
	}

	ns := chi.URLParam(r, "namespace")
	n, err := s.deps.Warming.WarmNamespace(r.Context(), ns, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]any{"namespace": ns, "warmed": n}))
}

// --- Events ---

func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("event dispatch disabled"))
		return
	}
	var ev invalidation.Event
	if !decodeJSON(w, r, &ev) {
		return
	}
	if ev.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("name is required"))
		return
	}
	ev, ok := s.deps.Events.Publish(ev)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("event queue full"))
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse(map[string]any{"event_id": ev.ID, "name": ev.Name}))
}
