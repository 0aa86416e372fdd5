package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/keys"
	"github.com/eugener/tiercache/internal/storage"
)

// Item is a key/value pair for batch writes and warming.
type Item struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// flight tracks one in-progress population of key. A flight marked stale by
// a removal still answers its waiters but must not write to the memory tier.
type flight struct {
	key   string
	stale bool
}

// mirrorWrite tracks one background durable write. A removal that overtakes
// it sets revoked; the writer then skips the put or deletes what it wrote.
type mirrorWrite struct {
	key     string
	revoked bool
	done    chan struct{}
}

// Service is the cache engine for one namespace. It is safe for concurrent use.
type Service struct {
	cfg     tiercache.CacheConfig
	mem     *Memory
	durable storage.Durable // nil = memory only
	breaker *circuitbreaker.Breaker
	opts    Options
	stats   counters
	group   singleflight.Group

	// pendingMu guards flights, mirrors and the memory-tier writes made on
	// their behalf. It is never held across durable I/O.
	pendingMu sync.Mutex
	flights   map[*flight]struct{}
	mirrors   map[*mirrorWrite]struct{}
}

func newService(cfg tiercache.CacheConfig, durable storage.Durable, opts Options) (*Service, error) {
	mem, err := NewMemory(cfg.MaxEntries, cfg.MaxBytes)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		mem:     mem,
		durable: durable,
		opts:    opts,
		flights: make(map[*flight]struct{}),
		mirrors: make(map[*mirrorWrite]struct{}),
	}
	if opts.Breakers != nil && durable != nil {
		s.breaker = opts.Breakers.GetOrCreate(cfg.Namespace)
	}
	return s, nil
}

// Config returns the namespace configuration the service was created with.
func (s *Service) Config() tiercache.CacheConfig { return s.cfg }

// Namespace returns the namespace name.
func (s *Service) Namespace() string { return s.cfg.Namespace }

// GenerateKey builds an "entityType:id" key.
func (s *Service) GenerateKey(entityType, id string) string { return keys.Generate(entityType, id) }

// ParseKey splits a key produced by GenerateKey.
func (s *Service) ParseKey(key string) (entityType, id string) { return keys.Parse(key) }

// Set serializes value and stores it under key. The memory tier is written
// before Set returns; the durable tier is written in the background.
func (s *Service) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	raw, err := encode(key, value)
	if err != nil {
		return err
	}
	return s.SetRaw(ctx, key, raw, opts...)
}

// SetRaw stores an already serialized JSON value.
func (s *Service) SetRaw(ctx context.Context, key string, raw json.RawMessage, opts ...SetOption) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", tiercache.ErrValidation)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: value for %q is not valid JSON", tiercache.ErrSerialization, key)
	}
	o := setOptions{ttl: s.cfg.TTL}
	for _, fn := range opts {
		fn(&o)
	}
	s.commit(ctx, nil, s.newEntry(key, raw, o.ttl, tiercache.SourceMemory), true)
	return nil
}

// Get returns the value for key, consulting the memory tier and then the
// durable tier. A miss returns ok=false and a nil error.
func (s *Service) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	res, err := s.GetWithSource(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return res.Data, res.Hit, nil
}

// GetWithSource is Get, also reporting the tier that served the value.
func (s *Service) GetWithSource(ctx context.Context, key string) (tiercache.Result, error) {
	now := s.opts.Now()
	if e, ok := s.mem.Get(key, now); ok {
		s.stats.memoryHits.Add(1)
		s.observe(tierMemory, resultHit)
		return tiercache.Result{
			Data:     e.Value,
			Source:   tiercache.SourceMemory,
			Hit:      true,
			TTL:      e.Remaining(now),
			StoredAt: e.StoredAt,
		}, nil
	}
	s.stats.memoryMisses.Add(1)
	s.observe(tierMemory, resultMiss)

	miss := tiercache.Result{Source: tiercache.SourceMiss}
	if s.durable == nil {
		return miss, nil
	}

	f := s.begin(key)
	defer s.end(f)

	raw, expiresAt, err := s.durableGet(ctx, key)
	if err != nil {
		s.stats.durableMisses.Add(1)
		s.observe(tierDurable, resultMiss)
		return miss, nil
	}
	if !json.Valid(raw) {
		s.stats.durableMisses.Add(1)
		s.observe(tierDurable, resultMiss)
		return miss, fmt.Errorf("%w: durable value for %q is not valid JSON", tiercache.ErrSerialization, key)
	}

	ttl := s.cfg.TTL
	if !expiresAt.IsZero() {
		ttl = min(ttl, expiresAt.Sub(now))
	}
	if ttl <= 0 {
		s.stats.durableMisses.Add(1)
		s.observe(tierDurable, resultMiss)
		return miss, nil
	}

	s.stats.durableHits.Add(1)
	s.observe(tierDurable, resultHit)
	s.commit(ctx, f, s.newEntry(key, raw, ttl, tiercache.SourceDurable), false)
	return tiercache.Result{
		Data:   raw,
		Source: tiercache.SourceDurable,
		Hit:    true,
		TTL:    ttl,
	}, nil
}

// GetOrSet returns the cached value for key, or calls fetch and caches its
// result under the namespace TTL. Concurrent callers for the same missing
// key share a single fetch. Fetch errors are returned to every waiter and
// nothing is cached.
func (s *Service) GetOrSet(ctx context.Context, key string, fetch func(context.Context) (any, error)) (json.RawMessage, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		f := s.begin(key)
		defer s.end(f)

		// A flight that finished just before this one may have stored it.
		if e, ok := s.mem.Get(key, s.opts.Now()); ok {
			return e.Value, nil
		}

		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := encode(key, val)
		if err != nil {
			return nil, err
		}
		s.commit(ctx, f, s.newEntry(key, raw, s.cfg.TTL, tiercache.SourceMemory), true)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Has reports whether key is cached in either tier.
func (s *Service) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// GetMany looks up several keys. Missing keys are absent from the result.
func (s *Service) GetMany(ctx context.Context, keyList []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keyList))
	for _, k := range keyList {
		data, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = data
		}
	}
	return out, nil
}

// SetMany stores every item, stopping at the first serialization failure.
func (s *Service) SetMany(ctx context.Context, items []Item, opts ...SetOption) error {
	for _, it := range items {
		if err := s.Set(ctx, it.Key, it.Value, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key from both tiers.
func (s *Service) Delete(ctx context.Context, key string) error {
	s.revoke(func(k string) bool { return k == key }, func() { s.mem.Delete(key) })
	if s.durable != nil {
		_ = s.durableDelete(ctx, s.opts.DurableTimeout, key)
	}
	return nil
}

// DeleteMany removes every key in keyList from both tiers.
func (s *Service) DeleteMany(ctx context.Context, keyList []string) error {
	for _, k := range keyList {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every entry of the namespace from both tiers and resets the
// counters.
func (s *Service) Clear(ctx context.Context) error {
	s.revoke(func(string) bool { return true }, s.mem.Purge)
	if s.durable != nil {
		ctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
		defer cancel()
		scoped, err := s.durableList(ctx)
		if err == nil {
			for _, sk := range scoped {
				if k, ok := keys.Unscope(s.cfg.Namespace, sk); ok {
					_ = s.durableDelete(ctx, s.opts.DurableTimeout, k)
				}
			}
		}
	}
	s.stats.reset()
	return nil
}

// Invalidate removes every key matching the glob pattern from both tiers and
// returns the number of distinct keys removed. The pattern is anchored to
// the whole key and '*' matches any run of characters.
func (s *Service) Invalidate(ctx context.Context, pattern string) (int, error) {
	m, err := keys.Compile(pattern)
	if err != nil {
		return 0, err
	}

	removed := make(map[string]struct{})
	s.revoke(m.Match, func() {
		for _, k := range s.mem.DeleteMatching(m) {
			removed[k] = struct{}{}
		}
	})
	if s.durable != nil {
		s.invalidateDurable(ctx, pattern, m, removed)
	}

	n := len(removed)
	if s.opts.Metrics != nil && n > 0 {
		s.opts.Metrics.InvalidatedKeys.WithLabelValues(s.cfg.Namespace).Add(float64(n))
	}
	if s.opts.OnInvalidate != nil {
		s.opts.OnInvalidate(s.cfg.Namespace, pattern, n)
	}
	return n, nil
}

func (s *Service) invalidateDurable(ctx context.Context, pattern string, m keys.Matcher, removed map[string]struct{}) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
	defer cancel()

	// A literal pattern names exactly one key; skip the listing.
	if keys.Literal(pattern) {
		if _, _, err := s.durableGet(ctx, pattern); err == nil {
			if s.durableDelete(ctx, s.opts.DurableTimeout, pattern) == nil {
				removed[pattern] = struct{}{}
			}
		}
		return
	}

	scoped, err := s.durableList(ctx)
	if err != nil {
		return
	}
	for _, sk := range scoped {
		k, ok := keys.Unscope(s.cfg.Namespace, sk)
		if !ok || !m.Match(k) {
			continue
		}
		if s.durableDelete(ctx, s.opts.DurableTimeout, k) == nil {
			removed[k] = struct{}{}
		}
	}
}

// Stats returns a snapshot of the lookup counters.
func (s *Service) Stats() tiercache.Stats { return s.stats.snapshot() }

// Entries returns the live memory-tier entries.
func (s *Service) Entries() []tiercache.Entry { return s.mem.Entries(s.opts.Now()) }

// Entry returns the live memory-tier entry for key without touching the
// counters or the durable tier.
func (s *Service) Entry(key string) (tiercache.Entry, bool) { return s.mem.Get(key, s.opts.Now()) }

// MemoryUsage returns the summed serialized size of live entries.
func (s *Service) MemoryUsage() int64 {
	_, bytes := s.mem.Usage(s.opts.Now())
	return bytes
}

// Len returns the number of live entries in the memory tier.
func (s *Service) Len() int {
	n, _ := s.mem.Usage(s.opts.Now())
	return n
}

// PurgeExpired drops memory-tier entries past their TTL.
func (s *Service) PurgeExpired() int { return s.mem.PurgeExpired(s.opts.Now()) }

// Flush waits until every durable write started before the call completes.
func (s *Service) Flush(ctx context.Context) error {
	s.pendingMu.Lock()
	waits := make([]<-chan struct{}, 0, len(s.mirrors))
	for w := range s.mirrors {
		waits = append(waits, w.done)
	}
	s.pendingMu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Service) newEntry(key string, raw json.RawMessage, ttl time.Duration, tier tiercache.Source) tiercache.Entry {
	return tiercache.Entry{
		Key:      key,
		Value:    raw,
		StoredAt: s.opts.Now(),
		TTL:      ttl,
		Tier:     tier,
	}
}

// commit writes e to the memory tier unless f went stale, then optionally
// mirrors it to the durable tier in the background. A nil flight is never
// stale.
func (s *Service) commit(ctx context.Context, f *flight, e tiercache.Entry, mirror bool) {
	s.pendingMu.Lock()
	if f != nil && f.stale {
		s.pendingMu.Unlock()
		return
	}
	s.mem.Set(e)
	var w *mirrorWrite
	if mirror && s.durable != nil {
		w = &mirrorWrite{key: e.Key, done: make(chan struct{})}
		s.mirrors[w] = struct{}{}
	}
	s.pendingMu.Unlock()

	if w != nil {
		go s.mirror(context.WithoutCancel(ctx), w, e)
	}
}

func (s *Service) mirror(ctx context.Context, w *mirrorWrite, e tiercache.Entry) {
	defer s.settle(w)
	if s.revoked(w) {
		return
	}
	_ = s.durablePut(ctx, e)
	if s.revoked(w) {
		// The removal's own delete may have run before the put landed.
		_ = s.durableDelete(ctx, s.opts.DurableTimeout, e.Key)
	}
}

func (s *Service) revoked(w *mirrorWrite) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return w.revoked
}

func (s *Service) settle(w *mirrorWrite) {
	s.pendingMu.Lock()
	delete(s.mirrors, w)
	s.pendingMu.Unlock()
	close(w.done)
}

func (s *Service) begin(key string) *flight {
	f := &flight{key: key}
	s.pendingMu.Lock()
	s.flights[f] = struct{}{}
	s.pendingMu.Unlock()
	return f
}

func (s *Service) end(f *flight) {
	s.pendingMu.Lock()
	delete(s.flights, f)
	s.pendingMu.Unlock()
}

// revoke marks matching flights stale and matching mirror writes revoked,
// then runs drop, all under pendingMu so no commit interleaves.
func (s *Service) revoke(match func(string) bool, drop func()) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for f := range s.flights {
		if match(f.key) {
			f.stale = true
		}
	}
	for w := range s.mirrors {
		if match(w.key) {
			w.revoked = true
		}
	}
	drop()
}

// Lookup metric labels.
const (
	tierMemory  = "memory"
	tierDurable = "durable"
	resultHit   = "hit"
	resultMiss  = "miss"
)

func (s *Service) observe(tier, result string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.Lookups.WithLabelValues(s.cfg.Namespace, tier, result).Inc()
	}
}

func encode(key string, v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %q: %w", tiercache.ErrSerialization, key, err)
	}
	return raw, nil
}
