package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/storage"
)

// Registry maps namespace names to their long-lived Service. The first
// registration of a namespace fixes its configuration.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
	durable  storage.Durable
	opts     Options
}

// NewRegistry creates an empty registry. durable may be nil for a
// memory-only cache.
func NewRegistry(durable storage.Durable, opts Options) *Registry {
	return &Registry{
		services: make(map[string]*Service),
		durable:  durable,
		opts:     opts.withDefaults(),
	}
}

// Service returns the service for cfg.Namespace, creating it on first use.
// Later calls for the same namespace return the existing instance and
// ignore cfg.
func (r *Registry) Service(cfg tiercache.CacheConfig) (*Service, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("%w: empty namespace", tiercache.ErrConfiguration)
	}

	r.mu.RLock()
	s, ok := r.services[cfg.Namespace]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: namespace %q: ttl must be positive", tiercache.ErrConfiguration, cfg.Namespace)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = r.opts.DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = r.opts.DefaultMaxBytes
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.services[cfg.Namespace]; ok {
		return s, nil
	}
	s, err := newService(cfg, r.durable, r.opts)
	if err != nil {
		return nil, fmt.Errorf("namespace %q: %w", cfg.Namespace, err)
	}
	r.services[cfg.Namespace] = s
	return s, nil
}

// MustService is Service for static configurations known to be valid.
func (r *Registry) MustService(cfg tiercache.CacheConfig) *Service {
	s, err := r.Service(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the registered service for namespace.
func (r *Registry) Lookup(namespace string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[namespace]
	return s, ok
}

// Namespaces returns the registered namespace names, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.services))
	for ns := range r.services {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Services returns the registered services ordered by namespace.
func (r *Registry) Services() []*Service {
	names := r.Namespaces()
	out := make([]*Service, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ns := range names {
		if s, ok := r.services[ns]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ClearAll clears every registered namespace.
func (r *Registry) ClearAll(ctx context.Context) error {
	var errs []error
	for _, s := range r.Services() {
		if err := s.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", s.Namespace(), err))
		}
	}
	return errors.Join(errs...)
}

// Flush waits for pending durable writes in every namespace.
func (r *Registry) Flush(ctx context.Context) error {
	for _, s := range r.Services() {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the durable tier. A memory-only registry is always ready.
func (r *Registry) Ping(ctx context.Context) error {
	if r.durable == nil {
		return nil
	}
	return r.durable.Ping(ctx)
}

// Reset clears and forgets every registered service.
func (r *Registry) Reset(ctx context.Context) error {
	err := r.ClearAll(ctx)
	r.mu.Lock()
	r.services = make(map[string]*Service)
	r.mu.Unlock()
	return err
}
