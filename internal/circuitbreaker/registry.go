package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry hands out one Breaker per namespace.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates an empty registry whose breakers use cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

// Get returns the breaker for namespace, or nil if none exists.
func (r *Registry) Get(namespace string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[namespace]
}

// GetOrCreate returns the breaker for namespace, creating it on first use.
func (r *Registry) GetOrCreate(namespace string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[namespace]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[namespace]; ok {
		return b
	}
	b = NewBreaker(r.config)
	r.breakers[namespace] = b
	return b
}

// States returns the current state of every breaker keyed by namespace.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for ns, b := range r.breakers {
		out[ns] = b.State()
	}
	return out
}

// Namespaces returns the namespaces with a breaker, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.breakers))
	for ns := range r.breakers {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
