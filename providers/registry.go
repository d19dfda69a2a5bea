package providers

import (
	"fmt"
	"sync"
)

// Registry holds the configured set of providers and returns them in dispatch
// order: all primary providers first, then fallback, then local. Within a
// tier, registration order is preserved; there is no dynamic reordering by
// observed latency or cost.
type Registry struct {
	mu     sync.RWMutex
	byTier map[Tier][]Provider
	byName map[string]Provider
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byTier: make(map[Tier][]Provider),
		byName: make(map[string]Provider),
	}
}

// Register adds a provider to the registry. It returns an error if the
// provider's tier is unknown or its name is already taken.
func (r *Registry) Register(p Provider) error {
	tier := p.Tier()
	if !tier.Valid() {
		return fmt.Errorf("provider %s has unknown tier %q", p.Name(), tier)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider already registered: %s", p.Name())
	}
	r.byName[p.Name()] = p
	r.byTier[tier] = append(r.byTier[tier], p)
	return nil
}

// Ordered returns all providers flattened in dispatch order.
func (r *Registry) Ordered() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := make([]Provider, 0, len(r.byName))
	for _, tier := range Tiers() {
		ordered = append(ordered, r.byTier[tier]...)
	}
	return ordered
}

// Get returns a provider by name and whether it was found.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the names of all registered providers in dispatch order.
func (r *Registry) Names() []string {
	ordered := r.Ordered()
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
