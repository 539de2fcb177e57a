package provider

import "sync"

// Registry holds providers in registration order and selects the one to use
// for an execution: the first configured streaming provider, otherwise the
// first configured batch provider.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends p. A provider registered under an existing name replaces it
// in place, keeping its priority.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Select returns the provider to use, or ErrNotConfigured when no registered
// provider has credentials.
func (r *Registry) Select() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, kind := range []Kind{KindStreaming, KindBatch} {
		for _, p := range r.providers {
			if p.Kind() == kind && p.Configured() {
				return p, nil
			}
		}
	}
	return nil, ErrNotConfigured
}

// List returns information about all registered providers in selection order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.providers))
	for _, kind := range []Kind{KindStreaming, KindBatch} {
		for _, p := range r.providers {
			if p.Kind() != kind {
				continue
			}
			infos = append(infos, Info{Name: p.Name(), Kind: p.Kind(), Configured: p.Configured()})
		}
	}
	return infos
}
