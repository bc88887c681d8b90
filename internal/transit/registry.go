package transit

// Registry is the fixed set of providers known to the process.
type Registry struct {
	providers []Provider
}

// NewRegistry registers providers in order. Nil entries are skipped.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Lookup returns the first provider registered under id.
func (r *Registry) Lookup(id string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	for _, p := range r.providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Providers returns the providers in registration order.
func (r *Registry) Providers() []Provider {
	if r == nil {
		return nil
	}
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Default returns the first registered provider.
func (r *Registry) Default() (Provider, bool) {
	if r == nil || len(r.providers) == 0 {
		return nil, false
	}
	return r.providers[0], true
}
