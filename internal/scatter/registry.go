package scatter

import (
	"fmt"
	"sort"
)

// Registry maps container names to their scatter strategies. It is immutable
// once built; containers without an entry use the plain layout.
type Registry struct {
	strategies map[string]Strategy
	names      []string
}

// NewRegistry builds every configured strategy, failing on the first bad one.
func NewRegistry(configs map[string]Config) (*Registry, error) {
	r := &Registry{
		strategies: make(map[string]Strategy, len(configs)),
		names:      make([]string, 0, len(configs)),
	}

	for name, cfg := range configs {
		s, err := NewStrategy(cfg)
		if err != nil {
			return nil, fmt.Errorf("container %s: %w", name, err)
		}
		r.strategies[name] = s
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	return r, nil
}

// EmptyRegistry scatters nothing.
func EmptyRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Lookup returns the strategy registered for container.
func (r *Registry) Lookup(container string) (Strategy, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.strategies[container]
	return s, ok
}

// Containers returns the registered container names in sorted order.
func (r *Registry) Containers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
