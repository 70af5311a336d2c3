package strategy

import (
	"fmt"
	"sync"
)

// Creator builds a fresh Strategy instance; each StrategyConfig carries
// one creator looked up from the registry by name, replacing the
// original's dynamic-library `CreateStrategy` export (spec.md §9).
type Creator func() Strategy

// Config is one entry of a scenario's strategy list (spec.md §3
// StrategyConfig): the registered name, the instruments/streams it
// subscribes to (or "*" for subscribe-all), and its parameter set.
type Config struct {
	Name        string
	Description string
	Author      string

	Instruments []string
	SubscribeAll bool

	Parameters []Parameter
}

// Registry is a name-keyed, self-registering strategy catalog —
// compiled into the binary rather than dynamically loaded
// (spec.md §9).
type Registry struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{creators: make(map[string]Creator)}
}

// Register adds a creator under name. Re-registering the same name is
// an error, matching the registry's duplicate-entry rule.
func (r *Registry) Register(name string, c Creator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		return fmt.Errorf("strategy: name cannot be empty")
	}
	if c == nil {
		return fmt.Errorf("strategy: nil creator for %q", name)
	}
	if _, exists := r.creators[name]; exists {
		return fmt.Errorf("strategy: %q already registered", name)
	}
	r.creators[name] = c
	return nil
}

// Create looks up name and returns a freshly built Strategy instance.
func (r *Registry) Create(name string) (Strategy, error) {
	r.mu.RLock()
	c, exists := r.creators[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("strategy: %q not registered", name)
	}
	return c(), nil
}

// List returns every registered strategy name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.creators))
	for name := range r.creators {
		names = append(names, name)
	}
	return names
}

// Default is the process-wide registry sample strategies self-register
// into via an init() func, mirroring the teacher's package-level
// registry convention.
var Default = NewRegistry()
