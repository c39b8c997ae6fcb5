package unit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bft-labs/unitdebug/internal/domain"
)

// Registry maps module references to processor factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory under module. It panics if module is empty, the
// factory is nil or the module is already registered.
func (r *Registry) Register(module string, factory Factory) {
	if module == "" {
		panic("unit: Register with empty module reference")
	}
	if factory == nil {
		panic("unit: Register factory is nil for " + module)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[module]; dup {
		panic("unit: Register called twice for " + module)
	}
	r.factories[module] = factory
}

// Lookup returns the factory for module. An unknown reference yields a
// *domain.LoadError wrapping domain.ErrModuleNotFound.
func (r *Registry) Lookup(module string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[module]
	if !ok {
		return nil, &domain.LoadError{Module: module, Err: domain.ErrModuleNotFound}
	}
	return f, nil
}

// Modules lists the registered references in lexical order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for m := range r.factories {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// New resolves module and builds an initialized Runtime for unit id.
// An empty module falls back to the module named in the unit's
// configuration. Resolution failures are returned as *domain.LoadError.
func (r *Registry) New(module, id string, opts ...Option) (*Runtime, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if cfg == nil {
		if o.source == nil {
			cfg = &Config{}
		} else {
			loaded, err := o.source.Load(id)
			if err != nil {
				return nil, fmt.Errorf("load configuration of unit %s: %w", id, err)
			}
			cfg = &loaded
		}
	}
	if module == "" {
		module = cfg.Module
	}
	if module == "" {
		return nil, &domain.LoadError{Module: module, Err: fmt.Errorf("%w: no module configured for unit %s", domain.ErrInvalidConfig, id)}
	}

	factory, err := r.Lookup(module)
	if err != nil {
		return nil, err
	}
	resolved := *cfg
	resolved.Module = module
	return newRuntime(id, resolved, factory, o)
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by Register.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds factory to the default registry. Unit packages call it
// from init.
func Register(module string, factory Factory) {
	defaultRegistry.Register(module, factory)
}

// New builds a runtime from the default registry.
func New(module, id string, opts ...Option) (*Runtime, error) {
	return defaultRegistry.New(module, id, opts...)
}
