package codeunit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/logging"
)

// Factory creates the code unit of an addon version.
// view: name of the view loading the addon
// resources: resource files declared by the addon descriptor
type Factory func(ctx context.Context, view string, id addon.ID, resources []string) (Unit, error)

// FactoryRegistry stores code unit factories by addon name.
//
// Usage pattern:
//
//	func init() {
//	  codeunit.RegisterFactory("org.example.greeter", greeter.New)
//	}
type FactoryRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// defaultRegistry backs the package-level functions
var defaultRegistry = NewFactoryRegistry()

// NewFactoryRegistry creates an empty factory registry
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{
		factories: make(map[string]Factory),
	}
}

// Register adds the factory for addons named name.
// Returns error if:
//   - name is empty string
//   - name is already registered
func (r *FactoryRegistry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("addon name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for addon %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("factory for addon %q is already registered", name)
	}

	r.factories[name] = factory
	return nil
}

// Get retrieves the factory for addons named name.
func (r *FactoryRegistry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	return factory, exists
}

// List returns the sorted names with a registered factory.
func (r *FactoryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// RegisterFactory registers a factory with the default registry.
func RegisterFactory(name string, factory Factory) error {
	return defaultRegistry.Register(name, factory)
}

// DefaultRegistry returns the registry used by RegisterFactory.
func DefaultRegistry() *FactoryRegistry {
	return defaultRegistry
}

// FactoryProvider loads code units through a FactoryRegistry and keeps
// each loaded unit until it is released.
type FactoryProvider struct {
	registry *FactoryRegistry
	fallback Factory
	logger   *logging.Logger

	mu     sync.Mutex
	loaded map[addon.Key]Unit
}

var _ Provider = (*FactoryProvider)(nil)

// NewFactoryProvider creates a provider backed by registry. A nil registry
// means the default one.
func NewFactoryProvider(registry *FactoryRegistry) *FactoryProvider {
	if registry == nil {
		registry = defaultRegistry
	}
	return &FactoryProvider{
		registry: registry,
		logger:   logging.GetLogger("codeunit"),
		loaded:   make(map[addon.Key]Unit),
	}
}

// WithFallback sets the factory used for addons that have none registered.
func (p *FactoryProvider) WithFallback(factory Factory) *FactoryProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = factory
	return p
}

func (p *FactoryProvider) Load(ctx context.Context, view string, id addon.ID, resources []string) (Unit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if unit, ok := p.loaded[id.Key()]; ok {
		return unit, nil
	}

	factory, ok := p.registry.Get(id.Name)
	if !ok {
		if p.fallback == nil {
			return nil, fmt.Errorf("no code unit factory registered for addon %q", id.Name)
		}
		factory = p.fallback
	}
	unit, err := factory(ctx, view, id, resources)
	if err != nil {
		return nil, fmt.Errorf("failed to load code unit of %s: %w", id, err)
	}
	if unit == nil {
		return nil, fmt.Errorf("factory for addon %q returned no code unit", id.Name)
	}

	p.loaded[id.Key()] = unit
	p.logger.DebugWithFields("Loaded code unit", logging.Field("addon", id.String()), logging.Field("view", view))
	return unit, nil
}

func (p *FactoryProvider) Release(id addon.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.loaded[id.Key()]; ok {
		delete(p.loaded, id.Key())
		p.logger.DebugWithFields("Released code unit", logging.Field("addon", id.String()))
	}
}

// Loaded reports whether a code unit of id is currently held.
func (p *FactoryProvider) Loaded(id addon.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loaded[id.Key()]
	return ok
}

// ResourcesService is the service name under which ResourceOnly units
// publish their resource list.
const ResourcesService = "resources"

// ResourceOnly builds units for addons that ship resources but no code.
func ResourceOnly(_ context.Context, _ string, _ addon.ID, resources []string) (Unit, error) {
	return &Funcs{Provides: map[string]any{ResourcesService: append([]string(nil), resources...)}}, nil
}
