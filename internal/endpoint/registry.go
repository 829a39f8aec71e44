package endpoint

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory creates an unconnected connector for a parsed source.
type Factory func(src *Source) (Connector, error)

type registration struct {
	descriptor *Descriptor
	factory    Factory
}

// Registry holds connector factories indexed by template ID and URI scheme.
type Registry struct {
	byID     map[string]*registration
	byScheme map[string]*registration
	mu       sync.RWMutex
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*registration),
		byScheme: make(map[string]*registration),
	}
}

// Register adds a factory for desc.ID and every scheme in desc.Schemes.
// Panics if the template ID or a scheme is already registered.
func (r *Registry) Register(desc *Descriptor, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[desc.ID]; exists {
		panic(fmt.Sprintf("connector factory already registered: %s", desc.ID))
	}
	reg := &registration{descriptor: desc, factory: factory}
	for _, scheme := range desc.Schemes {
		scheme = strings.ToLower(scheme)
		if other, exists := r.byScheme[scheme]; exists {
			panic(fmt.Sprintf("scheme %q already registered by %s", scheme, other.descriptor.ID))
		}
		r.byScheme[scheme] = reg
	}
	r.byID[desc.ID] = reg
}

// Descriptors returns the descriptors of all registered templates, sorted by ID.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.byID))
	for _, reg := range r.byID {
		out = append(out, reg.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the descriptor and factory selected by src's scheme.
func (r *Registry) Resolve(src *Source) (*Descriptor, Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byScheme[strings.ToLower(src.Scheme)]
	if !ok {
		return nil, nil, fmt.Errorf("no connector registered for scheme %q", src.Scheme)
	}
	return reg.descriptor, reg.factory, nil
}

// Create instantiates an unconnected connector for src.
func (r *Registry) Create(src *Source) (Connector, error) {
	_, factory, err := r.Resolve(src)
	if err != nil {
		return nil, err
	}
	return factory(src)
}

// --- Default Global Registry ---

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the global connector registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a factory to the default registry.
func Register(desc *Descriptor, factory Factory) {
	defaultRegistry.Register(desc, factory)
}
