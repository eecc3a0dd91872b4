package rig

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/armature/pkg/spec"
)

// Builder reshapes a component's spec trees from its parameters. Builds
// must go through the resize operations so that specs below the new size
// keep their identity, and must queue every displaced spec in bin.
type Builder interface {
	BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error
	BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error
}

// Defaulter is implemented by builders with default parameters.
type Defaulter interface {
	Defaults() Params
}

// RigBuilder is implemented by builders that replace the generic
// one-control-per-joint mechanics.
type RigBuilder interface {
	BuildRig(rc *RigContext) error
}

// AttachmentResolver is implemented by builders that redirect where
// their component attaches for particular parents. ok false falls back
// to the generic resolution.
type AttachmentResolver interface {
	ResolveAttachment(c *Component, target *spec.Spec, options []*spec.Spec) (export, driver string, ok bool)
}

// NewBuilder constructs a fresh builder for one component.
type NewBuilder func() Builder

// Registry maps component type names to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]NewBuilder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: map[string]NewBuilder{}}
}

// Register installs a builder constructor. Returns an error if the type
// already exists.
func (r *Registry) Register(typeName string, nb NewBuilder) error {
	if typeName == "" {
		return fmt.Errorf("rig: type name is required")
	}
	if nb == nil {
		return fmt.Errorf("rig: builder is required for %s", typeName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[typeName]; exists {
		return fmt.Errorf("rig: %s already registered", typeName)
	}
	r.builders[typeName] = nb
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(typeName string, nb NewBuilder) {
	if err := r.Register(typeName, nb); err != nil {
		panic(err)
	}
}

// Builder returns the constructor registered for typeName.
func (r *Registry) Builder(typeName string) (NewBuilder, error) {
	r.mu.RLock()
	nb, ok := r.builders[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	return nb, nil
}

// Create returns a new Parametric component of typeName. The component
// is named after its type until the caller renames it.
func (r *Registry) Create(typeName string, params Params) (*Component, error) {
	nb, err := r.Builder(typeName)
	if err != nil {
		return nil, err
	}
	return NewComponent(typeName, nb(), params), nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry returns a registry holding the built-in component
// kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}
