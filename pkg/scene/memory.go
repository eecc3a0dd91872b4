package scene

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/armature/pkg/codec"
	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ Manager        = (*Scene)(nil)
	_ DriverResolver = (*Scene)(nil)
)

type object struct {
	id       string
	name     string
	kind     Kind
	parent   *object
	children []*object
	attrs    map[string]any
}

// Scene is an in-memory live scene graph. Names are unique across the
// scene; creating or renaming onto a taken name appends a number the way
// a DCC would. Deleting an object deletes its whole subtree.
//
// Scene is safe for concurrent use so it can back a remote session.
type Scene struct {
	mu     sync.Mutex
	byName map[string]*object
	byID   map[string]*object
	roots  []*object
	path   string
	saves  int
	newID  func() string
}

// Option configures a Scene.
type Option func(*Scene)

// WithSavePath makes Save write the scene document to path.
func WithSavePath(path string) Option {
	return func(s *Scene) { s.path = path }
}

// WithIDSource replaces the identity generator.
func WithIDSource(next func() string) Option {
	return func(s *Scene) { s.newID = next }
}

// New returns an empty scene.
func New(opts ...Option) *Scene {
	s := &Scene{
		byName: make(map[string]*object),
		byID:   make(map[string]*object),
		newID:  func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scene) lookup(name string) (*object, error) {
	o, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return o, nil
}

// unique returns name, or name with a numeric suffix if it is taken.
func (s *Scene) unique(name string) string {
	if _, taken := s.byName[name]; !taken {
		return name
	}
	base := strings.TrimRight(name, "0123456789")
	for n := 1; ; n++ {
		candidate := base + strconv.Itoa(n)
		if _, taken := s.byName[candidate]; !taken {
			return candidate
		}
	}
}

func (s *Scene) siblings(parent *object) *[]*object {
	if parent == nil {
		return &s.roots
	}
	return &parent.children
}

func (s *Scene) detach(o *object) {
	list := s.siblings(o.parent)
	if i := slices.Index(*list, o); i >= 0 {
		*list = slices.Delete(*list, i, i+1)
	}
	o.parent = nil
}

func (s *Scene) attach(o, parent *object) {
	o.parent = parent
	list := s.siblings(parent)
	*list = append(*list, o)
}

// Exists reports whether an object with identity id exists.
func (s *Scene) Exists(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok, nil
}

// ResolveName returns the current name of the object with identity id.
func (s *Scene) ResolveName(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: identity %s", ErrNotFound, id)
	}
	return o.name, nil
}

// Create makes a new object of kind under parent.
func (s *Scene) Create(kind Kind, name, parent string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p *object
	if parent != "" {
		var err error
		if p, err = s.lookup(parent); err != nil {
			return "", "", err
		}
	}
	if name == "" {
		name = string(kind) + "1"
	}
	o := &object{
		id:   s.newID(),
		name: s.unique(name),
		kind: kind,
		attrs: map[string]any{
			AttrTranslate:   []float64{0, 0, 0},
			AttrRotate:      []float64{0, 0, 0},
			AttrScale:       []float64{1, 1, 1},
			AttrRotateOrder: 0,
		},
	}
	s.byName[o.name] = o
	s.byID[o.id] = o
	s.attach(o, p)
	return o.name, o.id, nil
}

// Rename renames oldName, disambiguating newName if it is taken.
func (s *Scene) Rename(oldName, newName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(oldName)
	if err != nil {
		return "", err
	}
	if newName == "" {
		return "", fmt.Errorf("scene: rename %q: empty name", oldName)
	}
	if newName == oldName {
		return oldName, nil
	}
	delete(s.byName, oldName)
	o.name = s.unique(newName)
	s.byName[o.name] = o
	return o.name, nil
}

// Parent returns the name of the object's parent.
func (s *Scene) Parent(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	if o.parent == nil {
		return "", nil
	}
	return o.parent.name, nil
}

// ListChildren returns the names of the object's children in order.
func (s *Scene) ListChildren(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(o.children))
	for i, c := range o.children {
		out[i] = c.name
	}
	return out, nil
}

// Reparent moves name under newParent, or to the scene root when
// newParent is empty.
func (s *Scene) Reparent(name, newParent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(name)
	if err != nil {
		return err
	}
	var p *object
	if newParent != "" {
		if p, err = s.lookup(newParent); err != nil {
			return err
		}
		for a := p; a != nil; a = a.parent {
			if a == o {
				return fmt.Errorf("scene: reparent %q under %q would create a cycle", name, newParent)
			}
		}
	}
	if o.parent == p {
		return nil
	}
	s.detach(o)
	s.attach(o, p)
	return nil
}

// SetAttribute stores value under key.
func (s *Scene) SetAttribute(name, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(name)
	if err != nil {
		return err
	}
	o.attrs[key] = value
	return nil
}

// GetAttribute returns the value stored under key.
func (s *Scene) GetAttribute(name, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	v, ok := o.attrs[key]
	if !ok {
		return nil, fmt.Errorf("%w: attribute %s.%s", ErrNotFound, name, key)
	}
	return v, nil
}

// Delete removes the object and everything under it.
func (s *Scene) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.detach(o)
	s.forget(o)
	return nil
}

func (s *Scene) forget(o *object) {
	for _, c := range o.children {
		s.forget(c)
	}
	delete(s.byName, o.name)
	delete(s.byID, o.id)
	o.children = nil
}

// Save writes the scene document when a save path is configured and
// counts the call either way.
func (s *Scene) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.path == "" {
		return nil
	}
	data, err := codec.Marshal(s.document())
	if err != nil {
		return fmt.Errorf("scene: encoding document: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("scene: writing %s: %w", s.path, err)
	}
	return nil
}

// Saves returns how many times Save has been called.
func (s *Scene) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// LookupQualified resolves namespace:name.
func (s *Scene) LookupQualified(namespace, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := Qualify(namespace, name)
	if _, ok := s.byName[full]; !ok {
		return "", false, nil
	}
	return full, true, nil
}

// Names returns every object name in pre-order.
func (s *Scene) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	var walk func([]*object)
	walk = func(list []*object) {
		for _, o := range list {
			out = append(out, o.name)
			walk(o.children)
		}
	}
	walk(s.roots)
	return out
}

// Len returns the number of live objects.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byName)
}

// IdentityOf returns the identity of a named object.
func (s *Scene) IdentityOf(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byName[name]
	if !ok {
		return "", false
	}
	return o.id, true
}

// KindOf returns the kind of a named object.
func (s *Scene) KindOf(name string) (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byName[name]
	if !ok {
		return "", false
	}
	return o.kind, true
}
