// Package spec defines the declarative description of a rig's live scene
// objects. Each Spec describes one desired joint or pivot; specs form
// ordered trees owned by a component. The package also provides the
// pure tree-shaping operations (resize, flatten, unpack) used to keep a
// spec tree in step with component parameters. Nothing here talks to a
// live scene.
package spec

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/sdf"
)

// ErrShape reports a caller error in tree shaping: an unpack size
// mismatch, a constructor producing the wrong kind, or an invalid size.
var ErrShape = errors.New("spec: shape mismatch")

// Kind distinguishes joint specs from pivot specs.
type Kind int

const (
	KindJoint Kind = iota
	KindPivot
)

func (k Kind) String() string {
	switch k {
	case KindJoint:
		return "joint"
	case KindPivot:
		return "pivot"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Side is the classification side pushed onto live objects.
type Side string

const (
	SideCenter Side = "C"
	SideLeft   Side = "L"
	SideRight  Side = "R"
)

// Mirror returns the opposite side. Center mirrors to itself.
func (s Side) Mirror() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	}
	return s
}

// ParseSide accepts C/L/R and the long forms center/left/right.
func ParseSide(v string) (Side, error) {
	switch v {
	case "", "C", "c", "center", "centre", "middle":
		return SideCenter, nil
	case "L", "l", "left":
		return SideLeft, nil
	case "R", "r", "right":
		return SideRight, nil
	}
	return "", fmt.Errorf("spec: unknown side %q", v)
}

// DrawStyle is how a live joint is displayed.
type DrawStyle string

const (
	DrawBone  DrawStyle = "bone"
	DrawBox   DrawStyle = "box"
	DrawJoint DrawStyle = "joint"
	DrawNone  DrawStyle = "none"
)

// Matrix is a rigid transform in the live scene's world space.
type Matrix = sdf.M44

// Identity returns the identity transform.
func Identity() Matrix {
	return sdf.Identity3d()
}

// Constructor builds a fresh spec during a resize.
type Constructor func() *Spec

// Spec describes one desired live scene object.
//
// Parent and child links are maintained only through the child-list
// methods: inserting sets the child's parent, removing clears it, and a
// spec is never held in two child lists at once.
type Spec struct {
	Kind    Kind
	Enabled bool
	// Passthrough joints organize their children without materializing
	// a live object themselves. Ignored for pivots.
	Passthrough bool

	Name string
	// UUID is the identity of the bound live object; empty until one
	// has been created or adopted.
	UUID string

	// Matrix is the transform cached from the live object, nil until
	// one has been read back.
	Matrix        *Matrix
	DefaultMatrix Matrix
	// RotateOrder is OrderUnset unless the component pins one.
	RotateOrder RotateOrder

	Side      Side
	Type      string
	OtherType string
	DrawStyle DrawStyle

	// Shape is the optional display payload of a pivot.
	Shape *Shape

	binding  *Binding
	parent   *Spec
	children []*Spec
	root     bool
}

// NewJoint returns an enabled joint spec with its own binding.
func NewJoint() *Spec {
	s := &Spec{
		Kind:          KindJoint,
		Enabled:       true,
		DefaultMatrix: Identity(),
		Side:          SideCenter,
		RotateOrder:   OrderUnset,
		DrawStyle:     DrawBone,
	}
	s.binding = &Binding{driven: s}
	return s
}

// NewPivot returns an enabled pivot spec.
func NewPivot() *Spec {
	return &Spec{
		Kind:          KindPivot,
		Enabled:       true,
		DefaultMatrix: Identity(),
		Side:          SideCenter,
		RotateOrder:   OrderUnset,
		DrawStyle:     DrawNone,
	}
}

// New returns a fresh spec of kind k.
func New(k Kind) *Spec {
	if k == KindPivot {
		return NewPivot()
	}
	return NewJoint()
}

// NewRoot returns the container that owns a component's top-level specs
// of kind k. Roots never materialize and are never yielded by Flatten.
func NewRoot(k Kind) *Spec {
	s := New(k)
	s.root = true
	s.Name = k.String() + "s"
	return s
}

// IsRoot reports whether s is a tree container made by NewRoot.
func (s *Spec) IsRoot() bool { return s.root }

// IsPassthrough reports whether s is skipped during materialization.
func (s *Spec) IsPassthrough() bool {
	return s.root || (s.Kind == KindJoint && s.Passthrough)
}

// Materializes reports whether s, given its own flags, should own a
// live object.
func (s *Spec) Materializes() bool {
	return s.Enabled && !s.IsPassthrough()
}

// Binding returns the joint's binding, nil for pivots.
func (s *Spec) Binding() *Binding { return s.binding }

// SetBinding makes b the spec's binding. The previous binding is
// detached, and if b was driving another spec that spec receives a fresh
// empty binding.
func (s *Spec) SetBinding(b *Binding) error {
	if s.Kind != KindJoint {
		return fmt.Errorf("%w: %s specs have no binding", ErrShape, s.Kind)
	}
	if b == nil {
		return fmt.Errorf("%w: nil binding", ErrShape)
	}
	if b == s.binding {
		return nil
	}
	if prev := b.driven; prev != nil && prev != s {
		prev.binding = &Binding{driven: prev}
	}
	if s.binding != nil {
		s.binding.driven = nil
	}
	b.driven = s
	s.binding = b
	return nil
}

// EffectiveMatrix returns the cached transform, falling back to the
// default before any live object has supplied one.
func (s *Spec) EffectiveMatrix() Matrix {
	if s.Matrix != nil {
		return *s.Matrix
	}
	return s.DefaultMatrix
}

// SetMatrix caches m as the spec's transform.
func (s *Spec) SetMatrix(m Matrix) {
	s.Matrix = &m
}

// EffectivelyEnabled is false when s or any ancestor is disabled.
func (s *Spec) EffectivelyEnabled() bool {
	for p := s; p != nil; p = p.parent {
		if !p.Enabled {
			return false
		}
	}
	return true
}

// LiveParent returns the nearest ancestor that owns a live object, or
// nil when s sits at the top of its component's tree.
func (s *Spec) LiveParent() *Spec {
	for p := s.parent; p != nil; p = p.parent {
		if !p.IsPassthrough() {
			return p
		}
	}
	return nil
}

// Parent returns the spec whose child list holds s.
func (s *Spec) Parent() *Spec { return s.parent }

// Root returns the topmost ancestor of s.
func (s *Spec) Root() *Spec {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Children returns a copy of the child list.
func (s *Spec) Children() []*Spec {
	out := make([]*Spec, len(s.children))
	copy(out, s.children)
	return out
}

// NumChildren returns the number of children.
func (s *Spec) NumChildren() int { return len(s.children) }

// Child returns the i'th child.
func (s *Spec) Child(i int) *Spec { return s.children[i] }

// Index returns the position of s in its parent, or -1.
func (s *Spec) Index() int {
	if s.parent == nil {
		return -1
	}
	for i, c := range s.parent.children {
		if c == s {
			return i
		}
	}
	return -1
}

// Path returns the child indices leading from the tree root to s.
func (s *Spec) Path() []int {
	var path []int
	for p := s; p.parent != nil; p = p.parent {
		path = append([]int{p.Index()}, path...)
	}
	return path
}

// AddChild appends c to the child list.
func (s *Spec) AddChild(c *Spec) {
	s.InsertChild(len(s.children), c)
}

// InsertChild inserts c at index i, removing it from any previous
// parent first. Panics if c is nil or an ancestor of s.
func (s *Spec) InsertChild(i int, c *Spec) {
	if c == nil {
		panic("spec: InsertChild with nil child")
	}
	for p := s; p != nil; p = p.parent {
		if p == c {
			panic(fmt.Sprintf("spec: inserting %q under itself", c.Name))
		}
	}
	if c.parent != nil {
		old := c.parent
		j := c.Index()
		if old == s && j < i {
			i--
		}
		old.RemoveChildAt(j)
	}
	if i < 0 || i > len(s.children) {
		panic(fmt.Sprintf("spec: InsertChild index %d out of range [0,%d]", i, len(s.children)))
	}
	s.children = append(s.children, nil)
	copy(s.children[i+1:], s.children[i:])
	s.children[i] = c
	c.parent = s
}

// RemoveChild detaches c, reporting whether it was a child of s.
func (s *Spec) RemoveChild(c *Spec) bool {
	if c == nil || c.parent != s {
		return false
	}
	s.RemoveChildAt(c.Index())
	return true
}

// RemoveChildAt detaches and returns the i'th child.
func (s *Spec) RemoveChildAt(i int) *Spec {
	c := s.children[i]
	copy(s.children[i:], s.children[i+1:])
	s.children[len(s.children)-1] = nil
	s.children = s.children[:len(s.children)-1]
	c.parent = nil
	return c
}

// PopChild detaches and returns the last child, or nil.
func (s *Spec) PopChild() *Spec {
	if len(s.children) == 0 {
		return nil
	}
	return s.RemoveChildAt(len(s.children) - 1)
}

// ClearChildren detaches every child and returns them in order.
func (s *Spec) ClearChildren() []*Spec {
	out := s.children
	s.children = nil
	for _, c := range out {
		c.parent = nil
	}
	return out
}

func (s *Spec) String() string {
	if s.Name == "" {
		return fmt.Sprintf("<%s>", s.Kind)
	}
	return s.Name
}
