// Package rig assembles components into a character rig and moves the
// whole assembly between the Parametric, Skeleton and Rig states.
//
// A Component owns two spec trees, one of joints and one of pivots,
// which its Builder reshapes from the component's parameters whenever a
// parameter changes. An Assembly drives the reconciler over those trees
// in a fixed order for each state transition.
package rig

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"

	"github.com/chazu/armature/pkg/spec"
)

// ErrState reports a lifecycle request that conflicts with the state of
// the assembly.
var ErrState = errors.New("rig: invalid state")

// ErrUnknownType reports a component type with no registered builder.
var ErrUnknownType = errors.New("rig: unknown component type")

// Status is a component's lifecycle state.
type Status int

const (
	Parametric Status = iota
	Skeleton
	Rig
)

func (s Status) String() string {
	switch s {
	case Parametric:
		return "parametric"
	case Skeleton:
		return "skeleton"
	case Rig:
		return "rig"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "parametric":
		return Parametric, nil
	case "skeleton":
		return Skeleton, nil
	case "rig":
		return Rig, nil
	}
	return Parametric, fmt.Errorf("rig: unknown status %q", v)
}

// Params holds a component's declarative parameters.
type Params map[string]any

// Int returns the integer parameter key, or def when unset or not a
// number.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float returns the numeric parameter key, or def.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return def
}

// Bool returns the boolean parameter key, or def.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// String returns the string parameter key, or def.
func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Vec returns the three-component parameter key, or def.
func (p Params) Vec(key string, def [3]float64) [3]float64 {
	switch v := p[key].(type) {
	case [3]float64:
		return v
	case []float64:
		if len(v) == 3 {
			return [3]float64{v[0], v[1], v[2]}
		}
	case []any:
		if len(v) == 3 {
			var out [3]float64
			for i, x := range v {
				out[i] = Params{"x": x}.Float("x", def[i])
			}
			return out
		}
	}
	return def
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := slices.Collect(maps.Keys(p))
	sort.Strings(keys)
	return keys
}

// Component is one node of the assembly tree.
type Component struct {
	typeName string
	builder  Builder

	Name string
	Side spec.Side
	// AttachmentID indexes the parent's attachment options. Negative
	// values count from the end.
	AttachmentID int
	// AttachTopLevelOnly limits the options to the parent's top-level
	// joints.
	AttachTopLevelOnly bool

	params   Params
	parent   *Component
	children []*Component

	joints      *spec.Spec
	pivots      *spec.Spec
	jointsDirty bool
	pivotsDirty bool
	bin         spec.Bin
	status      Status

	// Rig state, valid while status is Rig or a Rig transition is in
	// progress.
	controls   map[*spec.Spec]string
	rigObjects []string
	tipTarget  string
}

// NewComponent returns a Parametric component built by b. Most callers
// use Registry.Create instead.
func NewComponent(typeName string, b Builder, params Params) *Component {
	c := &Component{
		typeName:    typeName,
		builder:     b,
		Name:        typeName,
		Side:        spec.SideCenter,
		params:      Params{},
		joints:      spec.NewRoot(spec.KindJoint),
		pivots:      spec.NewRoot(spec.KindPivot),
		jointsDirty: true,
		pivotsDirty: true,
	}
	if d, ok := b.(Defaulter); ok {
		maps.Copy(c.params, d.Defaults())
	}
	maps.Copy(c.params, params)
	return c
}

// Type returns the registered type name.
func (c *Component) Type() string { return c.typeName }

// Builder returns the component's builder.
func (c *Component) Builder() Builder { return c.builder }

// Status returns the lifecycle state.
func (c *Component) Status() Status { return c.status }

// Params returns a copy of the parameters.
func (c *Component) Params() Params { return maps.Clone(c.params) }

// Param returns one parameter.
func (c *Component) Param(key string) (any, bool) {
	v, ok := c.params[key]
	return v, ok
}

// SetParam changes a parameter and marks both spec trees dirty.
func (c *Component) SetParam(key string, v any) {
	c.params[key] = v
	c.MarkDirty()
}

// MarkDirty forces both spec trees to be rebuilt on next access.
func (c *Component) MarkDirty() {
	c.jointsDirty = true
	c.pivotsDirty = true
}

// Dirty reports whether each tree is waiting for a rebuild.
func (c *Component) Dirty() (joints, pivots bool) {
	return c.jointsDirty, c.pivotsDirty
}

// Joints returns the joint tree root, rebuilding it first if dirty.
func (c *Component) Joints() (*spec.Spec, error) {
	if c.jointsDirty {
		if err := c.builder.BuildJoints(c, c.joints, &c.bin); err != nil {
			return nil, fmt.Errorf("rig: %s %q: build joints: %w", c.typeName, c.Name, err)
		}
		c.jointsDirty = false
	}
	return c.joints, nil
}

// Pivots returns the pivot tree root, rebuilding it first if dirty.
func (c *Component) Pivots() (*spec.Spec, error) {
	if c.pivotsDirty {
		if err := c.builder.BuildPivots(c, c.pivots, &c.bin); err != nil {
			return nil, fmt.Errorf("rig: %s %q: build pivots: %w", c.typeName, c.Name, err)
		}
		c.pivotsDirty = false
	}
	return c.pivots, nil
}

// JointRoot returns the joint tree root without rebuilding it.
func (c *Component) JointRoot() *spec.Spec { return c.joints }

// PivotRoot returns the pivot tree root without rebuilding it.
func (c *Component) PivotRoot() *spec.Spec { return c.pivots }

// Bin returns the queue of specs whose live objects await deletion.
func (c *Component) Bin() *spec.Bin { return &c.bin }

// Parent returns the component this one is attached to.
func (c *Component) Parent() *Component { return c.parent }

// Children returns a copy of the child list.
func (c *Component) Children() []*Component { return slices.Clone(c.children) }

// AddChild attaches child under c. A child already attached elsewhere
// is moved.
func (c *Component) AddChild(child *Component) error {
	for p := c; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("rig: attaching %q under %q would create a cycle", child.Name, c.Name)
		}
	}
	if child.parent != nil {
		child.parent.detach(child)
	}
	child.parent = c
	c.children = append(c.children, child)
	return nil
}

func (c *Component) detach(child *Component) {
	if i := slices.Index(c.children, child); i >= 0 {
		c.children = slices.Delete(c.children, i, i+1)
	}
	child.parent = nil
}

// Remove detaches c from its parent. Only childless Parametric
// components can be removed; the queued bin must already be flushed.
func (c *Component) Remove() error {
	if c.status != Parametric {
		return fmt.Errorf("%w: cannot remove %q while %s", ErrState, c.Name, c.status)
	}
	if len(c.children) > 0 {
		return fmt.Errorf("%w: cannot remove %q with %d children", ErrState, c.Name, len(c.children))
	}
	if c.parent != nil {
		c.parent.detach(c)
	}
	return nil
}

// Find returns the first component named name in the subtree rooted at
// c.
func (c *Component) Find(name string) *Component {
	for d := range Walk(c) {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Control returns the rig control built for a joint spec.
func (c *Component) Control(s *spec.Spec) (string, bool) {
	name, ok := c.controls[s]
	return name, ok
}

// RigObjects returns the live objects created by the last rig build, in
// creation order.
func (c *Component) RigObjects() []string { return slices.Clone(c.rigObjects) }

// TipTarget returns the synthesized tip target of a rigged component, if
// its kind makes one.
func (c *Component) TipTarget() string { return c.tipTarget }

func (c *Component) resetRig() {
	c.controls = nil
	c.rigObjects = nil
	c.tipTarget = ""
}

func (c *Component) String() string {
	return fmt.Sprintf("%s(%s)", c.typeName, c.Name)
}

// Walk yields c and its descendants in pre-order, so parents come before
// their children.
func Walk(c *Component) iter.Seq[*Component] {
	return func(yield func(*Component) bool) {
		walk(c, yield)
	}
}

func walk(c *Component, yield func(*Component) bool) bool {
	if !yield(c) {
		return false
	}
	for _, child := range c.children {
		if !walk(child, yield) {
			return false
		}
	}
	return true
}

// walkReverse returns the pre-order of c reversed, so children come
// before their parents.
func walkReverse(c *Component) []*Component {
	order := slices.Collect(Walk(c))
	slices.Reverse(order)
	return order
}
