package spec

import (
	"fmt"
	"strings"
)

// BindingType selects how a driver object couples to a driven joint.
type BindingType int

const (
	BindNone BindingType = iota
	BindConstraint
	BindReparent
	BindOffsetTransform
)

func (t BindingType) String() string {
	switch t {
	case BindNone:
		return "none"
	case BindConstraint:
		return "constraint"
	case BindReparent:
		return "reparent"
	case BindOffsetTransform:
		return "offset"
	default:
		return fmt.Sprintf("BindingType(%d)", int(t))
	}
}

// ParseBindingType is the inverse of BindingType.String.
func ParseBindingType(v string) (BindingType, error) {
	switch v {
	case "", "none":
		return BindNone, nil
	case "constraint":
		return BindConstraint, nil
	case "reparent":
		return BindReparent, nil
	case "offset", "offset_transform":
		return BindOffsetTransform, nil
	}
	return BindNone, fmt.Errorf("spec: unknown binding type %q", v)
}

// Axes is a set of x/y/z flags.
type Axes uint8

const (
	AxisX Axes = 1 << iota
	AxisY
	AxisZ

	AxesNone Axes = 0
	AxesAll       = AxisX | AxisY | AxisZ
)

// Has reports whether every axis in a is set.
func (a Axes) Has(b Axes) bool { return a&b == b }

func (a Axes) String() string {
	var b strings.Builder
	for i, name := range []string{"x", "y", "z"} {
		if a&(1<<i) != 0 {
			b.WriteString(name)
		}
	}
	return b.String()
}

// Binding describes how a named driver object controls the live object
// of the joint that owns it. Every joint spec owns exactly one.
type Binding struct {
	DriverName      string
	DriverNamespace string
	Type            BindingType
	MaintainOffset  bool
	SkipTranslate   Axes
	SkipRotate      Axes
	SkipScale       Axes

	driven *Spec
}

// Driven returns the owning joint spec.
func (b *Binding) Driven() *Spec { return b.driven }

// HasDriver reports whether a driver name is set.
func (b *Binding) HasDriver() bool { return b.DriverName != "" }

// Qualified returns namespace:name, or the bare name without a namespace.
func (b *Binding) Qualified() string {
	if b.DriverNamespace == "" {
		return b.DriverName
	}
	return b.DriverNamespace + ":" + b.DriverName
}

// Clear resets the binding to an uncoupled state, keeping its owner.
func (b *Binding) Clear() {
	driven := b.driven
	*b = Binding{driven: driven}
}
