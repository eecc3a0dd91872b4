package rig

import (
	"fmt"
	"maps"

	"github.com/chazu/armature/pkg/spec"
)

// ControlRecord ties a rig control to the joint it was built for.
type ControlRecord struct {
	Path []int  `cbor:"path"`
	Name string `cbor:"name"`
}

// Record is the serializable form of a component and its subtree.
type Record struct {
	Type         string          `cbor:"type"`
	Name         string          `cbor:"name"`
	Side         spec.Side       `cbor:"side"`
	AttachmentID int             `cbor:"attach"`
	AttachTop    bool            `cbor:"attach_top,omitempty"`
	Status       Status          `cbor:"status"`
	Params       Params          `cbor:"params,omitempty"`
	Joints       spec.Record     `cbor:"joints"`
	Pivots       spec.Record     `cbor:"pivots"`
	Controls     []ControlRecord `cbor:"controls,omitempty"`
	RigObjects   []string        `cbor:"rig_objects,omitempty"`
	TipTarget    string          `cbor:"tip_target,omitempty"`
	Children     []Record        `cbor:"children,omitempty"`
}

// Record captures c and its descendants, including live identities and
// rig state.
func (c *Component) Record() Record {
	r := Record{
		Type:         c.typeName,
		Name:         c.Name,
		Side:         c.Side,
		AttachmentID: c.AttachmentID,
		AttachTop:    c.AttachTopLevelOnly,
		Status:       c.status,
		Params:       maps.Clone(c.params),
		Joints:       c.joints.Record(),
		Pivots:       c.pivots.Record(),
		RigObjects:   c.RigObjects(),
		TipTarget:    c.tipTarget,
	}
	for s := range spec.FlattenAll([]*spec.Spec{c.joints}) {
		if ctl, ok := c.controls[s]; ok {
			r.Controls = append(r.Controls, ControlRecord{Path: s.Path(), Name: ctl})
		}
	}
	for _, child := range c.children {
		r.Children = append(r.Children, child.Record())
	}
	return r
}

// FromRecord rebuilds a component tree with builders from reg. Spec
// trees are restored as recorded and marked dirty, so the next build
// reconciles them with the parameters without losing identities.
func FromRecord(reg *Registry, r Record) (*Component, error) {
	c, err := reg.Create(r.Type, r.Params)
	if err != nil {
		return nil, err
	}
	c.Name = r.Name
	c.Side = r.Side
	c.AttachmentID = r.AttachmentID
	c.AttachTopLevelOnly = r.AttachTop
	c.status = r.Status

	if c.joints, err = restoreRoot(r.Joints, spec.KindJoint); err != nil {
		return nil, fmt.Errorf("rig: %s %q: joints: %w", r.Type, r.Name, err)
	}
	if c.pivots, err = restoreRoot(r.Pivots, spec.KindPivot); err != nil {
		return nil, fmt.Errorf("rig: %s %q: pivots: %w", r.Type, r.Name, err)
	}

	if len(r.Controls) > 0 {
		c.controls = make(map[*spec.Spec]string, len(r.Controls))
		for _, cr := range r.Controls {
			s, err := atPath(c.joints, cr.Path)
			if err != nil {
				return nil, fmt.Errorf("rig: %s %q: control %q: %w", r.Type, r.Name, cr.Name, err)
			}
			c.controls[s] = cr.Name
		}
	}
	c.rigObjects = r.RigObjects
	c.tipTarget = r.TipTarget

	for _, cr := range r.Children {
		child, err := FromRecord(reg, cr)
		if err != nil {
			return nil, err
		}
		if err := c.AddChild(child); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func restoreRoot(r spec.Record, k spec.Kind) (*spec.Spec, error) {
	if r.Kind != k || !r.Root {
		return nil, fmt.Errorf("%w: expected %s root", spec.ErrShape, k)
	}
	return spec.FromRecord(r)
}

func atPath(root *spec.Spec, path []int) (*spec.Spec, error) {
	s := root
	for _, i := range path {
		if i < 0 || i >= s.NumChildren() {
			return nil, fmt.Errorf("%w: path %v out of range", spec.ErrShape, path)
		}
		s = s.Child(i)
	}
	return s, nil
}
