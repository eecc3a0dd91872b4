package rig

import (
	"slices"

	"github.com/chazu/armature/pkg/spec"
)

// AttachmentOptions returns the parent's enabled, materializing joints
// in pre-order. With AttachTopLevelOnly only the first materializing
// level below the parent's joint root is offered.
func (c *Component) AttachmentOptions() []*spec.Spec {
	if c.parent == nil {
		return nil
	}
	root := c.parent.joints
	if !c.AttachTopLevelOnly {
		return slices.Collect(spec.Flatten([]*spec.Spec{root}, spec.Filter{}))
	}
	var opts []*spec.Spec
	var visit func(s *spec.Spec)
	visit = func(s *spec.Spec) {
		for _, child := range s.Children() {
			switch {
			case !child.Enabled:
			case child.IsPassthrough():
				visit(child)
			default:
				opts = append(opts, child)
			}
		}
	}
	visit(root)
	return opts
}

// AttachmentSpec returns the parent joint selected by AttachmentID, or
// nil when there is no parent or the index is out of range.
func (c *Component) AttachmentSpec() *spec.Spec {
	return pick(c.AttachmentOptions(), c.AttachmentID)
}

func pick(opts []*spec.Spec, id int) *spec.Spec {
	if id < 0 {
		id += len(opts)
	}
	if id < 0 || id >= len(opts) {
		return nil
	}
	return opts[id]
}

// AttachmentTargets returns the live object the component's skeleton
// hangs under and the object that drives the component's rig. Once the
// parent has built its rig the driver is the parent's control for the
// attachment joint; before that it is the joint itself. Both are empty
// when there is no attachment.
func (c *Component) AttachmentTargets() (export, driver string) {
	opts := c.AttachmentOptions()
	target := pick(opts, c.AttachmentID)
	if target == nil {
		return "", ""
	}
	if r, ok := c.builder.(AttachmentResolver); ok {
		if e, d, ok := r.ResolveAttachment(c, target, opts); ok {
			return e, d
		}
	}
	export = liveName(target)
	driver = export
	if ctl, ok := c.parent.controls[target]; ok {
		driver = ctl
	}
	return export, driver
}

// liveName is the spec's name once it is bound to a live object.
func liveName(s *spec.Spec) string {
	if s.UUID == "" {
		return ""
	}
	return s.Name
}
