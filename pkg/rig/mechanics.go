package rig

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/armature/pkg/reconcile"
	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/spec"
)

// RigContext is handed to a component's rig build. Everything created
// through it is recorded on the component and deleted on teardown.
type RigContext struct {
	Component *Component
	// Driver is the live object the component's top controls follow.
	Driver string

	a   *Assembly
	rec *reconcile.Reconciler
}

// Manager returns the scene capability of the build.
func (rc *RigContext) Manager() scene.Manager { return rc.a.mgr }

// CreateObject creates a rig-only transform under parent placed at the
// effective transform of at, which may be nil.
func (rc *RigContext) CreateObject(name, parent string, at *spec.Spec) (string, error) {
	return rc.create(scene.KindTransform, name, parent, at, "target")
}

func (rc *RigContext) create(kind scene.Kind, name, parent string, at *spec.Spec, role string) (string, error) {
	mgr := rc.a.mgr
	got, _, err := mgr.Create(kind, name, parent)
	if errors.Is(err, scene.ErrNotFound) && parent != "" {
		rc.a.logger.Warn("rig parent not found, creating at scene root",
			"component", rc.Component.Name, "name", name, "parent", parent)
		got, _, err = mgr.Create(kind, name, "")
	}
	if err != nil {
		return "", fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	c := rc.Component
	c.rigObjects = append(c.rigObjects, got)
	if err := mgr.SetAttribute(got, scene.AttrRigRole, role); err != nil {
		return "", fmt.Errorf("tag %q: %w", got, err)
	}
	if at != nil {
		if err := rc.rec.PushTransform(got, at); err != nil {
			return "", fmt.Errorf("place %q: %w", got, err)
		}
	}
	return got, nil
}

// BuildControls creates one control per materialized joint, mirroring
// the joint hierarchy under Driver, and returns the last control made.
func (rc *RigContext) BuildControls() (string, error) {
	c := rc.Component
	if c.controls == nil {
		c.controls = make(map[*spec.Spec]string)
	}
	var last string
	for s := range spec.Flatten([]*spec.Spec{c.joints}, spec.Filter{}) {
		parent := rc.Driver
		if lp := s.LiveParent(); lp != nil {
			if ctl, ok := c.controls[lp]; ok {
				parent = ctl
			}
		}
		name := strings.TrimSuffix(s.Name, "_jnt") + "_ctl"
		got, err := rc.create(scene.KindControl, name, parent, s, "control")
		if err != nil {
			return "", err
		}
		c.controls[s] = got
		last = got
	}
	return last, nil
}

// topControls returns the controls of the component's top-level joints
// in pre-order.
func (c *Component) topControls() []string {
	var out []string
	for s := range spec.Flatten([]*spec.Spec{c.joints}, spec.Filter{}) {
		if s.LiveParent() != nil {
			continue
		}
		if ctl, ok := c.controls[s]; ok {
			out = append(out, ctl)
		}
	}
	return out
}

// bindControls couples every controlled joint to its control. Joints
// that already carry a binding keep it.
func (a *Assembly) bindControls(c *Component, rec *reconcile.Reconciler) error {
	for s := range spec.Flatten([]*spec.Spec{c.joints}, spec.Filter{}) {
		b := s.Binding()
		if b == nil {
			continue
		}
		if b.Type == spec.BindNone {
			ctl, ok := c.controls[s]
			if !ok {
				continue
			}
			b.DriverName, b.DriverNamespace = ctl, ""
			b.Type = spec.BindConstraint
			b.MaintainOffset = true
		}
		if _, err := rec.Bind(s); err != nil {
			return err
		}
	}
	return nil
}

// unbindControls removes every joint binding and forgets the ones that
// pointed at the component's own controls.
func (a *Assembly) unbindControls(c *Component, rec *reconcile.Reconciler) error {
	owned := make(map[string]bool, len(c.controls))
	for _, ctl := range c.controls {
		owned[ctl] = true
	}
	for s := range spec.FlattenAll([]*spec.Spec{c.joints}) {
		b := s.Binding()
		if b == nil || b.Type == spec.BindNone {
			continue
		}
		if _, err := rec.Unbind(s); err != nil {
			return err
		}
		if owned[b.DriverName] && b.DriverNamespace == "" {
			b.Clear()
		}
	}
	return nil
}

// deleteRigObjects deletes what the rig build created, newest first.
// Objects already gone with a deleted parent are skipped.
func (a *Assembly) deleteRigObjects(c *Component) error {
	objs := slices.Clone(c.rigObjects)
	slices.Reverse(objs)
	for _, name := range objs {
		if err := a.mgr.Delete(name); err != nil && !errors.Is(err, scene.ErrNotFound) {
			return fmt.Errorf("delete %q: %w", name, err)
		}
	}
	c.resetRig()
	return nil
}

// finalizeSpaces offers each top control the world, the attachment
// driver and the top controls of the child components as spaces. It
// needs every child's controls, so it runs after the whole tree's rig
// build.
func (a *Assembly) finalizeSpaces(c *Component) error {
	_, driver := c.AttachmentTargets()
	spaces := []string{"world"}
	if driver != "" {
		spaces = append(spaces, driver)
	}
	for _, child := range c.children {
		spaces = append(spaces, child.topControls()...)
	}
	for _, ctl := range c.topControls() {
		if err := a.mgr.SetAttribute(ctl, scene.AttrSpaces, slices.Clone(spaces)); err != nil {
			if errors.Is(err, scene.ErrNotFound) {
				a.logger.Warn("control not found", "component", c.Name, "control", ctl)
				continue
			}
			return fmt.Errorf("set spaces on %q: %w", ctl, err)
		}
	}
	return nil
}
