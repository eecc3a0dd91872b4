package rig

import (
	"fmt"

	"github.com/chazu/armature/pkg/spec"
)

type componentKey struct {
	typeName string
	name     string
	side     spec.Side
}

func keyOf(c *Component) componentKey {
	return componentKey{c.typeName, c.Name, c.Side}
}

// Transplant moves the built state of a previous tree into a freshly
// declared one. Components are matched by type, name and side; a match
// takes over the old spec trees, pending deletions and status, and is
// marked dirty so its parameters apply on the next build. The specs of
// old components with no match are queued in the new root's bin, so the
// next skeleton build deletes their live objects.
//
// The old tree must not be rigged.
func Transplant(from, to *Component) error {
	old := make(map[componentKey]*Component)
	for c := range Walk(from) {
		if c.status == Rig {
			return fmt.Errorf("%w: %s must be torn down to skeleton before transplanting", ErrState, c)
		}
		old[keyOf(c)] = c
	}
	for c := range Walk(to) {
		k := keyOf(c)
		prev, ok := old[k]
		if !ok {
			continue
		}
		delete(old, k)
		c.joints, c.pivots = prev.joints, prev.pivots
		c.bin.Push(prev.bin.Drain()...)
		c.status = prev.status
		c.MarkDirty()
	}
	for c := range Walk(from) {
		if _, orphaned := old[keyOf(c)]; !orphaned {
			continue
		}
		to.bin.Push(c.bin.Drain()...)
		for _, root := range []*spec.Spec{c.joints, c.pivots} {
			for s := range spec.FlattenAll([]*spec.Spec{root}) {
				if s.UUID != "" {
					to.bin.Push(s)
				}
			}
		}
	}
	return nil
}
