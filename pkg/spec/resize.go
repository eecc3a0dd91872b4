package spec

import (
	"fmt"
	"iter"
	"slices"
)

// Bin queues specs whose live objects are awaiting deletion. Specs are
// drained in the order they were pushed.
type Bin struct {
	specs []*Spec
}

// Push appends specs to the queue.
func (b *Bin) Push(specs ...*Spec) {
	b.specs = append(b.specs, specs...)
}

// Len returns the number of queued specs.
func (b *Bin) Len() int { return len(b.specs) }

// Specs returns a copy of the queue.
func (b *Bin) Specs() []*Spec {
	out := make([]*Spec, len(b.specs))
	copy(out, b.specs)
	return out
}

// Drain empties the queue and returns its contents.
func (b *Bin) Drain() []*Spec {
	out := b.specs
	b.specs = nil
	return out
}

// ResizeFlat grows or shrinks parent's child list to exactly target
// specs. Growth appends ctor results; shrinking pops from the tail and
// queues each popped spec, followed by its whole subtree in pre-order,
// into bin. Children below the new size are never touched, so their
// identities and live bindings survive repeated edits.
func ResizeFlat(target int, parent *Spec, ctor Constructor, bin *Bin) ([]*Spec, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrShape, target)
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: nil parent", ErrShape)
	}
	if bin == nil {
		return nil, fmt.Errorf("%w: nil bin", ErrShape)
	}
	for len(parent.children) > target {
		popped := parent.PopChild()
		bin.Push(slices.Collect(FlattenAll([]*Spec{popped}))...)
	}
	for len(parent.children) < target {
		if ctor == nil {
			return nil, fmt.Errorf("%w: nil constructor", ErrShape)
		}
		c := ctor()
		if c == nil {
			return nil, fmt.Errorf("%w: constructor returned nil", ErrShape)
		}
		if c.Kind != parent.Kind {
			return nil, fmt.Errorf("%w: constructor made a %s under a %s", ErrShape, c.Kind, parent.Kind)
		}
		parent.AddChild(c)
	}
	return parent.Children(), nil
}

// ResizeChain treats the tree under top as one unbranched chain and
// extends or truncates it to exactly target links, returning them in
// order. Each level is resized to a single child, so stray branches are
// destroyed rather than kept. Everything below the new tail is queued
// into bin in one pass.
func ResizeChain(target int, top *Spec, ctor Constructor, bin *Bin) ([]*Spec, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrShape, target)
	}
	links := make([]*Spec, 0, target)
	cur := top
	for range target {
		kids, err := ResizeFlat(1, cur, ctor, bin)
		if err != nil {
			return nil, err
		}
		cur = kids[0]
		links = append(links, cur)
	}
	if _, err := ResizeFlat(0, cur, ctor, bin); err != nil {
		return nil, err
	}
	return links, nil
}

// Filter selects which specs Flatten yields. The zero value skips
// disabled subtrees and passthrough specs.
type Filter struct {
	// IncludeDisabled visits disabled specs and their subtrees.
	IncludeDisabled bool
	// IncludePassthrough yields passthrough specs themselves. Their
	// children are visited either way.
	IncludePassthrough bool
}

// All includes every spec except tree roots.
var All = Filter{IncludeDisabled: true, IncludePassthrough: true}

// Flatten returns a depth-first pre-order traversal of specs and their
// descendants. The sequence is lazy and may be ranged over repeatedly.
// Tree roots made by NewRoot are never yielded.
func Flatten(specs []*Spec, f Filter) iter.Seq[*Spec] {
	return func(yield func(*Spec) bool) {
		flattenInto(specs, f, yield)
	}
}

// FlattenAll is Flatten with every filter disabled.
func FlattenAll(specs []*Spec) iter.Seq[*Spec] {
	return Flatten(specs, All)
}

func flattenInto(specs []*Spec, f Filter, yield func(*Spec) bool) bool {
	for _, s := range specs {
		if !s.Enabled && !f.IncludeDisabled {
			continue
		}
		skip := s.root || (s.IsPassthrough() && !f.IncludePassthrough)
		if !skip && !yield(s) {
			return false
		}
		if !flattenInto(s.children, f, yield) {
			return false
		}
	}
	return true
}

// Unpack splits specs into contiguous groups of the given sizes. The
// sizes must sum to len(specs).
func Unpack(sizes []int, specs []*Spec) ([][]*Spec, error) {
	total := 0
	for _, n := range sizes {
		if n < 0 {
			return nil, fmt.Errorf("%w: negative group size %d", ErrShape, n)
		}
		total += n
	}
	if total != len(specs) {
		return nil, fmt.Errorf("%w: group sizes sum to %d, have %d specs", ErrShape, total, len(specs))
	}
	groups := make([][]*Spec, len(sizes))
	at := 0
	for i, n := range sizes {
		groups[i] = specs[at : at+n : at+n]
		at += n
	}
	return groups, nil
}
