package rig

import (
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/armature/pkg/spec"
)

// RegisterBuiltins installs the built-in component kinds.
func RegisterBuiltins(r *Registry) {
	r.MustRegister("root", func() Builder { return rootBuilder{} })
	r.MustRegister("chain", func() Builder {
		return chainBuilder{role: "link", links: 3, axis: v3.Vec{Y: 1}, shape: spec.ShapeBox}
	})
	r.MustRegister("spine", func() Builder {
		return spineBuilder{chainBuilder{role: "spine", links: 4, axis: v3.Vec{Y: 1}, shape: spec.ShapeRing}}
	})
	r.MustRegister("tail", func() Builder {
		return chainBuilder{role: "tail", links: 5, axis: v3.Vec{Z: -1}, shape: spec.ShapeRing}
	})
	r.MustRegister("head", func() Builder { return headBuilder{} })
	r.MustRegister("clavicle", func() Builder { return clavicleBuilder{} })
	r.MustRegister("arm", func() Builder { return armBuilder{} })
	r.MustRegister("face", func() Builder { return faceBuilder{} })
}

// specName follows <name>_<side>_<role><NN>_<jnt|piv>. Index 0 omits the
// number.
func (c *Component) specName(side spec.Side, role string, index int, k spec.Kind) string {
	suffix := "jnt"
	if k == spec.KindPivot {
		suffix = "piv"
	}
	if index > 0 {
		return fmt.Sprintf("%s_%s_%s%02d_%s", c.Name, side, role, index, suffix)
	}
	return fmt.Sprintf("%s_%s_%s_%s", c.Name, side, role, suffix)
}

// at returns a position relative to the component origin. Right-side
// components mirror across X.
func (c *Component) at(offset v3.Vec) v3.Vec {
	o := c.params.Vec("origin", [3]float64{})
	if c.Side == spec.SideRight {
		offset.X = -offset.X
	}
	return v3.Vec{X: o[0] + offset.X, Y: o[1] + offset.Y, Z: o[2] + offset.Z}
}

func (c *Component) spacing() float64 {
	return c.params.Float("spacing", 1)
}

// label assigns the declared name, classification and default position.
func (c *Component) label(s *spec.Spec, side spec.Side, role string, index int, pos v3.Vec) {
	s.Name = c.specName(side, role, index, s.Kind)
	s.Side = side
	s.Type = c.typeName
	s.OtherType = role
	s.DefaultMatrix = sdf.Translate3d(pos)
}

// leaf makes s childless, queueing any stray descendants.
func leaf(s *spec.Spec, bin *spec.Bin) error {
	_, err := spec.ResizeFlat(0, s, nil, bin)
	return err
}

func nonNegative(c *Component, key string, def int) (int, error) {
	n := c.params.Int(key, def)
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %d", spec.ErrShape, key, n)
	}
	return n, nil
}

type rootBuilder struct{}

func (rootBuilder) BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error {
	kids, err := spec.ResizeFlat(1, root, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	c.label(kids[0], c.Side, "root", 0, c.at(v3.Vec{}))
	return leaf(kids[0], bin)
}

func (rootBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	kids, err := spec.ResizeFlat(1, root, spec.NewPivot, bin)
	if err != nil {
		return err
	}
	cog := kids[0]
	c.label(cog, c.Side, "cog", 0, c.at(v3.Vec{}))
	cog.Shape = &spec.Shape{Kind: spec.ShapeBox, Size: [3]float64{2, 0.2, 2}}
	return nil
}

// chainBuilder lays out an unbranched chain along axis with one pivot
// per link.
type chainBuilder struct {
	role  string
	links int
	axis  v3.Vec
	shape spec.ShapeKind
}

func (b chainBuilder) Defaults() Params {
	return Params{"links": b.links}
}

func (b chainBuilder) linkPos(c *Component, i int) v3.Vec {
	return c.at(b.axis.MulScalar(float64(i) * c.spacing()))
}

func (b chainBuilder) BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error {
	n, err := nonNegative(c, "links", b.links)
	if err != nil {
		return err
	}
	links, err := spec.ResizeChain(n, root, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	for i, s := range links {
		c.label(s, c.Side, b.role, i+1, b.linkPos(c, i))
	}
	return nil
}

func (b chainBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	n, err := nonNegative(c, "links", b.links)
	if err != nil {
		return err
	}
	pivots, err := spec.ResizeFlat(n, root, spec.NewPivot, bin)
	if err != nil {
		return err
	}
	for i, p := range pivots {
		c.label(p, c.Side, b.role, i+1, b.linkPos(c, i))
		p.Shape = &spec.Shape{Kind: b.shape, Size: [3]float64{0.5, 0.1, 0.5}}
	}
	return nil
}

// spineBuilder adds a tip pivot past the last link, and a tip target
// control in the rig that clavicles attaching to the top of the spine
// are driven from.
type spineBuilder struct {
	chainBuilder
}

func (b spineBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	n, err := nonNegative(c, "links", b.links)
	if err != nil {
		return err
	}
	pivots, err := spec.ResizeFlat(n+1, root, spec.NewPivot, bin)
	if err != nil {
		return err
	}
	for i, p := range pivots[:n] {
		c.label(p, c.Side, b.role, i+1, b.linkPos(c, i))
		p.Shape = &spec.Shape{Kind: b.shape, Size: [3]float64{1, 0.1}}
	}
	tip := pivots[n]
	c.label(tip, c.Side, "tip", 0, b.linkPos(c, n))
	tip.Shape = &spec.Shape{Kind: spec.ShapeCross, Size: [3]float64{0.5, 0.05}}
	return nil
}

func (b spineBuilder) BuildRig(rc *RigContext) error {
	last, err := rc.BuildControls()
	if err != nil {
		return err
	}
	tip := rc.Component.pivots.Children()
	if len(tip) == 0 {
		return nil
	}
	c := rc.Component
	name, err := rc.CreateObject(fmt.Sprintf("%s_%s_tip_tgt", c.Name, c.Side), last, tip[len(tip)-1])
	if err != nil {
		return err
	}
	c.tipTarget = name
	return nil
}

type headBuilder struct{}

func (headBuilder) Defaults() Params {
	return Params{"neckLinks": 1, "jaw": true, "eyes": true}
}

func (headBuilder) BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error {
	n, err := nonNegative(c, "neckLinks", 1)
	if err != nil {
		return err
	}
	step := c.spacing() / 2
	cur := root
	for i := range n {
		kids, err := spec.ResizeFlat(1, cur, spec.NewJoint, bin)
		if err != nil {
			return err
		}
		cur = kids[0]
		c.label(cur, c.Side, "neck", i+1, c.at(v3.Vec{Y: float64(i) * step}))
	}
	kids, err := spec.ResizeFlat(1, cur, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	head := kids[0]
	top := float64(n) * step
	c.label(head, c.Side, "head", 0, c.at(v3.Vec{Y: top}))

	feats, err := spec.ResizeFlat(3, head, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	jaw, eyeL, eyeR := feats[0], feats[1], feats[2]
	c.label(jaw, c.Side, "jaw", 0, c.at(v3.Vec{Y: top, Z: step}))
	c.label(eyeL, spec.SideLeft, "eye", 0, c.at(v3.Vec{X: 0.3, Y: top + step, Z: step}))
	c.label(eyeR, spec.SideRight, "eye", 0, c.at(v3.Vec{X: -0.3, Y: top + step, Z: step}))
	jaw.Enabled = c.params.Bool("jaw", true)
	eyes := c.params.Bool("eyes", true)
	eyeL.Enabled, eyeR.Enabled = eyes, eyes
	for _, f := range feats {
		if err := leaf(f, bin); err != nil {
			return err
		}
	}
	return nil
}

func (headBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	kids, err := spec.ResizeFlat(1, root, spec.NewPivot, bin)
	if err != nil {
		return err
	}
	n := c.params.Int("neckLinks", 1)
	c.label(kids[0], c.Side, "head", 0, c.at(v3.Vec{Y: float64(n) * c.spacing() / 2}))
	kids[0].Shape = &spec.Shape{Kind: spec.ShapeCross, Size: [3]float64{1, 0.05}}
	return nil
}

type clavicleBuilder struct{}

func (clavicleBuilder) BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error {
	kids, err := spec.ResizeFlat(1, root, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	c.label(kids[0], c.Side, "clavicle", 0, c.at(v3.Vec{X: 0.2}))
	return leaf(kids[0], bin)
}

func (clavicleBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	_, err := spec.ResizeFlat(0, root, nil, bin)
	return err
}

// ResolveAttachment drives a clavicle sitting on the last joint of a
// spine from the spine's tip target instead of that joint's control.
func (clavicleBuilder) ResolveAttachment(c *Component, target *spec.Spec, options []*spec.Spec) (string, string, bool) {
	p := c.parent
	if p == nil || p.typeName != "spine" || len(options) == 0 || target != options[len(options)-1] {
		return "", "", false
	}
	if p.tipTarget == "" {
		return "", "", false
	}
	return liveName(target), p.tipTarget, true
}

type armBuilder struct{}

func (armBuilder) Defaults() Params {
	return Params{"twist": 0, "hand": true}
}

func (armBuilder) BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error {
	twist, err := nonNegative(c, "twist", 0)
	if err != nil {
		return err
	}
	sp := c.spacing()
	kids, err := spec.ResizeFlat(1, root, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	shoulder := kids[0]
	c.label(shoulder, c.Side, "shoulder", 0, c.at(v3.Vec{}))

	upper, err := spec.ResizeFlat(1+twist, shoulder, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	elbow := upper[0]
	c.label(elbow, c.Side, "elbow", 0, c.at(v3.Vec{X: sp}))

	lower, err := spec.ResizeFlat(1+twist, elbow, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	wrist := lower[0]
	c.label(wrist, c.Side, "wrist", 0, c.at(v3.Vec{X: 2 * sp}))

	for i := range twist {
		f := float64(i+1) / float64(twist+1)
		c.label(upper[i+1], c.Side, "upperTwist", i+1, c.at(v3.Vec{X: f * sp}))
		c.label(lower[i+1], c.Side, "lowerTwist", i+1, c.at(v3.Vec{X: sp + f*sp}))
		upper[i+1].DrawStyle = spec.DrawJoint
		lower[i+1].DrawStyle = spec.DrawJoint
		if err := leaf(upper[i+1], bin); err != nil {
			return err
		}
		if err := leaf(lower[i+1], bin); err != nil {
			return err
		}
	}

	hands, err := spec.ResizeFlat(1, wrist, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	hand := hands[0]
	c.label(hand, c.Side, "hand", 0, c.at(v3.Vec{X: 2.5 * sp}))
	hand.Enabled = c.params.Bool("hand", true)
	return leaf(hand, bin)
}

func (armBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	kids, err := spec.ResizeFlat(1, root, spec.NewPivot, bin)
	if err != nil {
		return err
	}
	pole := kids[0]
	c.label(pole, c.Side, "pole", 0, c.at(v3.Vec{X: c.spacing(), Z: -c.spacing()}))
	pole.Shape = &spec.Shape{Kind: spec.ShapeCross, Size: [3]float64{0.3, 0.05}}
	return nil
}

var faceGroups = [3]string{"upper", "mid", "lower"}

type faceBuilder struct{}

func (faceBuilder) Defaults() Params {
	return Params{"split": true, "upper": 2, "mid": 2, "lower": 2}
}

func (faceBuilder) sizes(c *Component) ([]int, error) {
	sizes := make([]int, len(faceGroups))
	for i, g := range faceGroups {
		n, err := nonNegative(c, g, 2)
		if err != nil {
			return nil, err
		}
		sizes[i] = n
	}
	return sizes, nil
}

func (faceBuilder) groupPos(c *Component, g, i, n int) v3.Vec {
	x := 0.0
	if n > 1 {
		x = -0.5 + float64(i)/float64(n-1)
	}
	return c.at(v3.Vec{X: x, Y: 0.5 - 0.5*float64(g), Z: 0.5})
}

// BuildJoints makes one group spec per face region. Groups become
// passthrough when split is off, so their joints hang directly under the
// component's attachment.
func (b faceBuilder) BuildJoints(c *Component, root *spec.Spec, bin *spec.Bin) error {
	sizes, err := b.sizes(c)
	if err != nil {
		return err
	}
	split := c.params.Bool("split", true)
	groups, err := spec.ResizeFlat(len(faceGroups), root, spec.NewJoint, bin)
	if err != nil {
		return err
	}
	for gi, g := range groups {
		c.label(g, c.Side, faceGroups[gi], 0, c.at(v3.Vec{Y: 0.5 - 0.5*float64(gi)}))
		g.Passthrough = !split
		g.DrawStyle = spec.DrawNone
		kids, err := spec.ResizeFlat(sizes[gi], g, spec.NewJoint, bin)
		if err != nil {
			return err
		}
		for i, k := range kids {
			c.label(k, c.Side, faceGroups[gi], i+1, b.groupPos(c, gi, i, len(kids)))
			k.DrawStyle = spec.DrawJoint
			if err := leaf(k, bin); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildPivots sizes every region's pivots with a single flat resize and
// splits the result per region.
func (b faceBuilder) BuildPivots(c *Component, root *spec.Spec, bin *spec.Bin) error {
	sizes, err := b.sizes(c)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range sizes {
		total += n
	}
	flat, err := spec.ResizeFlat(total, root, spec.NewPivot, bin)
	if err != nil {
		return err
	}
	parts, err := spec.Unpack(sizes, flat)
	if err != nil {
		return err
	}
	for gi, part := range parts {
		for i, p := range part {
			c.label(p, c.Side, faceGroups[gi], i+1, b.groupPos(c, gi, i, len(part)))
			p.Shape = &spec.Shape{Kind: spec.ShapeBox, Size: [3]float64{0.1, 0.1, 0.1}}
		}
	}
	return nil
}
