package spec

import (
	"encoding/hex"
	"fmt"

	"github.com/chazu/armature/pkg/codec"
	"github.com/zeebo/blake3"
)

// BindingRecord is the serializable form of a Binding.
type BindingRecord struct {
	DriverName      string      `cbor:"driver,omitempty"`
	DriverNamespace string      `cbor:"namespace,omitempty"`
	Type            BindingType `cbor:"type"`
	MaintainOffset  bool        `cbor:"maintain_offset,omitempty"`
	SkipTranslate   Axes        `cbor:"skip_t,omitempty"`
	SkipRotate      Axes        `cbor:"skip_r,omitempty"`
	SkipScale       Axes        `cbor:"skip_s,omitempty"`
}

// Record is the serializable form of a spec and its subtree.
type Record struct {
	Kind        Kind           `cbor:"kind"`
	Root        bool           `cbor:"root,omitempty"`
	Enabled     bool           `cbor:"enabled"`
	Passthrough bool           `cbor:"passthrough,omitempty"`
	Name        string         `cbor:"name,omitempty"`
	UUID        string         `cbor:"uuid,omitempty"`
	Matrix      *TRS           `cbor:"matrix,omitempty"`
	Default     TRS            `cbor:"default"`
	RotateOrder RotateOrder    `cbor:"rotate_order"`
	Side        Side           `cbor:"side,omitempty"`
	Type        string         `cbor:"type,omitempty"`
	OtherType   string         `cbor:"other_type,omitempty"`
	DrawStyle   DrawStyle      `cbor:"draw_style,omitempty"`
	Shape       *Shape         `cbor:"shape,omitempty"`
	Binding     *BindingRecord `cbor:"binding,omitempty"`
	Children    []Record       `cbor:"children,omitempty"`
}

// Record captures s and its subtree.
func (s *Spec) Record() Record {
	r := Record{
		Kind:        s.Kind,
		Root:        s.root,
		Enabled:     s.Enabled,
		Passthrough: s.Passthrough,
		Name:        s.Name,
		UUID:        s.UUID,
		Default:     ToTRS(s.DefaultMatrix, s.RotateOrder.Or(XYZ)),
		RotateOrder: s.RotateOrder,
		Side:        s.Side,
		Type:        s.Type,
		OtherType:   s.OtherType,
		DrawStyle:   s.DrawStyle,
	}
	if s.Matrix != nil {
		trs := ToTRS(*s.Matrix, s.RotateOrder.Or(XYZ))
		r.Matrix = &trs
	}
	if s.Shape != nil {
		shape := *s.Shape
		r.Shape = &shape
	}
	if b := s.binding; b != nil && (b.HasDriver() || b.Type != BindNone) {
		r.Binding = &BindingRecord{
			DriverName:      b.DriverName,
			DriverNamespace: b.DriverNamespace,
			Type:            b.Type,
			MaintainOffset:  b.MaintainOffset,
			SkipTranslate:   b.SkipTranslate,
			SkipRotate:      b.SkipRotate,
			SkipScale:       b.SkipScale,
		}
	}
	for _, c := range s.children {
		r.Children = append(r.Children, c.Record())
	}
	return r
}

// FromRecord rebuilds a spec tree.
func FromRecord(r Record) (*Spec, error) {
	if r.Kind != KindJoint && r.Kind != KindPivot {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrShape, int(r.Kind))
	}
	s := New(r.Kind)
	s.root = r.Root
	s.Enabled = r.Enabled
	s.Passthrough = r.Passthrough
	s.Name = r.Name
	s.UUID = r.UUID
	s.RotateOrder = r.RotateOrder
	s.DefaultMatrix = r.Default.Matrix()
	if r.Matrix != nil {
		s.SetMatrix(r.Matrix.Matrix())
	}
	s.Side = r.Side
	s.Type = r.Type
	s.OtherType = r.OtherType
	s.DrawStyle = r.DrawStyle
	if r.Shape != nil {
		shape := *r.Shape
		s.Shape = &shape
	}
	if r.Binding != nil {
		if s.binding == nil {
			return nil, fmt.Errorf("%w: binding on %s %q", ErrShape, r.Kind, r.Name)
		}
		s.binding.DriverName = r.Binding.DriverName
		s.binding.DriverNamespace = r.Binding.DriverNamespace
		s.binding.Type = r.Binding.Type
		s.binding.MaintainOffset = r.Binding.MaintainOffset
		s.binding.SkipTranslate = r.Binding.SkipTranslate
		s.binding.SkipRotate = r.Binding.SkipRotate
		s.binding.SkipScale = r.Binding.SkipScale
	}
	for _, cr := range r.Children {
		c, err := FromRecord(cr)
		if err != nil {
			return nil, err
		}
		s.AddChild(c)
	}
	return s, nil
}

// Hash is a BLAKE3 digest of a spec tree's declarative content.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Fingerprint hashes the declarative fields of s and its subtree. Live
// identities and cached transforms are excluded, so a tree reads the
// same before and after it has been built.
func Fingerprint(s *Spec) (Hash, error) {
	r := s.Record()
	stripLive(&r)
	data, err := codec.Marshal(r)
	if err != nil {
		return Hash{}, fmt.Errorf("spec: fingerprint: %w", err)
	}
	return blake3.Sum256(data), nil
}

func stripLive(r *Record) {
	r.UUID = ""
	r.Matrix = nil
	for i := range r.Children {
		stripLive(&r.Children[i])
	}
}
