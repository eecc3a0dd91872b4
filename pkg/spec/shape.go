package spec

import "fmt"

// ShapeKind selects the display geometry drawn for a pivot.
type ShapeKind int

const (
	ShapeNone ShapeKind = iota
	ShapeBox
	ShapeCylinder
	ShapeRing
	ShapeCross
)

var shapeNames = [...]string{"none", "box", "cylinder", "ring", "cross"}

func (k ShapeKind) String() string {
	if k < 0 || int(k) >= len(shapeNames) {
		return fmt.Sprintf("ShapeKind(%d)", int(k))
	}
	return shapeNames[k]
}

// ParseShapeKind is the inverse of ShapeKind.String.
func ParseShapeKind(v string) (ShapeKind, error) {
	for i, n := range shapeNames {
		if n == v {
			return ShapeKind(i), nil
		}
	}
	return ShapeNone, fmt.Errorf("spec: unknown shape %q", v)
}

// Shape is a pivot's custom display payload. Size is interpreted per
// kind: box extents, cylinder height/radius, ring radius/thickness, or
// cross arm length/thickness.
type Shape struct {
	Kind ShapeKind  `cbor:"kind"`
	Size [3]float64 `cbor:"size"`
}
