package spec

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// RotateOrder is the order in which Euler rotations are applied. XYZ
// rotates about X first, then Y, then Z. Values match the live scene's
// rotateOrder attribute enum.
type RotateOrder int

const (
	XYZ RotateOrder = iota
	YZX
	ZXY
	XZY
	YXZ
	ZYX
)

// OrderUnset marks a spec that leaves its rotation order to whoever
// materializes it.
const OrderUnset RotateOrder = -1

var rotateOrderNames = [...]string{"xyz", "yzx", "zxy", "xzy", "yxz", "zyx"}

func (o RotateOrder) String() string {
	if o == OrderUnset {
		return "unset"
	}
	if o < 0 || int(o) >= len(rotateOrderNames) {
		return fmt.Sprintf("RotateOrder(%d)", int(o))
	}
	return rotateOrderNames[o]
}

// Valid reports whether o is one of the six orders.
func (o RotateOrder) Valid() bool {
	return o >= 0 && int(o) < len(rotateOrderNames)
}

// Or returns o when it is valid and def otherwise.
func (o RotateOrder) Or(def RotateOrder) RotateOrder {
	if o.Valid() {
		return o
	}
	return def
}

// ParseRotateOrder accepts the lower-case names (xyz, zyx, ...).
func ParseRotateOrder(v string) (RotateOrder, error) {
	for i, n := range rotateOrderNames {
		if n == v {
			return RotateOrder(i), nil
		}
	}
	return XYZ, fmt.Errorf("spec: unknown rotate order %q", v)
}

// axes returns the axis indices in application order and the parity of
// the permutation (+1 even, -1 odd).
func (o RotateOrder) axes() (i, j, k int, parity float64) {
	switch o {
	case YZX:
		return 1, 2, 0, 1
	case ZXY:
		return 2, 0, 1, 1
	case XZY:
		return 0, 2, 1, -1
	case YXZ:
		return 1, 0, 2, -1
	case ZYX:
		return 2, 1, 0, -1
	default:
		return 0, 1, 2, 1
	}
}

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi

	gimbalEpsilon = 1e-9
)

func axisRotation(axis int, rad float64) sdf.M44 {
	switch axis {
	case 0:
		return sdf.RotateX(rad)
	case 1:
		return sdf.RotateY(rad)
	default:
		return sdf.RotateZ(rad)
	}
}

func component(v v3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func setComponent(v *v3.Vec, i int, f float64) {
	switch i {
	case 0:
		v.X = f
	case 1:
		v.Y = f
	default:
		v.Z = f
	}
}

// Rotation builds the rotation for Euler angles in degrees applied in
// order o.
func Rotation(rotate v3.Vec, o RotateOrder) Matrix {
	i, j, k, _ := o.axes()
	ri := axisRotation(i, component(rotate, i)*degToRad)
	rj := axisRotation(j, component(rotate, j)*degToRad)
	rk := axisRotation(k, component(rotate, k)*degToRad)
	return rk.Mul(rj).Mul(ri)
}

// Compose builds translate * rotate.
func Compose(translate, rotate v3.Vec, o RotateOrder) Matrix {
	return sdf.Translate3d(translate).Mul(Rotation(rotate, o))
}

// ComposeTRS builds translate * rotate * scale.
func ComposeTRS(translate, rotate, scale v3.Vec, o RotateOrder) Matrix {
	return Compose(translate, rotate, o).Mul(sdf.Scale3d(scale))
}

// Decompose splits m into a translation, Euler angles in degrees for
// order o, and per-axis scale. Shear is discarded.
func Decompose(m Matrix, o RotateOrder) (translate, rotate, scale v3.Vec) {
	translate = m.MulPosition(v3.Vec{})
	cols := [3]v3.Vec{
		m.MulPosition(v3.Vec{X: 1}).Sub(translate),
		m.MulPosition(v3.Vec{Y: 1}).Sub(translate),
		m.MulPosition(v3.Vec{Z: 1}).Sub(translate),
	}
	for c := range cols {
		l := cols[c].Length()
		setComponent(&scale, c, l)
		if l > 0 {
			cols[c] = cols[c].MulScalar(1 / l)
		}
	}
	// r(row, col) of the pure rotation.
	r := func(row, col int) float64 { return component(cols[col], row) }

	i, j, k, parity := o.axes()
	sj := clamp(-parity*r(k, i), -1, 1)
	aj := math.Asin(sj)
	var ai, ak float64
	if math.Abs(sj) < 1-gimbalEpsilon {
		ai = math.Atan2(parity*r(k, j), r(k, k))
		ak = math.Atan2(parity*r(j, i), r(i, i))
	} else {
		// Gimbal lock: only ai+ak (or ai-ak) is recoverable; put it all
		// on the first axis.
		s := 1.0
		if sj < 0 {
			s = -1
		}
		ai = math.Atan2(s*r(i, j), r(j, j))
		ak = 0
	}
	setComponent(&rotate, i, ai*radToDeg)
	setComponent(&rotate, j, aj*radToDeg)
	setComponent(&rotate, k, ak*radToDeg)
	return translate, rotate, scale
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// TRS is the serializable form of a transform.
type TRS struct {
	Translate [3]float64  `cbor:"t"`
	Rotate    [3]float64  `cbor:"r"`
	Scale     [3]float64  `cbor:"s"`
	Order     RotateOrder `cbor:"o"`
}

// ToTRS decomposes m for storage.
func ToTRS(m Matrix, o RotateOrder) TRS {
	t, r, s := Decompose(m, o)
	return TRS{
		Translate: [3]float64{t.X, t.Y, t.Z},
		Rotate:    [3]float64{r.X, r.Y, r.Z},
		Scale:     [3]float64{s.X, s.Y, s.Z},
		Order:     o,
	}
}

// Matrix rebuilds the transform. A zero scale is read as unit scale.
func (t TRS) Matrix() Matrix {
	s := v3.Vec{X: t.Scale[0], Y: t.Scale[1], Z: t.Scale[2]}
	if s == (v3.Vec{}) {
		s = v3.Vec{X: 1, Y: 1, Z: 1}
	}
	return ComposeTRS(
		v3.Vec{X: t.Translate[0], Y: t.Translate[1], Z: t.Translate[2]},
		v3.Vec{X: t.Rotate[0], Y: t.Rotate[1], Z: t.Rotate[2]},
		s, t.Order)
}
