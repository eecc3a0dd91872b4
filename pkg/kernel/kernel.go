// Package kernel defines the geometry kernel used to build display
// shapes for pivots. Implementations (sdfx) provide solid modeling
// behind this interface so the shape builder does not depend on a
// particular backend.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel builds solids and tessellates them. Primitives are centered on
// the origin.
type Kernel interface {
	Box(x, y, z float64) Solid
	// Cylinder runs along Z.
	Cylinder(height, radius float64) Solid

	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid

	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	ToMesh(s Solid) (*Mesh, error)
}
