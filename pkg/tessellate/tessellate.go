// Package tessellate turns pivot display shapes into triangle meshes
// using a geometry kernel. One mesh is produced per pivot that carries a
// shape, placed at the pivot's effective transform.
package tessellate

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/armature/pkg/kernel"
	"github.com/chazu/armature/pkg/spec"
)

// Solid builds the solid for sh centered on the origin. Zero sizes fall
// back to unit dimensions.
func Solid(k kernel.Kernel, sh spec.Shape) (kernel.Solid, error) {
	size := sh.Size
	or := func(v, def float64) float64 {
		if v <= 0 {
			return def
		}
		return v
	}

	switch sh.Kind {
	case spec.ShapeBox:
		return k.Box(or(size[0], 1), or(size[1], 1), or(size[2], 1)), nil

	case spec.ShapeCylinder:
		// Kernel cylinders run along Z; bones run along Y.
		c := k.Cylinder(or(size[0], 1), or(size[1], 0.25))
		return k.Rotate(c, 90, 0, 0), nil

	case spec.ShapeRing:
		radius, thickness := or(size[0], 1), or(size[1], 0.1)
		if thickness >= radius {
			return nil, fmt.Errorf("tessellate: ring thickness %g must be below radius %g", thickness, radius)
		}
		outer := k.Cylinder(thickness, radius)
		inner := k.Cylinder(thickness*2, radius-thickness)
		return k.Rotate(k.Difference(outer, inner), 90, 0, 0), nil

	case spec.ShapeCross:
		arm, thickness := or(size[0], 1), or(size[1], 0.1)
		s := k.Union(k.Box(arm, thickness, thickness), k.Box(thickness, arm, thickness))
		return k.Union(s, k.Box(thickness, thickness, arm)), nil

	case spec.ShapeNone:
		return nil, nil
	}
	return nil, fmt.Errorf("tessellate: unsupported shape %s", sh.Kind)
}

// Pivot meshes s's display shape at its effective transform. It returns
// nil without error when s carries no shape.
func Pivot(k kernel.Kernel, s *spec.Spec) (*kernel.Mesh, error) {
	if s.Shape == nil || s.Shape.Kind == spec.ShapeNone {
		return nil, nil
	}
	solid, err := Solid(k, *s.Shape)
	if err != nil {
		return nil, fmt.Errorf("tessellate: pivot %q: %w", s.Name, err)
	}
	mesh, err := k.ToMesh(solid)
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed for pivot %q: %w", s.Name, err)
	}
	place(mesh, s.EffectiveMatrix())
	mesh.Name = s.Name
	return mesh, nil
}

// Pivots meshes every enabled pivot under specs that carries a shape, in
// pre-order. The tessellator never mutates the specs.
func Pivots(k kernel.Kernel, specs []*spec.Spec) ([]*kernel.Mesh, error) {
	var meshes []*kernel.Mesh
	for s := range spec.Flatten(specs, spec.Filter{}) {
		if s.Kind != spec.KindPivot {
			continue
		}
		mesh, err := Pivot(k, s)
		if err != nil {
			return nil, err
		}
		if mesh != nil {
			meshes = append(meshes, mesh)
		}
	}
	return meshes, nil
}

// place transforms vertices by m and re-orients normals by its linear
// part.
func place(mesh *kernel.Mesh, m spec.Matrix) {
	if m.Equals(spec.Identity(), 0) {
		return
	}
	origin := m.MulPosition(v3.Vec{})
	for i := 0; i+2 < len(mesh.Vertices); i += 3 {
		p := m.MulPosition(v3.Vec{
			X: float64(mesh.Vertices[i]),
			Y: float64(mesh.Vertices[i+1]),
			Z: float64(mesh.Vertices[i+2]),
		})
		mesh.Vertices[i], mesh.Vertices[i+1], mesh.Vertices[i+2] = float32(p.X), float32(p.Y), float32(p.Z)
	}
	for i := 0; i+2 < len(mesh.Normals); i += 3 {
		n := m.MulPosition(v3.Vec{
			X: float64(mesh.Normals[i]),
			Y: float64(mesh.Normals[i+1]),
			Z: float64(mesh.Normals[i+2]),
		}).Sub(origin)
		if l := n.Length(); l > 0 {
			n = n.MulScalar(1 / l)
		}
		mesh.Normals[i], mesh.Normals[i+1], mesh.Normals[i+2] = float32(n.X), float32(n.Y), float32(n.Z)
	}
}

// Attribute packs mesh into the value stored in a live object's display
// mesh attribute.
func Attribute(mesh *kernel.Mesh) map[string]any {
	return map[string]any{
		"vertices": mesh.Vertices,
		"normals":  mesh.Normals,
		"indices":  mesh.Indices,
	}
}
