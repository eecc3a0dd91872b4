package sdfx

import (
	"math"
	"testing"
)

func TestBox(t *testing.T) {
	k := New()
	mesh, err := k.ToMesh(k.Box(4, 2, 1))
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() || mesh.TriangleCount() == 0 {
		t.Fatal("mesh is empty")
	}
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Indices) != mesh.TriangleCount()*3 {
		t.Fatalf("indices length %d != triCount*3 %d", len(mesh.Indices), mesh.TriangleCount()*3)
	}
}

func TestBoxIsCentered(t *testing.T) {
	k := New()
	min, max := k.Box(100, 50, 25).BoundingBox()

	const tol = 0.01
	expectMin := [3]float64{-50, -25, -12.5}
	expectMax := [3]float64{50, 25, 12.5}
	for i := range 3 {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected %f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
}

func TestRingHasMoreTrianglesThanDisc(t *testing.T) {
	k := NewWithCells(32)
	disc := k.Cylinder(0.5, 2)
	discMesh, err := k.ToMesh(disc)
	if err != nil {
		t.Fatalf("ToMesh(disc) failed: %v", err)
	}
	ring := k.Difference(disc, k.Cylinder(1, 1.5))
	ringMesh, err := k.ToMesh(ring)
	if err != nil {
		t.Fatalf("ToMesh(ring) failed: %v", err)
	}
	if ringMesh.TriangleCount() <= discMesh.TriangleCount() {
		t.Errorf("ring (%d triangles) should have more triangles than disc (%d)",
			ringMesh.TriangleCount(), discMesh.TriangleCount())
	}
}

func TestUnion(t *testing.T) {
	k := New()
	u := k.Union(k.Box(5, 1, 1), k.Box(1, 5, 1))
	min, max := u.BoundingBox()
	if max[0]-min[0] < 4.9 || max[1]-min[1] < 4.9 {
		t.Errorf("union bounds = %v %v", min, max)
	}
	mesh, err := k.ToMesh(u)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("union mesh is empty")
	}
}

func TestTranslate(t *testing.T) {
	k := New()
	min, max := k.Translate(k.Box(10, 10, 10), 100, 200, 300).BoundingBox()

	const tol = 0.5
	expectMin := [3]float64{95, 195, 295}
	expectMax := [3]float64{105, 205, 305}
	for i := range 3 {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected ~%f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected ~%f", i, max[i], expectMax[i])
		}
	}
}

func TestRotate(t *testing.T) {
	k := New()
	// A long box along X rotated 90 degrees around Z extends along Y.
	min, max := k.Rotate(k.Box(100, 10, 10), 0, 0, 90).BoundingBox()
	const tol = 1.0
	if x := max[0] - min[0]; math.Abs(x-10) > tol {
		t.Errorf("rotated X extent = %f, expected ~10", x)
	}
	if y := max[1] - min[1]; math.Abs(y-100) > tol {
		t.Errorf("rotated Y extent = %f, expected ~100", y)
	}
}

func TestNewWithCellsFallsBack(t *testing.T) {
	if got := NewWithCells(0).Cells(); got != DefaultMeshCells {
		t.Errorf("Cells() = %d, want %d", got, DefaultMeshCells)
	}
	if got := NewWithCells(40).Cells(); got != 40 {
		t.Errorf("Cells() = %d, want 40", got)
	}
}
