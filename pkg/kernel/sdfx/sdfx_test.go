package sdfx

import (
	"errors"
	"math"
	"testing"

	"github.com/chisel3d/chisel/pkg/kernel"
)

func TestBox(t *testing.T) {
	k := New()
	box := k.Box(100, 50, 25)

	min, max := box.BoundingBox()
	if min != [3]float64{0, 0, 0} {
		t.Errorf("box min = %v, want origin", min)
	}
	if max != [3]float64{100, 50, 25} {
		t.Errorf("box max = %v", max)
	}

	mesh, err := k.ToMesh(box)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if len(mesh.Indices) != mesh.TriangleCount()*3 {
		t.Fatalf("indices length %d != triCount*3 %d", len(mesh.Indices), mesh.TriangleCount()*3)
	}
}

func TestBoxVolume(t *testing.T) {
	k := New()
	box := k.Box(10, 10, 10)
	v := k.Volume(box)
	if math.Abs(v-1000)/1000 > 0.05 {
		t.Errorf("box volume = %f, want ~1000", v)
	}
}

func TestCylinder(t *testing.T) {
	k := New()
	cyl := k.Cylinder(50, 10, 32)
	mesh, err := k.ToMesh(cyl)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	t.Logf("cylinder triangle count: %d", mesh.TriangleCount())
}

func TestDifference(t *testing.T) {
	k := New()

	box := k.Box(20, 20, 20)
	hole := k.Translate(k.Cylinder(40, 4, 32), 10, 10, 10)
	diff := k.Difference(box, hole)

	vBox := k.Volume(box)
	vDiff := k.Volume(diff)
	if vDiff >= vBox {
		t.Errorf("difference volume %f not smaller than box %f", vDiff, vBox)
	}
	removed := vBox - vDiff
	want := math.Pi * 16 * 20 // cylinder clipped to the box
	if math.Abs(removed-want)/want > 0.15 {
		t.Errorf("removed volume = %f, want ~%f", removed, want)
	}
}

func TestIntersection(t *testing.T) {
	k := New()
	a := k.Box(10, 10, 10)
	b := k.Translate(k.Box(10, 10, 10), 5, 0, 0)
	inter := k.Intersection(a, b)

	v := k.Volume(inter)
	if math.Abs(v-500)/500 > 0.1 {
		t.Errorf("intersection volume = %f, want ~500", v)
	}
}

func TestRotate(t *testing.T) {
	k := New()
	cyl := k.Cylinder(6, 2, 32)
	rot := k.Rotate(cyl, 0, 90, 0)

	min, max := rot.BoundingBox()
	if (max[0]-min[0])+0.5 < 6 {
		t.Errorf("rotated cylinder X extent = %f, want ~6", max[0]-min[0])
	}
}

func TestFromMeshUnsupported(t *testing.T) {
	k := New()
	_, err := k.FromMesh(&kernel.Mesh{Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 0, 0}})
	if !errors.Is(err, kernel.ErrMeshImport) {
		t.Fatalf("err = %v, want ErrMeshImport", err)
	}
}

func TestStatus(t *testing.T) {
	k := New()
	box := k.Box(1, 1, 1)
	if st := k.Status(box); st != kernel.StatusOK {
		t.Errorf("status = %v, want ok", st)
	}
	if st := k.Status(nil); st != kernel.StatusInvalid {
		t.Errorf("nil status = %v, want invalid", st)
	}
}
