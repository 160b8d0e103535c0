package kerneltest

import (
	"math"
	"testing"

	"github.com/chisel3d/chisel/pkg/kernel"
)

func TestBoxVolume(t *testing.T) {
	k := New(0.5)
	box := k.Box(10, 10, 10)
	defer k.Destroy(box)

	if v := k.Volume(box); math.Abs(v-1000) > 1 {
		t.Errorf("box volume = %f, want 1000", v)
	}
}

func TestDifferenceVolume(t *testing.T) {
	k := New(0.5)
	box := k.Box(10, 10, 10)
	half := k.Box(10, 10, 5)
	diff := k.Difference(box, half)
	defer k.Destroy(box)
	defer k.Destroy(half)
	defer k.Destroy(diff)

	if v := k.Volume(diff); math.Abs(v-500) > 5 {
		t.Errorf("difference volume = %f, want 500", v)
	}
}

func TestIntersectionBounds(t *testing.T) {
	k := New(0.5)
	a := k.Box(10, 10, 10)
	b := k.Translate(k.Box(10, 10, 10), 5, 0, 0)
	inter := k.Intersection(a, b)

	min, max := inter.BoundingBox()
	if min != [3]float64{5, 0, 0} || max != [3]float64{10, 10, 10} {
		t.Errorf("intersection bounds = %v %v", min, max)
	}
	if v := k.Volume(inter); math.Abs(v-500) > 5 {
		t.Errorf("intersection volume = %f, want 500", v)
	}
}

func TestCylinderVolume(t *testing.T) {
	k := New(0.25)
	cyl := k.Cylinder(6, 2, 32)
	defer k.Destroy(cyl)

	want := math.Pi * 4 * 6
	if v := k.Volume(cyl); math.Abs(v-want)/want > 0.05 {
		t.Errorf("cylinder volume = %f, want ~%f", v, want)
	}
}

func TestRotateCylinderAlongX(t *testing.T) {
	k := New(0.25)
	cyl := k.Cylinder(6, 2, 32)
	rot := k.Rotate(cyl, 0, 90, 0)
	k.Destroy(cyl)
	defer k.Destroy(rot)

	min, max := rot.BoundingBox()
	if math.Abs((max[0]-min[0])-6) > 0.01 {
		t.Errorf("rotated cylinder X extent = %f, want 6", max[0]-min[0])
	}
	if math.Abs((max[2]-min[2])-4) > 0.01 {
		t.Errorf("rotated cylinder Z extent = %f, want 4", max[2]-min[2])
	}
}

func TestFromMeshCube(t *testing.T) {
	k := New(0.5)
	mesh := BoxMesh([3]float64{0, 0, 0}, [3]float64{10, 10, 10})

	s, err := k.FromMesh(mesh)
	if err != nil {
		t.Fatalf("FromMesh failed: %v", err)
	}
	defer k.Destroy(s)

	if st := k.Status(s); st != kernel.StatusOK {
		t.Fatalf("status = %v", st)
	}
	if v := k.Volume(s); math.Abs(v-1000) > 20 {
		t.Errorf("mesh cube volume = %f, want ~1000", v)
	}
}

func TestFromMeshEmpty(t *testing.T) {
	k := New(0.5)
	if _, err := k.FromMesh(&kernel.Mesh{}); err == nil {
		t.Fatal("expected error for empty mesh")
	}
}

func TestToMeshBounds(t *testing.T) {
	k := New(0.5)
	box := k.Translate(k.Box(4, 6, 8), 1, 2, 3)
	mesh, err := k.ToMesh(box)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.TriangleCount() != 12 {
		t.Errorf("triangle count = %d, want 12", mesh.TriangleCount())
	}
	if math.Abs(mesh.Min[0]-1) > 0.01 || math.Abs(mesh.Max[2]-11) > 0.01 {
		t.Errorf("mesh bounds = %v %v", mesh.Min, mesh.Max)
	}
}

func TestLiveCounting(t *testing.T) {
	k := New(0.5)
	if k.Live() != 0 {
		t.Fatalf("fresh kernel live = %d", k.Live())
	}

	a := k.Box(1, 1, 1)
	b := k.Box(2, 2, 2)
	c := k.Difference(a, b)
	if k.Live() != 3 {
		t.Errorf("live = %d, want 3", k.Live())
	}

	k.Destroy(a)
	k.Destroy(b)
	k.Destroy(c)
	if k.Live() != 0 {
		t.Errorf("live after destroy = %d, want 0", k.Live())
	}

	// Destroy is idempotent.
	k.Destroy(a)
	if k.Live() != 0 {
		t.Errorf("live after double destroy = %d, want 0", k.Live())
	}
}

func TestSabotage(t *testing.T) {
	k := New(0.5)
	box := k.Box(1, 1, 1)
	defer k.Destroy(box)

	Sabotage(box, kernel.StatusNonManifold)
	if st := k.Status(box); st != kernel.StatusNonManifold {
		t.Errorf("status = %v, want non-manifold", st)
	}
}
