// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library. Solids are signed
// distance fields; booleans are distance-field compositions and volume
// is measured by sampling. The backend cannot build a solid from an
// arbitrary triangle mesh, so it serves primitive-only workloads
// (calibration gauges, tests) rather than the full split pipeline.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chisel3d/chisel/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*Kernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// volumeSamples is the per-axis sample count for volume measurement.
const volumeSamples = 64

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// Kernel implements kernel.Kernel using sdfx.
type Kernel struct{}

// New returns a new sdfx-backed kernel.
func New() *Kernel {
	return &Kernel{}
}

// unwrap extracts the underlying sdf.SDF3 from a kernel.Solid.
func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Box creates a box with the given dimensions. The resulting solid has
// its minimum corner at the origin (0,0,0) so that placement
// translations work intuitively. sdf.Box3D centers the box at the
// origin, so we translate by half-dimensions.
func (k *Kernel) Box(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Box3D: %v", err))
	}
	// Shift from center-origin to min-corner-origin.
	m := sdf.Translate3d(v3.Vec{X: x / 2, Y: y / 2, Z: z / 2})
	return wrap(sdf.Transform3D(s, m))
}

// Cylinder creates a Z-axis cylinder centered at the origin.
// The segments parameter is ignored since SDF represents smooth surfaces.
func (k *Kernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	return wrap(s)
}

// Difference returns the difference a - b.
func (k *Kernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (k *Kernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by (x, y, z).
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	xRad := x * math.Pi / 180.0
	yRad := y * math.Pi / 180.0
	zRad := z * math.Pi / 180.0

	m := sdf.RotateZ(zRad).Mul(sdf.RotateY(yRad)).Mul(sdf.RotateX(xRad))
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// FromMesh is unsupported: an SDF cannot be constructed from an
// arbitrary triangle soup without a distance-field rebuild. The
// manifold backend handles mesh import.
func (k *Kernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	return nil, kernel.ErrMeshImport
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	sdf3 := unwrap(s)

	renderer := render.NewMarchingCubesUniform(defaultMeshCells)
	triangles := render.ToTriangles(sdf3, renderer)

	numTri := len(triangles)
	vertices := make([]float32, 0, numTri*9)
	indices := make([]uint32, 0, numTri*3)

	for i, tri := range triangles {
		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			indices = append(indices, uint32(i*3+j))
		}
	}

	mesh := &kernel.Mesh{Vertices: vertices, Indices: indices}
	mesh.RecomputeBounds()
	return mesh, nil
}

// Status reports StatusOK for every non-nil solid (SDF composition
// cannot produce a non-manifold result) and StatusInvalid for nil.
func (k *Kernel) Status(s kernel.Solid) kernel.Status {
	if s == nil {
		return kernel.StatusInvalid
	}
	return kernel.StatusOK
}

// Volume measures the solid by evaluating the distance field on a
// regular grid over its bounding box and summing interior cells.
func (k *Kernel) Volume(s kernel.Solid) float64 {
	sdf3 := unwrap(s)
	bb := sdf3.BoundingBox()
	sx := bb.Max.X - bb.Min.X
	sy := bb.Max.Y - bb.Min.Y
	sz := bb.Max.Z - bb.Min.Z
	if sx <= 0 || sy <= 0 || sz <= 0 {
		return 0
	}

	dx := sx / volumeSamples
	dy := sy / volumeSamples
	dz := sz / volumeSamples
	cellVol := dx * dy * dz

	inside := 0
	for i := 0; i < volumeSamples; i++ {
		x := bb.Min.X + (float64(i)+0.5)*dx
		for j := 0; j < volumeSamples; j++ {
			y := bb.Min.Y + (float64(j)+0.5)*dy
			for l := 0; l < volumeSamples; l++ {
				z := bb.Min.Z + (float64(l)+0.5)*dz
				if sdf3.Evaluate(v3.Vec{X: x, Y: y, Z: z}) <= 0 {
					inside++
				}
			}
		}
	}
	return float64(inside) * cellVol
}

// Destroy is a no-op: SDF solids live on the Go heap.
func (k *Kernel) Destroy(s kernel.Solid) {}
