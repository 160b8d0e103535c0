// Package kernel defines the abstract geometry kernel interface.
// Implementations (sdfx, manifold) provide solid modeling and
// boolean operations behind this interface. The kernel abstraction
// allows swapping backends without changing the rest of the system.
package kernel

import "errors"

// ErrMeshImport is returned by backends that cannot build a solid
// from an arbitrary triangle mesh.
var ErrMeshImport = errors.New("kernel: mesh import not supported by this backend")

// Status reports the health of a solid after construction or a
// boolean operation. Only StatusOK solids may be used downstream.
type Status int

const (
	// StatusOK means the solid is a valid closed 2-manifold volume.
	StatusOK Status = iota
	// StatusNonManifold means the input surface is not watertight.
	StatusNonManifold
	// StatusTooComplex means the kernel ran out of range or memory.
	StatusTooComplex
	// StatusInvalid covers all other kernel-reported failures.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNonManifold:
		return "non-manifold"
	case StatusTooComplex:
		return "too-complex"
	default:
		return "invalid"
	}
}

// Solid is an opaque handle to a geometry kernel solid. Solids may
// reference memory outside the Go heap; every solid must be passed to
// Kernel.Destroy exactly once when its owner is done with it.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
// Implementations (sdfx, manifold) provide solid modeling behind this
// interface. Constructors and transforms are functional: they return
// new solids and never mutate their inputs.
type Kernel interface {
	// Primitives. Box places its minimum corner at the origin;
	// Cylinder runs along the Z axis centered at the origin.
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid

	// Boolean operations.
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms.
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh conversion.
	FromMesh(m *Mesh) (Solid, error)
	ToMesh(s Solid) (*Mesh, error)

	// Introspection.
	Status(s Solid) Status
	Volume(s Solid) float64

	// Destroy releases the solid's backing storage. Safe to call
	// more than once on the same handle; never call methods on a
	// destroyed solid.
	Destroy(s Solid)
}
