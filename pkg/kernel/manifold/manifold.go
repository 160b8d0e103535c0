//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold
// provides guaranteed-manifold mesh boolean operations, exact volume
// measurement, and status reporting — everything the split pipeline
// needs, including building a solid from an input triangle mesh.
//
// This package requires the Manifold C library (manifoldc) to be
// installed. Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/chisel3d/chisel/pkg/kernel"
)

// Compile-time interface checks.
var _ kernel.Kernel = (*Kernel)(nil)
var _ kernel.Solid = (*manifoldSolid)(nil)

// manifoldSolid wraps a C ManifoldManifold pointer and implements
// kernel.Solid. The mutex guards the release path: Destroy may race
// with the finalizer backstop.
type manifoldSolid struct {
	mu  sync.Mutex
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// release frees the C-side manifold. Idempotent.
func (s *manifoldSolid) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptr != nil {
		C.manifold_delete_manifold(s.ptr)
		s.ptr = nil
	}
}

// newSolid wraps a C ManifoldManifold pointer. A finalizer is kept as
// a backstop for handles orphaned by a force-failed job; the normal
// path is an explicit Kernel.Destroy.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *manifoldSolid) { s.release() })
	return s
}

// Kernel implements kernel.Kernel using the Manifold C library.
type Kernel struct{}

// New creates a new manifold-backed kernel.
func New() (kernel.Kernel, error) {
	return &Kernel{}, nil
}

// Box creates an axis-aligned box with its minimum corner at the origin.
func (k *Kernel) Box(x, y, z float64) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cube(alloc,
		C.double(x), C.double(y), C.double(z),
		C.int(0), // center=false: min corner at origin
	)
	return newSolid(ptr)
}

// Cylinder creates a cylinder along the Z axis with the given height,
// radius, and number of circular segments. The cylinder is centered
// at the origin.
func (k *Kernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius), // radius_low
		C.double(radius), // radius_high (same = not tapered)
		C.int(segments),
		C.int(1), // center=true
	)
	return newSolid(ptr)
}

// Difference returns the boolean difference (a minus b).
func (k *Kernel) Difference(a, b kernel.Solid) kernel.Solid {
	sa := a.(*manifoldSolid)
	sb := b.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_difference(alloc, sa.ptr, sb.ptr)
	return newSolid(ptr)
}

// Intersection returns the boolean intersection of two solids.
func (k *Kernel) Intersection(a, b kernel.Solid) kernel.Solid {
	sa := a.(*manifoldSolid)
	sb := b.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_intersection(alloc, sa.ptr, sb.ptr)
	return newSolid(ptr)
}

// Translate moves the solid by (x, y, z).
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := s.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_translate(alloc, ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// Rotate rotates the solid by Euler angles (in degrees) around the X,
// Y, Z axes.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := s.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_rotate(alloc, ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// FromMesh builds a solid from an indexed triangle mesh. The mesh must
// describe a closed, watertight surface; check Status on the returned
// solid before using it.
func (k *Kernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	if m.IsEmpty() {
		return nil, fmt.Errorf("manifold: empty mesh")
	}

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_meshgl(meshAlloc,
		(*C.float)(unsafe.Pointer(&m.Vertices[0])),
		C.size_t(m.VertexCount()),
		C.size_t(3), // properties per vertex: position only
		(*C.uint32_t)(unsafe.Pointer(&m.Indices[0])),
		C.size_t(m.TriangleCount()),
	)
	defer C.manifold_delete_meshgl(meshGL)

	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_of_meshgl(alloc, meshGL)
	return newSolid(ptr), nil
}

// ToMesh extracts a triangle mesh from the solid using Manifold's
// MeshGL format.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ms := s.(*manifoldSolid)

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))

	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{}, nil
	}

	// MeshGL stores vertex properties in a flat float array with
	// numProp properties per vertex; the first 3 are always position.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	vertices := make([]float32, numVert*3)
	for i := 0; i < numVert; i++ {
		base := i * numProp
		vertices[i*3+0] = propData[base+0]
		vertices[i*3+1] = propData[base+1]
		vertices[i*3+2] = propData[base+2]
	}

	mesh := &kernel.Mesh{Vertices: vertices, Indices: indices}
	mesh.RecomputeBounds()
	return mesh, nil
}

// Status maps Manifold's error enum onto kernel.Status.
func (k *Kernel) Status(s kernel.Solid) kernel.Status {
	ms, ok := s.(*manifoldSolid)
	if !ok || ms.ptr == nil {
		return kernel.StatusInvalid
	}
	switch C.manifold_status(ms.ptr) {
	case C.MANIFOLD_NO_ERROR:
		return kernel.StatusOK
	case C.MANIFOLD_NOT_MANIFOLD:
		return kernel.StatusNonManifold
	case C.MANIFOLD_VERTEX_INDEX_OUT_OF_BOUNDS:
		return kernel.StatusTooComplex
	default:
		return kernel.StatusInvalid
	}
}

// Volume returns the enclosed volume of the solid.
func (k *Kernel) Volume(s kernel.Solid) float64 {
	ms := s.(*manifoldSolid)
	props := C.manifold_get_properties(ms.ptr)
	return float64(props.volume)
}

// Destroy releases the C-side solid. Idempotent; the finalizer remains
// registered but becomes a no-op once the pointer is cleared.
func (k *Kernel) Destroy(s kernel.Solid) {
	if ms, ok := s.(*manifoldSolid); ok {
		ms.release()
	}
}
