// Package gauge generates a small printable calibration piece: a plate
// carrying one pin and one matching cavity at the configured alignment
// hole dimensions. Printing the gauge and test-fitting a filament pin
// verifies the printer's tolerances before splitting a large model.
package gauge

import (
	"fmt"

	"github.com/chisel3d/chisel/pkg/holes"
	"github.com/chisel3d/chisel/pkg/kernel"
)

// cylinderSegments matches the facet count used for alignment holes.
const cylinderSegments = 32

// plateMargin is the clearance around the pin and cavity in multiples
// of the hole diameter.
const plateMargin = 2.0

// Build generates the gauge mesh for the given hole diameter and
// per-side depth (both mm, same ranges as the alignment hole spec).
// The returned mesh is ready for STL serialization. Any kernel that
// supports primitives works; mesh import is not needed.
func Build(k kernel.Kernel, diameter, depth float64) (*kernel.Mesh, error) {
	spec := holes.Spec{Enabled: true, Diameter: diameter, Depth: depth, Spacing: holes.SpacingSparse}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	radius := diameter / 2
	cell := plateMargin * diameter
	plateW := 2 * cell // pin half + cavity half
	plateD := cell
	// Thick enough that the cavity doesn't break through.
	plateH := depth + 1

	plate := k.Box(plateW, plateD, plateH)
	defer k.Destroy(plate)

	// Pin standing on the first half of the plate.
	pin := k.Cylinder(depth, radius, cylinderSegments)
	pinUp := k.Translate(pin, cell/2, plateD/2, plateH+depth/2)
	k.Destroy(pin)
	defer k.Destroy(pinUp)

	// Cavity sunk into the second half, open at the top face.
	drill := k.Cylinder(2*depth, radius, cylinderSegments)
	drillDown := k.Translate(drill, cell+cell/2, plateD/2, plateH)
	k.Destroy(drill)
	defer k.Destroy(drillDown)

	hollowed := k.Difference(plate, drillDown)
	defer k.Destroy(hollowed)

	// The kernel interface has no union; emit plate+pin as one mesh by
	// meshing both solids and concatenating.
	plateMesh, err := k.ToMesh(hollowed)
	if err != nil {
		return nil, fmt.Errorf("gauge: mesh plate: %w", err)
	}
	pinMesh, err := k.ToMesh(pinUp)
	if err != nil {
		return nil, fmt.Errorf("gauge: mesh pin: %w", err)
	}

	return concat(plateMesh, pinMesh), nil
}

// concat appends b's triangles to a, offsetting indices.
func concat(a, b *kernel.Mesh) *kernel.Mesh {
	out := &kernel.Mesh{
		Vertices: append(append([]float32(nil), a.Vertices...), b.Vertices...),
	}
	out.Indices = append(out.Indices, a.Indices...)
	offset := uint32(a.VertexCount())
	for _, i := range b.Indices {
		out.Indices = append(out.Indices, i+offset)
	}
	out.RecomputeBounds()
	return out
}
