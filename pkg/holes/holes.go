// Package holes drills cylindrical alignment cavities on the interior
// cut planes of a split plan. Printed pieces are re-assembled with
// short lengths of filament pressed into matching cavities on both
// faces of a cut, so every cavity is centered on the cut plane and
// extends half its depth into each neighboring piece.
//
// Placement is adaptive: the true material footprint at each cut plane
// is probed with thin test boxes, candidate positions are laid out on a
// fixed ladder within that footprint, and each candidate must pass a
// volume gate (the cylinder removes enough material) and, when
// borderline, a depth gate (the removal is a one-wall pocket, not a
// two-wall puncture).
package holes

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chisel3d/chisel/pkg/grid"
	"github.com/chisel3d/chisel/pkg/kernel"
)

// Spacing selects the candidate ladder density.
type Spacing int

const (
	SpacingSparse Spacing = iota
	SpacingNormal
	SpacingDense
)

func (s Spacing) String() string {
	switch s {
	case SpacingSparse:
		return "sparse"
	case SpacingNormal:
		return "normal"
	case SpacingDense:
		return "dense"
	default:
		return fmt.Sprintf("spacing(%d)", int(s))
	}
}

// ParseSpacing converts the wire form ("sparse", "normal", "dense").
func ParseSpacing(s string) (Spacing, error) {
	switch s {
	case "sparse":
		return SpacingSparse, nil
	case "normal":
		return SpacingNormal, nil
	case "dense":
		return SpacingDense, nil
	default:
		return 0, fmt.Errorf("holes: unknown spacing %q", s)
	}
}

// Spec configures alignment-hole carving.
type Spec struct {
	Enabled  bool
	Diameter float64 // mm, hole diameter
	Depth    float64 // mm, depth into each piece (cylinder spans 2x)
	Spacing  Spacing
}

const (
	// MinDiameter and MaxDiameter bound the accepted hole diameter.
	MinDiameter = 1.0
	MaxDiameter = 5.0
	// MinDepth and MaxDepth bound the per-side depth.
	MinDepth = 1.0
	MaxDepth = 10.0
)

// Validate checks the spec's ranges. Disabled specs always validate.
func (s Spec) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Diameter < MinDiameter || s.Diameter > MaxDiameter {
		return fmt.Errorf("holes: diameter %.2f outside [%.0f, %.0f]", s.Diameter, MinDiameter, MaxDiameter)
	}
	if s.Depth < MinDepth || s.Depth > MaxDepth {
		return fmt.Errorf("holes: depth %.2f outside [%.0f, %.0f]", s.Depth, MinDepth, MaxDepth)
	}
	if s.Spacing < SpacingSparse || s.Spacing > SpacingDense {
		return fmt.Errorf("holes: invalid spacing %d", int(s.Spacing))
	}
	return nil
}

const (
	cylinderSegments = 32

	// minVolumeRatio rejects candidates whose cylinder removes less
	// than this fraction of its nominal volume.
	minVolumeRatio = 0.80
	// borderlineRatio triggers the half-depth check.
	borderlineRatio = 0.90
	// minDepthRatio rejects borderline candidates whose removal is
	// spread across both halves of the cylinder (two thin walls
	// punctured instead of one pocket drilled).
	minDepthRatio = 0.60

	// boundaryMargin keeps the hole wall away from the measured
	// footprint boundary.
	boundaryMargin = 0.1

	// Probe boxes: footprint in the cut plane and thickness across it.
	probeFootprint = 0.5
	probeThickness = 0.1
	// probeGrid is the number of probe samples per perpendicular axis
	// within one grid cell.
	probeGrid = 12
)

// Rect is an axis-aligned rectangle in the two perpendicular axes of a
// cut plane.
type Rect struct {
	Min1, Max1 float64
	Min2, Max2 float64
}

func (r Rect) width() float64  { return r.Max1 - r.Min1 }
func (r Rect) height() float64 { return r.Max2 - r.Min2 }

// Contains reports whether the disc of the given radius around
// (p1, p2) lies inside the rectangle.
func (r Rect) Contains(p1, p2, radius float64) bool {
	return p1-radius >= r.Min1 && p1+radius <= r.Max1 &&
		p2-radius >= r.Min2 && p2+radius <= r.Max2
}

// Hole records one accepted cavity.
type Hole struct {
	Axis        int     // 0=X, 1=Y, 2=Z: axis the cut plane is normal to
	Cut         float64 // cut coordinate on that axis
	P1, P2      float64 // position in the two perpendicular axes
	Label       string  // human-readable position for logs
	VolumeRatio float64
	DepthRatio  float64 // 0 when the borderline check did not run
	Footprint   Rect    // measured section rectangle the hole sits in
}

// Carver drills alignment cavities into a working solid.
type Carver struct {
	Kernel kernel.Kernel
	Spec   Spec
	Log    *slog.Logger

	// OnPlane, when set, is called after each cut plane completes.
	OnPlane func(done, total int)
}

// candidate is one ladder position with its label.
type candidate struct {
	p1, p2 float64
	label  string
}

// Carve evaluates every interior cut plane of the plan and drills the
// accepted candidates into the working solid.
//
// Ownership: working and pristine may be the same handle on entry. The
// returned solid replaces working; every intermediate cylinder and
// rejected trial is destroyed before the next candidate, and the
// pristine solid is never destroyed here (the engine needs it for the
// grid intersection phase and releases it in its own cleanup).
func (c *Carver) Carve(working, pristine kernel.Solid, modelMin [3]float64, plan grid.Plan) (kernel.Solid, []Hole, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	axes := plan.Axes()
	totalPlanes := 0
	for _, a := range axes {
		totalPlanes += a.Sections - 1
	}
	if totalPlanes == 0 {
		return working, nil, nil
	}

	radius := c.Spec.Diameter / 2
	totalDepth := 2 * c.Spec.Depth
	expectedVol := math.Pi * radius * radius * totalDepth
	edgeInset := 2.5 * radius

	modelMax := [3]float64{
		modelMin[0] + float64(axes[0].Sections)*axes[0].PieceSize,
		modelMin[1] + float64(axes[1].Sections)*axes[1].PieceSize,
		modelMin[2] + float64(axes[2].Sections)*axes[2].PieceSize,
	}
	_, wmax := working.BoundingBox()
	for ax := 0; ax < 3; ax++ {
		if wmax[ax] < modelMax[ax] {
			modelMax[ax] = wmax[ax]
		}
	}

	var accepted []Hole
	planesDone := 0

	// X cuts first, then Y, then Z.
	for axis := 0; axis < 3; axis++ {
		p1Axis, p2Axis := perpAxes(axis)
		for i := 1; i < axes[axis].Sections; i++ {
			cut := modelMin[axis] + float64(i)*axes[axis].PieceSize

			// Cells of the two perpendicular axes, lexicographic.
			for j := 0; j < axes[p1Axis].Sections; j++ {
				c1lo := modelMin[p1Axis] + float64(j)*axes[p1Axis].PieceSize
				c1hi := math.Min(c1lo+axes[p1Axis].PieceSize, modelMax[p1Axis])
				for l := 0; l < axes[p2Axis].Sections; l++ {
					c2lo := modelMin[p2Axis] + float64(l)*axes[p2Axis].PieceSize
					c2hi := math.Min(c2lo+axes[p2Axis].PieceSize, modelMax[p2Axis])

					rect, found := c.footprint(working, axis, cut, c1lo, c1hi, c2lo, c2hi)
					if !found {
						continue
					}
					if rect.width() < 2*edgeInset || rect.height() < 2*edgeInset {
						continue
					}

					for _, cand := range ladder(rect, edgeInset, c.Spec.Spacing) {
						if !rect.Contains(cand.p1, cand.p2, radius+boundaryMargin) {
							continue
						}

						next, hole, err := c.evaluate(working, axis, cut, cand, radius, totalDepth, expectedVol)
						if err != nil {
							return working, accepted, err
						}
						if next == nil {
							continue
						}
						// Accepted: swap the working solid. The original
						// pristine solid is retained for the intersection
						// phase; everything else is released.
						if working != pristine {
							c.Kernel.Destroy(working)
						}
						working = next
						hole.Footprint = rect
						accepted = append(accepted, *hole)
						log.Debug("alignment hole accepted",
							"axis", axisName(axis), "cut", cut,
							"at", hole.Label,
							"volumeRatio", hole.VolumeRatio,
							"depthRatio", hole.DepthRatio)
					}
				}
			}

			planesDone++
			if c.OnPlane != nil {
				c.OnPlane(planesDone, totalPlanes)
			}
		}
	}

	log.Info("alignment hole carving done", "accepted", len(accepted), "planes", totalPlanes)
	return working, accepted, nil
}

// evaluate runs the quality gate for one candidate. It returns the new
// working solid on acceptance, nil on rejection. A kernel resource
// exhaustion aborts the whole carve.
func (c *Carver) evaluate(working kernel.Solid, axis int, cut float64, cand candidate, radius, totalDepth, expectedVol float64) (kernel.Solid, *Hole, error) {
	k := c.Kernel

	cyl := c.placedCylinder(axis, cut, cand.p1, cand.p2, totalDepth, radius)
	vBefore := k.Volume(working)

	trial := k.Difference(working, cyl)
	if st := k.Status(trial); st != kernel.StatusOK {
		k.Destroy(trial)
		k.Destroy(cyl)
		if st == kernel.StatusTooComplex {
			return nil, nil, fmt.Errorf("holes: kernel resource exhaustion at %s: %s", cand.label, st)
		}
		return nil, nil, nil
	}

	removed := vBefore - k.Volume(trial)
	ratio := removed / expectedVol
	if ratio < minVolumeRatio {
		k.Destroy(trial)
		k.Destroy(cyl)
		return nil, nil, nil
	}

	depthRatio := 0.0
	if ratio < borderlineRatio {
		halfCyl := c.placedCylinder(axis, cut, cand.p1, cand.p2, totalDepth/2, radius)
		trialHalf := k.Difference(working, halfCyl)
		removedHalf := vBefore - k.Volume(trialHalf)
		k.Destroy(trialHalf)
		k.Destroy(halfCyl)

		depthRatio = removedHalf / removed
		if depthRatio < minDepthRatio {
			k.Destroy(trial)
			k.Destroy(cyl)
			return nil, nil, nil
		}
	}

	k.Destroy(cyl)
	return trial, &Hole{
		Axis:        axis,
		Cut:         cut,
		P1:          cand.p1,
		P2:          cand.p2,
		Label:       cand.label,
		VolumeRatio: ratio,
		DepthRatio:  depthRatio,
	}, nil
}

// placedCylinder builds a cylinder of the given length centered on the
// cut plane at (p1, p2), oriented along the cut axis. Intermediate
// solids from the transform chain are destroyed.
func (c *Carver) placedCylinder(axis int, cut, p1, p2, length, radius float64) kernel.Solid {
	k := c.Kernel
	s := k.Cylinder(length, radius, cylinderSegments)

	// The kernel cylinder runs along Z; reorient for X and Y cuts.
	switch axis {
	case 0:
		r := k.Rotate(s, 0, 90, 0)
		k.Destroy(s)
		s = r
	case 1:
		r := k.Rotate(s, 90, 0, 0)
		k.Destroy(s)
		s = r
	}

	var pos [3]float64
	pos[axis] = cut
	a1, a2 := perpAxes(axis)
	pos[a1] = p1
	pos[a2] = p2

	t := k.Translate(s, pos[0], pos[1], pos[2])
	k.Destroy(s)
	return t
}

// footprint probes the material present at the cut plane within one
// perpendicular cell. Thin test boxes are laid out on a regular grid;
// a box is occupied when its intersection with the working solid has
// positive volume. The returned rectangle hulls the occupied box
// centers, expanded by half a probe step and clamped to the cell.
func (c *Carver) footprint(working kernel.Solid, axis int, cut, c1lo, c1hi, c2lo, c2hi float64) (Rect, bool) {
	step1 := (c1hi - c1lo) / probeGrid
	step2 := (c2hi - c2lo) / probeGrid
	if step1 <= 0 || step2 <= 0 {
		return Rect{}, false
	}

	var rect Rect
	found := false
	for i := 0; i < probeGrid; i++ {
		s1 := c1lo + (float64(i)+0.5)*step1
		for j := 0; j < probeGrid; j++ {
			s2 := c2lo + (float64(j)+0.5)*step2

			if !c.probeOccupied(working, axis, cut, s1, s2) {
				continue
			}
			if !found {
				rect = Rect{Min1: s1, Max1: s1, Min2: s2, Max2: s2}
				found = true
				continue
			}
			rect.Min1 = math.Min(rect.Min1, s1)
			rect.Max1 = math.Max(rect.Max1, s1)
			rect.Min2 = math.Min(rect.Min2, s2)
			rect.Max2 = math.Max(rect.Max2, s2)
		}
	}
	if !found {
		return Rect{}, false
	}

	rect.Min1 = math.Max(rect.Min1-step1/2, c1lo)
	rect.Max1 = math.Min(rect.Max1+step1/2, c1hi)
	rect.Min2 = math.Max(rect.Min2-step2/2, c2lo)
	rect.Max2 = math.Min(rect.Max2+step2/2, c2hi)
	return rect, true
}

// probeOccupied intersects one thin test box with the working solid.
func (c *Carver) probeOccupied(working kernel.Solid, axis int, cut, s1, s2 float64) bool {
	k := c.Kernel

	var dims, pos [3]float64
	a1, a2 := perpAxes(axis)
	dims[axis] = probeThickness
	dims[a1] = probeFootprint
	dims[a2] = probeFootprint
	pos[axis] = cut - probeThickness/2
	pos[a1] = s1 - probeFootprint/2
	pos[a2] = s2 - probeFootprint/2

	box := k.Box(dims[0], dims[1], dims[2])
	placed := k.Translate(box, pos[0], pos[1], pos[2])
	k.Destroy(box)

	probe := k.Intersection(working, placed)
	occupied := k.Status(probe) == kernel.StatusOK && k.Volume(probe) > 0
	k.Destroy(probe)
	k.Destroy(placed)
	return occupied
}

// ladder enumerates candidate positions for a section rectangle, in
// the fixed evaluation order. The caller has already checked the
// 2x-inset minimum size.
func ladder(rect Rect, inset float64, spacing Spacing) []candidate {
	w, h := rect.width(), rect.height()
	cx := rect.Min1 + w/2
	cy := rect.Min2 + h/2

	cands := []candidate{
		{rect.Min1 + inset, rect.Min2 + inset, "corner-min-min"},
		{rect.Min1 + inset, rect.Max2 - inset, "corner-min-max"},
		{rect.Max1 - inset, rect.Min2 + inset, "corner-max-min"},
		{rect.Max1 - inset, rect.Max2 - inset, "corner-max-max"},
		{cx, cy, "center"},
	}
	if spacing == SpacingSparse {
		return cands
	}

	// Edge midpoints and third points need room for the wider layout.
	if w < 4*inset || h < 4*inset {
		return cands
	}
	cands = append(cands,
		candidate{cx, rect.Min2 + inset, "edge-mid-min"},
		candidate{cx, rect.Max2 - inset, "edge-mid-max"},
		candidate{rect.Min1 + inset, cy, "edge-min-mid"},
		candidate{rect.Max1 - inset, cy, "edge-max-mid"},
	)
	if spacing == SpacingNormal {
		return cands
	}

	cands = append(cands,
		candidate{rect.Min1 + w/3, rect.Min2 + h/3, "third-low-low"},
		candidate{rect.Min1 + 2*w/3, rect.Min2 + 2*h/3, "third-high-high"},
		candidate{rect.Min1 + w/3, rect.Min2 + 2*h/3, "third-low-high"},
		candidate{rect.Min1 + 2*w/3, rect.Min2 + h/3, "third-high-low"},
	)
	return cands
}

// perpAxes returns the two axes perpendicular to the given one, in
// ascending order.
func perpAxes(axis int) (int, int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

func axisName(axis int) string {
	return [...]string{"x", "y", "z"}[axis]
}
