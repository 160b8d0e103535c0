// Package grid plans the cutting grid: how many sections each axis is
// divided into and how large each piece is.
package grid

import "math"

// Axis holds the plan for one axis.
type Axis struct {
	Sections  int     // number of grid cells, >= 1
	PieceSize float64 // size of each cell in mm
}

// Plan is the full three-axis cutting plan.
type Plan struct {
	X, Y, Z Axis
}

// Axes returns the plan's axes in X, Y, Z order.
func (p Plan) Axes() [3]Axis {
	return [3]Axis{p.X, p.Y, p.Z}
}

// Sections returns the per-axis section counts.
func (p Plan) Sections() [3]int {
	return [3]int{p.X.Sections, p.Y.Sections, p.Z.Sections}
}

// TotalCells returns the number of grid cells.
func (p Plan) TotalCells() int {
	return p.X.Sections * p.Y.Sections * p.Z.Sections
}

// HasCut reports whether any axis has more than one section.
func (p Plan) HasCut() bool {
	return p.X.Sections > 1 || p.Y.Sections > 1 || p.Z.Sections > 1
}

// New computes the cutting plan for a model of the given extent and the
// user's maximum piece dimensions. Each axis is planned independently:
//
//	sections = max(1, ceil(extent / maxDim))
//
// In balanced mode, when dividing leaves a remainder smaller than half
// a piece, the piece size is shrunk so all pieces come out equal
// instead of leaving a sliver in the last row.
func New(extent, maxDim [3]float64, balanced bool) Plan {
	return Plan{
		X: planAxis(extent[0], maxDim[0], balanced),
		Y: planAxis(extent[1], maxDim[1], balanced),
		Z: planAxis(extent[2], maxDim[2], balanced),
	}
}

func planAxis(extent, maxDim float64, balanced bool) Axis {
	sections := int(math.Ceil(extent / maxDim))
	if sections < 1 {
		sections = 1
	}

	pieceSize := maxDim
	if balanced {
		rem := math.Mod(extent, maxDim)
		if rem > 0 && rem < 0.5*maxDim {
			pieceSize = extent / float64(sections)
		}
	}
	return Axis{Sections: sections, PieceSize: pieceSize}
}
