// Package splitter decomposes an STL model into a grid of printable
// parts. The pipeline: decode the STL, build a watertight solid in the
// geometry kernel, plan the cutting grid, optionally drill alignment
// cavities on the interior cut planes, intersect the solid with each
// grid cell, and serialize every non-empty part back to binary STL.
package splitter

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chisel3d/chisel/pkg/grid"
	"github.com/chisel3d/chisel/pkg/holes"
	"github.com/chisel3d/chisel/pkg/kernel"
	"github.com/chisel3d/chisel/pkg/stl"
)

// minPartVolume is the threshold below which a cell's intersection is
// treated as empty (floating point dust from grazing cuts).
const minPartVolume = 1e-3

// Progress milestones emitted by the engine. The surrounding runtime
// owns everything past PercentPartsDone (uploads, archive, finalize).
const (
	percentGridStart = 30
	percentGridSpan  = 40
	// PercentPartsDone is emitted when every cell has been processed.
	PercentPartsDone = 75
)

// Options configures one split run.
type Options struct {
	// MaxDim is the maximum piece size per axis in mm.
	MaxDim [3]float64
	// Balanced equalizes piece sizes when a remainder row would be a
	// sliver (see grid.New).
	Balanced bool
	// SmartBoundaries is accepted for API compatibility and currently
	// has no effect on cutting.
	SmartBoundaries bool
	// Holes configures alignment cavities.
	Holes holes.Spec
}

// Validate checks the options.
func (o Options) Validate() error {
	for i, d := range o.MaxDim {
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("splitter: dimension %c must be positive", "xyz"[i])
		}
	}
	return o.Holes.Validate()
}

// Part is one emitted piece of the model.
type Part struct {
	// Name is "part_{x}_{y}_{z}.stl" with 1-based cell indices.
	Name string
	// Section is the part's 1-based cell index per axis.
	Section [3]int
	// Data is the serialized binary STL.
	Data []byte
	// Min and Max are the part's exact bounds from its vertices.
	Min, Max [3]float64
}

// Result is the outcome of a successful split.
type Result struct {
	Parts              []Part
	TotalParts         int
	Sections           [3]int
	OriginalDimensions [3]float64
	Holes              []holes.Hole
}

// Progress receives (percent, message) milestones. Implementations
// must be cheap; the engine calls it inline.
type Progress func(percent int, message string)

// Engine runs split jobs against a geometry kernel. An engine must not
// be shared across concurrently running jobs: kernel objects are owned
// by a single job at a time.
type Engine struct {
	Kernel kernel.Kernel
	Log    *slog.Logger
}

// NewEngine returns an engine on the given kernel.
func NewEngine(k kernel.Kernel, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Kernel: k, Log: log}
}

// Split decodes stlData and cuts it into parts per opts. The progress
// callback may be nil.
func (e *Engine) Split(stlData []byte, opts Options, progress Progress) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	k := e.Kernel

	mesh, err := stl.DecodeBytes(stlData)
	if err != nil {
		return nil, err
	}
	e.Log.Info("model decoded",
		"triangles", mesh.TriangleCount(),
		"vertices", mesh.VertexCount(),
		"extent", mesh.Extent())

	pristine, err := k.FromMesh(mesh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonManifold, err)
	}
	if st := k.Status(pristine); st != kernel.StatusOK {
		k.Destroy(pristine)
		if st == kernel.StatusTooComplex {
			return nil, ErrTooComplex
		}
		return nil, ErrNonManifold
	}

	// The working solid starts as the pristine input and evolves as
	// cavities are accepted; both are released on every exit path.
	working := pristine
	defer func() {
		if working != pristine {
			k.Destroy(working)
		}
		k.Destroy(pristine)
	}()

	extent := mesh.Extent()
	plan := grid.New(extent, opts.MaxDim, opts.Balanced)
	e.Log.Info("grid planned",
		"sections", plan.Sections(),
		"pieces", [3]float64{plan.X.PieceSize, plan.Y.PieceSize, plan.Z.PieceSize})

	var drilled []holes.Hole
	carveHoles := opts.Holes.Enabled && plan.HasCut()
	if carveHoles {
		progress(percentGridStart, "Drilling alignment holes")
		carver := &holes.Carver{
			Kernel: k,
			Spec:   opts.Holes,
			Log:    e.Log,
			OnPlane: func(done, total int) {
				pct := percentGridStart + percentGridSpan*done/total
				if pct > percentGridStart+percentGridSpan {
					pct = percentGridStart + percentGridSpan
				}
				progress(pct, fmt.Sprintf("Drilling alignment holes (%d/%d planes)", done, total))
			},
		}
		working, drilled, err = carver.Carve(working, pristine, mesh.Min, plan)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTooComplex, err)
		}
	}

	parts, err := e.cutParts(working, mesh.Min, plan, carveHoles, progress)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, ErrEmptyResult
	}
	progress(PercentPartsDone, "Cutting complete")

	return &Result{
		Parts:              parts,
		TotalParts:         len(parts),
		Sections:           plan.Sections(),
		OriginalDimensions: extent,
		Holes:              drilled,
	}, nil
}

// cutParts intersects the working solid with every grid cell in
// lexicographic (x, y, z) order and serializes the non-empty pieces.
func (e *Engine) cutParts(working kernel.Solid, modelMin [3]float64, plan grid.Plan, holesCarved bool, progress Progress) ([]Part, error) {
	k := e.Kernel
	axes := plan.Axes()
	total := plan.TotalCells()

	var parts []Part
	cell := 0
	for x := 0; x < axes[0].Sections; x++ {
		for y := 0; y < axes[1].Sections; y++ {
			for z := 0; z < axes[2].Sections; z++ {
				cell++
				idx := [3]int{x, y, z}

				cube := k.Box(axes[0].PieceSize, axes[1].PieceSize, axes[2].PieceSize)
				placed := k.Translate(cube,
					modelMin[0]+float64(x)*axes[0].PieceSize,
					modelMin[1]+float64(y)*axes[1].PieceSize,
					modelMin[2]+float64(z)*axes[2].PieceSize)
				k.Destroy(cube)

				part := k.Intersection(working, placed)
				st := k.Status(part)
				if st == kernel.StatusTooComplex {
					k.Destroy(part)
					k.Destroy(placed)
					return nil, ErrTooComplex
				}
				if st == kernel.StatusOK && k.Volume(part) > minPartVolume {
					p, err := e.emitPart(part, idx)
					if err != nil {
						k.Destroy(part)
						k.Destroy(placed)
						return nil, err
					}
					parts = append(parts, *p)
				}
				k.Destroy(part)
				k.Destroy(placed)

				// Hole carving owns [30, 70]; without it the cell loop
				// reports across the same range.
				if !holesCarved {
					progress(percentGridStart+percentGridSpan*cell/total,
						fmt.Sprintf("Cutting part %d/%d", cell, total))
				}
			}
		}
	}
	return parts, nil
}

// emitPart exports the cell's solid, recomputes exact bounds from its
// vertices, and serializes it.
func (e *Engine) emitPart(part kernel.Solid, idx [3]int) (*Part, error) {
	mesh, err := e.Kernel.ToMesh(part)
	if err != nil {
		return nil, fmt.Errorf("%w: export: %v", ErrTooComplex, err)
	}
	if mesh.IsEmpty() {
		return nil, fmt.Errorf("%w: empty export", ErrTooComplex)
	}
	mesh.RecomputeBounds()

	data, err := stl.EncodeBytes(mesh)
	if err != nil {
		return nil, err
	}

	section := [3]int{idx[0] + 1, idx[1] + 1, idx[2] + 1}
	return &Part{
		Name:    PartName(section),
		Section: section,
		Data:    data,
		Min:     mesh.Min,
		Max:     mesh.Max,
	}, nil
}

// PartName returns the canonical file name for a 1-based cell index.
func PartName(section [3]int) string {
	return fmt.Sprintf("part_%d_%d_%d.stl", section[0], section[1], section[2])
}
