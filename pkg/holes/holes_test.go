package holes

import (
	"testing"

	"github.com/chisel3d/chisel/pkg/grid"
	"github.com/chisel3d/chisel/pkg/kernel/kerneltest"
)

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"disabled ignores ranges", Spec{Enabled: false, Diameter: 99}, false},
		{"valid", Spec{Enabled: true, Diameter: 1.8, Depth: 3, Spacing: SpacingNormal}, false},
		{"diameter too small", Spec{Enabled: true, Diameter: 0.5, Depth: 3}, true},
		{"diameter too large", Spec{Enabled: true, Diameter: 6, Depth: 3}, true},
		{"depth too small", Spec{Enabled: true, Diameter: 2, Depth: 0.5}, true},
		{"depth too large", Spec{Enabled: true, Diameter: 2, Depth: 11}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSpacing(t *testing.T) {
	for _, s := range []string{"sparse", "normal", "dense"} {
		sp, err := ParseSpacing(s)
		if err != nil {
			t.Fatalf("ParseSpacing(%q) failed: %v", s, err)
		}
		if sp.String() != s {
			t.Errorf("round trip %q -> %q", s, sp.String())
		}
	}
	if _, err := ParseSpacing("extreme"); err == nil {
		t.Error("expected error for unknown spacing")
	}
}

func TestLadderSizes(t *testing.T) {
	rect := Rect{Min1: 0, Max1: 40, Min2: 0, Max2: 40}
	inset := 5.0

	tests := []struct {
		spacing Spacing
		want    int
	}{
		{SpacingSparse, 5},
		{SpacingNormal, 9},
		{SpacingDense, 13},
	}
	for _, tt := range tests {
		if got := len(ladder(rect, inset, tt.spacing)); got != tt.want {
			t.Errorf("%v candidates = %d, want %d", tt.spacing, got, tt.want)
		}
	}

	// Too narrow for the wider layouts: normal and dense fall back to
	// the sparse set.
	narrow := Rect{Min1: 0, Max1: 15, Min2: 0, Max2: 15}
	if got := len(ladder(narrow, inset, SpacingDense)); got != 5 {
		t.Errorf("narrow dense candidates = %d, want 5", got)
	}
}

func TestRectContains(t *testing.T) {
	rect := Rect{Min1: 0, Max1: 20, Min2: 0, Max2: 20}
	if !rect.Contains(10, 10, 2.1) {
		t.Error("center disc should fit")
	}
	if rect.Contains(1, 10, 2.1) {
		t.Error("disc overhanging the edge should not fit")
	}
}

// carveBlock drills a solid 60x20x20 block cut once across X.
func carveBlock(t *testing.T, spacing Spacing) (*kerneltest.Kernel, []Hole) {
	t.Helper()
	k := kerneltest.New(0.25)

	mesh := kerneltest.BoxMesh([3]float64{0, 0, 0}, [3]float64{60, 20, 20})
	pristine, err := k.FromMesh(mesh)
	if err != nil {
		t.Fatalf("FromMesh failed: %v", err)
	}

	plan := grid.New([3]float64{60, 20, 20}, [3]float64{30, 30, 30}, false)
	carver := &Carver{
		Kernel: k,
		Spec:   Spec{Enabled: true, Diameter: 4, Depth: 3, Spacing: spacing},
	}
	working, drilled, err := carver.Carve(pristine, pristine, [3]float64{0, 0, 0}, plan)
	if err != nil {
		t.Fatalf("Carve failed: %v", err)
	}

	t.Cleanup(func() {
		if working != pristine {
			k.Destroy(working)
		}
		k.Destroy(pristine)
	})
	return k, drilled
}

func TestCarveSolidBlockSparse(t *testing.T) {
	_, drilled := carveBlock(t, SpacingSparse)

	// One interior X cut, one 20x20 cell: four corners plus center,
	// all drilling into solid material.
	if len(drilled) != 5 {
		t.Fatalf("accepted %d holes, want 5", len(drilled))
	}
	for _, h := range drilled {
		if h.Axis != 0 {
			t.Errorf("hole %s on axis %d, want X", h.Label, h.Axis)
		}
		if h.Cut != 30 {
			t.Errorf("hole %s at cut %f, want 30", h.Label, h.Cut)
		}
		if h.VolumeRatio < minVolumeRatio {
			t.Errorf("hole %s accepted with ratio %f", h.Label, h.VolumeRatio)
		}
		if h.VolumeRatio < borderlineRatio && h.DepthRatio < minDepthRatio {
			t.Errorf("hole %s borderline with depth ratio %f", h.Label, h.DepthRatio)
		}
		// Safety: the margin disc fits the measured footprint.
		if !h.Footprint.Contains(h.P1, h.P2, 2+boundaryMargin) {
			t.Errorf("hole %s violates the boundary margin", h.Label)
		}
	}
}

func TestCarveReleasesAllScratchSolids(t *testing.T) {
	k, _ := carveBlock(t, SpacingSparse)

	// Only the pristine solid and the final working solid may remain
	// live; every probe box, cylinder, and rejected trial is released.
	if live := k.Live(); live > 2 {
		t.Errorf("live solids after carve = %d, want <= 2", live)
	}
}

func TestCarveHollowShellRejects(t *testing.T) {
	k := kerneltest.New(0.25)

	// 40mm shell with 2mm walls: every ladder position sits over the
	// internal void, so the volume gate rejects everything.
	outer := k.Box(40, 40, 40)
	inner := k.Translate(k.Box(36, 36, 36), 2, 2, 2)
	shell := k.Difference(outer, inner)

	plan := grid.New([3]float64{40, 40, 40}, [3]float64{20, 20, 20}, false)
	carver := &Carver{
		Kernel: k,
		Spec:   Spec{Enabled: true, Diameter: 4, Depth: 3, Spacing: SpacingNormal},
	}
	working, drilled, err := carver.Carve(shell, shell, [3]float64{0, 0, 0}, plan)
	if err != nil {
		t.Fatalf("Carve failed: %v", err)
	}
	if len(drilled) != 0 {
		t.Errorf("accepted %d holes in a hollow shell, want 0", len(drilled))
	}
	if working != shell {
		t.Error("working solid should be unchanged when nothing is accepted")
	}
}

func TestCarveSkipsNarrowSections(t *testing.T) {
	k := kerneltest.New(0.25)

	// An 8x8 cross-section is smaller than twice the 5mm edge inset.
	mesh := kerneltest.BoxMesh([3]float64{0, 0, 0}, [3]float64{60, 8, 8})
	pristine, err := k.FromMesh(mesh)
	if err != nil {
		t.Fatalf("FromMesh failed: %v", err)
	}
	defer k.Destroy(pristine)

	plan := grid.New([3]float64{60, 8, 8}, [3]float64{30, 30, 30}, false)
	carver := &Carver{
		Kernel: k,
		Spec:   Spec{Enabled: true, Diameter: 4, Depth: 3, Spacing: SpacingSparse},
	}
	working, drilled, err := carver.Carve(pristine, pristine, [3]float64{0, 0, 0}, plan)
	if err != nil {
		t.Fatalf("Carve failed: %v", err)
	}
	if len(drilled) != 0 {
		t.Errorf("accepted %d holes in a narrow section, want 0", len(drilled))
	}
	if working != pristine {
		k.Destroy(working)
	}
}

func TestCarveNoInteriorCuts(t *testing.T) {
	k := kerneltest.New(0.5)
	box := k.Box(10, 10, 10)
	defer k.Destroy(box)

	plan := grid.New([3]float64{10, 10, 10}, [3]float64{20, 20, 20}, false)
	carver := &Carver{
		Kernel: k,
		Spec:   Spec{Enabled: true, Diameter: 2, Depth: 2, Spacing: SpacingSparse},
	}
	working, drilled, err := carver.Carve(box, box, [3]float64{0, 0, 0}, plan)
	if err != nil {
		t.Fatalf("Carve failed: %v", err)
	}
	if len(drilled) != 0 || working != box {
		t.Error("a 1x1x1 plan must be a no-op")
	}
}
