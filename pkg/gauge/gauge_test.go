package gauge

import (
	"testing"

	"github.com/chisel3d/chisel/pkg/kernel/kerneltest"
)

func TestBuild(t *testing.T) {
	k := kerneltest.New(0.25)
	mesh, err := Build(k, 1.8, 3)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("gauge mesh is empty")
	}

	// Plate is 2 cells wide by 1 deep; the pin stands above the plate.
	if mesh.Max[0] <= mesh.Max[1] {
		t.Errorf("gauge should be wider than deep: %v %v", mesh.Min, mesh.Max)
	}
	plateTop := 3.0 + 1.0
	if mesh.Max[2] <= plateTop {
		t.Errorf("pin should rise above the plate: max z = %f", mesh.Max[2])
	}

	if live := k.Live(); live != 0 {
		t.Errorf("live solids after build = %d, want 0", live)
	}
}

func TestBuildValidation(t *testing.T) {
	k := kerneltest.New(0.5)
	if _, err := Build(k, 0.2, 3); err == nil {
		t.Error("expected error for undersized diameter")
	}
	if _, err := Build(k, 1.8, 99); err == nil {
		t.Error("expected error for oversized depth")
	}
}
