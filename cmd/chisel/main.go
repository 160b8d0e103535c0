// chisel is the local CLI: split an STL file into printable parts on
// disk without a broker or object store, or generate a pin-fit
// calibration gauge.
//
//	chisel split -i model.stl -o parts/ -x 200 -y 200 -z 200 --holes
//	chisel gauge -d 1.8 --depth 3 -o gauge.stl
//
// The split subcommand needs the manifold kernel (build with
// -tags=manifold); gauge runs on the built-in SDF kernel.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/chisel3d/chisel/pkg/gauge"
	"github.com/chisel3d/chisel/pkg/holes"
	"github.com/chisel3d/chisel/pkg/kernel/manifold"
	"github.com/chisel3d/chisel/pkg/kernel/sdfx"
	"github.com/chisel3d/chisel/pkg/splitter"
	"github.com/chisel3d/chisel/pkg/stl"
)

func main() {
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(log)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "split":
		err = runSplit(log, os.Args[2:])
	case "gauge":
		err = runGauge(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error(os.Args[1]+" failed", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chisel <split|gauge> [flags]")
}

func runSplit(log *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("split", pflag.ExitOnError)
	var (
		input    = fs.StringP("input", "i", "", "input STL file")
		output   = fs.StringP("output", "o", ".", "output directory")
		dimX     = fs.Float64P("x", "x", 200, "max piece size X (mm)")
		dimY     = fs.Float64P("y", "y", 200, "max piece size Y (mm)")
		dimZ     = fs.Float64P("z", "z", 200, "max piece size Z (mm)")
		balanced = fs.Bool("balanced", false, "equalize piece sizes")
		withHole = fs.Bool("holes", false, "drill alignment holes")
		diameter = fs.Float64P("diameter", "d", 1.8, "hole diameter (mm)")
		depth    = fs.Float64("depth", 3, "hole depth per side (mm)")
		spacing  = fs.String("spacing", "normal", "hole spacing: sparse|normal|dense")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("split: -i is required")
	}

	sp, err := holes.ParseSpacing(*spacing)
	if err != nil {
		return err
	}
	opts := splitter.Options{
		MaxDim:   [3]float64{*dimX, *dimY, *dimZ},
		Balanced: *balanced,
		Holes: holes.Spec{
			Enabled:  *withHole,
			Diameter: *diameter,
			Depth:    *depth,
			Spacing:  sp,
		},
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		return err
	}
	k, err := manifold.New()
	if err != nil {
		return err
	}

	engine := splitter.NewEngine(k, log)
	res, err := engine.Split(data, opts, func(pct int, msg string) {
		log.Info(msg, "percent", pct)
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		return err
	}
	for _, part := range res.Parts {
		path := filepath.Join(*output, part.Name)
		if err := os.WriteFile(path, part.Data, 0o644); err != nil {
			return err
		}
	}
	archive, err := splitter.BuildArchive(res.Parts)
	if err != nil {
		return err
	}
	zipPath := filepath.Join(*output, splitter.ArchiveName)
	if err := os.WriteFile(zipPath, archive, 0o644); err != nil {
		return err
	}

	log.Info("split complete",
		"parts", res.TotalParts,
		"sections", res.Sections,
		"holes", len(res.Holes),
		"output", *output)
	return nil
}

func runGauge(args []string) error {
	fs := pflag.NewFlagSet("gauge", pflag.ExitOnError)
	var (
		output   = fs.StringP("output", "o", "gauge.stl", "output STL file")
		diameter = fs.Float64P("diameter", "d", 1.8, "hole diameter (mm)")
		depth    = fs.Float64("depth", 3, "hole depth per side (mm)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	mesh, err := gauge.Build(sdfx.New(), *diameter, *depth)
	if err != nil {
		return err
	}
	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := stl.Encode(f, mesh); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d triangles)\n", *output, mesh.TriangleCount())
	return nil
}
