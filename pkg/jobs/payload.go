// Package jobs is the runtime around the split engine: validated job
// payloads, the worker loop with cooperative cancellation and stall
// recovery, queue position estimates, and admin operations. Jobs flow
// through a queue.Broker and read/write models via blob.Store.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chisel3d/chisel/pkg/holes"
	"github.com/chisel3d/chisel/pkg/queue"
	"github.com/chisel3d/chisel/pkg/splitter"
)

// Queue names. Split is the CSG pipeline; Repair is a structurally
// identical sibling with longer timeouts whose engine lives elsewhere.
const (
	QueueSplit  = "split"
	QueueRepair = "repair"
)

// PayloadVersion is the current payload schema version.
const PayloadVersion = 1

// Policy is the per-queue processing policy. Failed jobs are never
// retried: the typical failure is a malformed input, and re-running it
// would fail identically.
type Policy struct {
	HardTimeout     time.Duration
	LockTTL         time.Duration
	RenewEvery      time.Duration
	StallCheckEvery time.Duration
	RetainCompleted time.Duration
	RetainFailed    time.Duration
}

// SplitPolicy is the split queue's policy.
var SplitPolicy = Policy{
	HardTimeout:     15 * time.Minute,
	LockTTL:         16 * time.Minute,
	RenewEvery:      30 * time.Second,
	StallCheckEvery: 60 * time.Second,
	RetainCompleted: 48 * time.Hour,
	RetainFailed:    7 * 24 * time.Hour,
}

// RepairPolicy is the repair queue's policy.
var RepairPolicy = Policy{
	HardTimeout:     30 * time.Minute,
	LockTTL:         31 * time.Minute,
	RenewEvery:      30 * time.Second,
	StallCheckEvery: 60 * time.Second,
	RetainCompleted: 48 * time.Hour,
	RetainFailed:    7 * 24 * time.Hour,
}

// Dimensions is the maximum piece size per axis in mm.
type Dimensions struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HoleConfig is the wire form of the alignment-hole settings.
type HoleConfig struct {
	Enabled  bool    `json:"enabled"`
	Diameter float64 `json:"diameter"`
	Depth    float64 `json:"depth"`
	Spacing  string  `json:"spacing"`
}

// Payload is the versioned split job record carried by the broker.
type Payload struct {
	Version         int        `json:"v"`
	JobID           string     `json:"jobId"`
	FileID          string     `json:"fileId"`
	FileName        string     `json:"fileName"`
	Dimensions      Dimensions `json:"dimensions"`
	SmartBoundaries bool       `json:"smartBoundaries"`
	BalancedCutting bool       `json:"balancedCutting"`
	AlignmentHoles  HoleConfig `json:"alignmentHoles"`
}

// Validate checks required fields and value ranges.
func (p *Payload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("jobs: unsupported payload version %d", p.Version)
	}
	if p.FileID == "" {
		return errors.New("jobs: fileId is required")
	}
	if p.Dimensions.X <= 0 || p.Dimensions.Y <= 0 || p.Dimensions.Z <= 0 {
		return errors.New("jobs: dimensions must be positive")
	}
	if _, err := p.holeSpec(); err != nil {
		return err
	}
	return nil
}

func (p *Payload) holeSpec() (holes.Spec, error) {
	spec := holes.Spec{
		Enabled:  p.AlignmentHoles.Enabled,
		Diameter: p.AlignmentHoles.Diameter,
		Depth:    p.AlignmentHoles.Depth,
	}
	if !spec.Enabled {
		return spec, nil
	}
	spacing, err := holes.ParseSpacing(p.AlignmentHoles.Spacing)
	if err != nil {
		return spec, err
	}
	spec.Spacing = spacing
	return spec, spec.Validate()
}

// Options converts a validated payload into engine options.
func (p *Payload) Options() (splitter.Options, error) {
	spec, err := p.holeSpec()
	if err != nil {
		return splitter.Options{}, err
	}
	return splitter.Options{
		MaxDim:          [3]float64{p.Dimensions.X, p.Dimensions.Y, p.Dimensions.Z},
		Balanced:        p.BalancedCutting,
		SmartBoundaries: p.SmartBoundaries,
		Holes:           spec,
	}, nil
}

// PartResult locates one emitted part in the results store.
type PartResult struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Section [3]int `json:"section"`
}

// Result is the completed job's record: part keys plus the bundle key.
type Result struct {
	Parts              []PartResult `json:"parts"`
	ZipKey             string       `json:"zipKey"`
	TotalParts         int          `json:"totalParts"`
	Sections           [3]int       `json:"sections"`
	OriginalDimensions Dimensions   `json:"originalDimensions"`
}

// ResultKey returns the object-store key for one of a job's outputs.
func ResultKey(jobID, name string) string {
	return "results/" + jobID + "/" + name
}

// Submit validates the payload and enqueues it on the split queue,
// generating a job id when the payload carries none.
func Submit(ctx context.Context, b queue.Broker, p Payload) (string, error) {
	p.Version = PayloadVersion
	if p.JobID == "" {
		p.JobID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(&p)
	if err != nil {
		return "", err
	}
	if err := b.Enqueue(ctx, QueueSplit, p.JobID, data); err != nil {
		return "", err
	}
	return p.JobID, nil
}
