package splitter

import "errors"

// Engine error taxonomy. Each sentinel maps to one user-facing failure
// class; the runtime matches with errors.Is to pick the message.
var (
	// ErrNonManifold means the kernel rejected the input mesh: the
	// surface is not closed and watertight.
	ErrNonManifold = errors.New("input mesh is not manifold")

	// ErrTooComplex means the kernel ran out of range or memory while
	// processing; surfaced as "file too large or complex".
	ErrTooComplex = errors.New("model too large or complex to process")

	// ErrEmptyResult means no grid cell produced a non-empty part;
	// the model likely sits outside the cutting bounds.
	ErrEmptyResult = errors.New("no parts produced")
)
