package reconcile

import (
	"errors"
	"fmt"
)

var (
	ErrFrameOrder    = errors.New("frame index did not increase")
	ErrAfterGameOver = errors.New("frame after game over")
	ErrMissingGrid   = errors.New("initial state without grid")
	ErrImplausible   = errors.New("acting agent is not adjacent to target")
	ErrUnknownAgent  = errors.New("agent not seen before")
)

// Diagnostic is a non-fatal problem met while applying one payload of a
// frame. The payload was skipped; the rest of the frame was applied.
type Diagnostic struct {
	Frame   int
	Payload string // "grid_changes", "doors", ...
	Err     error
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("frame %d %s: %v", d.Frame, d.Payload, d.Err)
}

func (d *Diagnostic) Unwrap() error { return d.Err }
