package chunk

import (
	"errors"
	"fmt"

	"kiln/internal/diag"
)

var ErrCollision = errors.New("output file already produced by another chunk")

// Op is the emission step that failed.
type Op uint8

const (
	OpNaming Op = iota
	OpCollision
	OpWrite
	OpAsset
	OpHTML
)

var opNames = [...]string{"naming", "collision", "write", "asset", "html"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "emit"
}

// EmitError is a failure confined to one chunk, asset or page.
type EmitError struct {
	Chunk string
	Op    Op
	Err   error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("chunk %q: %s: %v", e.Chunk, e.Op, e.Err)
}

func (e *EmitError) Unwrap() error { return e.Err }

func (e *EmitError) DiagCode() diag.Code {
	switch e.Op {
	case OpNaming:
		return diag.EmtNaming
	case OpCollision:
		return diag.EmtCollision
	case OpAsset:
		return diag.EmtAsset
	case OpHTML:
		return diag.EmtHTML
	default:
		return diag.EmtWrite
	}
}
