package loader

import (
	"errors"
	"fmt"

	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/transform"
)

var (
	// ErrNoRule is returned for a non-script module no rule applies to.
	ErrNoRule = errors.New("no rule matches this file")
	// ErrLintFailed is returned when a fail_on_error lint rule found errors.
	ErrLintFailed = errors.New("lint reported errors")
	// ErrUnknownTransform is returned by New for a rule naming an
	// unregistered transform.
	ErrUnknownTransform = errors.New("unknown transform")
)

// LoadError reports that a module's content could not be read.
type LoadError struct {
	ID  source.ModuleID
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.ID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) DiagCode() diag.Code { return diag.LdrReadFailed }

// TransformError reports that a rule rejected a module. Rule is the index of
// the rule in declaration order, -1 when no rule applied.
type TransformError struct {
	Rule      int
	Category  string
	Transform string
	ID        source.ModuleID
	Err       error
}

func (e *TransformError) Error() string {
	switch {
	case e.Rule < 0:
		return fmt.Sprintf("transform %s: %v", e.ID, e.Err)
	case e.Transform == "":
		return fmt.Sprintf("transform %s: rule #%d (%s): %v", e.ID, e.Rule, e.Category, e.Err)
	default:
		return fmt.Sprintf("transform %s: rule #%d (%s) %s: %v", e.ID, e.Rule, e.Category, e.Transform, e.Err)
	}
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) DiagCode() diag.Code {
	if errors.Is(e.Err, ErrLintFailed) {
		return diag.LdrLintFailed
	}
	return diag.LdrTransformFailed
}

func (e *TransformError) DiagSpan() source.Span {
	var te *transform.Error
	if errors.As(e.Err, &te) {
		return te.Span
	}
	return source.Span{}
}
