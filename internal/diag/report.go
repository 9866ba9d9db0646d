package diag

import (
	"errors"

	"kiln/internal/source"
)

// Spanned is implemented by errors that point at a byte range in a module.
type Spanned interface {
	DiagSpan() source.Span
}

// Report collects the outcome of one build or rebuild: typed errors for the
// modules and chunks that failed plus warnings. A failure recorded here never
// aborts unrelated work. Report is not safe for concurrent use.
type Report struct {
	bag *Bag
}

func NewReport() *Report {
	return &Report{bag: NewBag(0)}
}

// ModuleError records err against module id.
func (r *Report) ModuleError(id source.ModuleID, err error) {
	if err == nil {
		return
	}
	r.bag.Add(r.fromError(err, id, ""))
}

// ChunkError records err against the chunk called name.
func (r *Report) ChunkError(name string, err error) {
	if err == nil {
		return
	}
	r.bag.Add(r.fromError(err, "", name))
}

func (r *Report) fromError(err error, id source.ModuleID, chunk string) Diagnostic {
	d := Diagnostic{
		Severity: SevError,
		Code:     CodeOf(err),
		Message:  err.Error(),
		Module:   id,
		Chunk:    chunk,
		Err:      err,
	}
	var sp Spanned
	if errors.As(err, &sp) {
		d.Primary = sp.DiagSpan()
	}
	return d
}

// Add records an arbitrary diagnostic, usually a warning.
func (r *Report) Add(d Diagnostic) {
	r.bag.Add(d)
}

// Merge appends everything in other.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.bag.Merge(other.bag)
}

// Diagnostics returns all entries sorted by subject and position.
func (r *Report) Diagnostics() []Diagnostic {
	if r == nil {
		return nil
	}
	r.bag.Sort()
	return r.bag.Items()
}

// Errors returns the typed errors in sorted order.
func (r *Report) Errors() []error {
	if r == nil {
		return nil
	}
	var out []error
	for _, d := range r.Diagnostics() {
		if d.Severity >= SevError && d.Err != nil {
			out = append(out, d.Err)
		}
	}
	return out
}

// ForModule returns the entries recorded against id.
func (r *Report) ForModule(id source.ModuleID) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics() {
		if d.Module == id {
			out = append(out, d)
		}
	}
	return out
}

func (r *Report) HasErrors() bool {
	return r != nil && r.bag.HasErrors()
}

func (r *Report) ErrorCount() int {
	return r.count(func(s Severity) bool { return s >= SevError })
}

func (r *Report) WarningCount() int {
	return r.count(func(s Severity) bool { return s == SevWarning })
}

func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return r.bag.Len()
}

func (r *Report) count(match func(Severity) bool) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, d := range r.bag.Items() {
		if match(d.Severity) {
			n++
		}
	}
	return n
}
