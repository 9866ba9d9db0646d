package diag

import (
	"cmp"
	"slices"

	"kiln/internal/source"
)

// Bag collects the diagnostics of one module load or one emit. It is not
// safe for concurrent use.
type Bag struct {
	items []Diagnostic
	limit int
}

// NewBag returns a bag holding at most limit diagnostics; limit <= 0 means
// no limit.
func NewBag(limit int) *Bag {
	return &Bag{limit: limit}
}

// Add appends d unless the limit is reached and reports whether d was kept.
func (b *Bag) Add(d Diagnostic) bool {
	if b.limit > 0 && len(b.items) >= b.limit {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() int { return b.limit }

func (b *Bag) HasErrors() bool { return b.any(SevError) }

func (b *Bag) HasWarnings() bool { return b.any(SevWarning) }

func (b *Bag) any(min Severity) bool {
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= min })
}

func (b *Bag) Len() int { return len(b.items) }

// Items returns the backing slice; callers must not modify it.
func (b *Bag) Items() []Diagnostic { return b.items }

// Merge appends every diagnostic of other, raising the limit to fit them.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	if n := len(b.items) + len(other.items); b.limit > 0 && n > b.limit {
		b.limit = n
	}
	b.items = append(b.items, other.items...)
}

// Sort orders by module, chunk and span; at the same place errors come
// before warnings.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		return cmp.Or(
			cmp.Compare(x.Module, y.Module),
			cmp.Compare(x.Chunk, y.Chunk),
			cmp.Compare(x.Primary.Start, y.Primary.Start),
			cmp.Compare(x.Primary.End, y.Primary.End),
			cmp.Compare(y.Severity, x.Severity),
			cmp.Compare(x.Code, y.Code),
		)
	})
}

type dedupKey struct {
	code    Code
	module  source.ModuleID
	chunk   string
	span    source.Span
	message string
}

// Dedup drops repeats of the same code and message at the same place. A
// module reported through two import paths would otherwise repeat.
func (b *Bag) Dedup() {
	seen := make(map[dedupKey]bool, len(b.items))
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool {
		k := dedupKey{d.Code, d.Module, d.Chunk, d.Primary, d.Message}
		if seen[k] {
			return true
		}
		seen[k] = true
		return false
	})
}

// Filter keeps the diagnostics for which keep returns true.
func (b *Bag) Filter(keep func(Diagnostic) bool) {
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool { return !keep(d) })
}
