package graph

import (
	"slices"

	"kiln/internal/deps"
	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/transform"
)

// Record is one loaded module. The graph swaps whole records and never
// mutates one after insertion.
type Record struct {
	ID   source.ModuleID
	Raw  []byte
	Code []byte
	Deps []deps.Dependency
	// Resolved is parallel to Deps; an empty ID marks a dependency that
	// failed to resolve.
	Resolved []source.ModuleID
	RawHash  source.Digest
	CodeHash source.Digest
	Assets   []transform.Asset
	Warnings []diag.Diagnostic
	ESM      bool
}

// StaticDeps returns the resolved targets of non-dynamic dependencies,
// without duplicates, in source order.
func (r *Record) StaticDeps() []source.ModuleID {
	return r.depsOf(deps.Static)
}

// DynamicDeps returns the resolved targets of import() calls.
func (r *Record) DynamicDeps() []source.ModuleID {
	return r.depsOf(deps.Dynamic)
}

func (r *Record) depsOf(kind deps.Kind) []source.ModuleID {
	var out []source.ModuleID
	seen := make(map[source.ModuleID]struct{}, len(r.Resolved))
	for i, d := range r.Deps {
		if d.Kind != kind || i >= len(r.Resolved) || r.Resolved[i] == "" {
			continue
		}
		to := r.Resolved[i]
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out
}

// Targets returns every resolved dependency regardless of kind.
func (r *Record) Targets() []source.ModuleID {
	out := r.StaticDeps()
	for _, id := range r.DynamicDeps() {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
