package graph

import (
	"maps"
	"slices"

	"kiln/internal/diag"
	"kiln/internal/project/dag"
	"kiln/internal/source"
)

// Entry is a named graph root.
type Entry struct {
	Name string
	ID   source.ModuleID
}

// Snapshot is an immutable view of the graph after one Build or Patch.
// It is safe to share between goroutines.
type Snapshot struct {
	Root    string
	entries []Entry
	records map[source.ModuleID]*Record
	// failed holds modules that are referenced but have no live record
	failed     map[source.ModuleID]error
	dependents map[source.ModuleID][]source.ModuleID
}

func newSnapshot(root string, entries []Entry, records map[source.ModuleID]*Record, failed map[source.ModuleID]error) *Snapshot {
	s := &Snapshot{
		Root:       root,
		entries:    entries,
		records:    records,
		failed:     failed,
		dependents: make(map[source.ModuleID][]source.ModuleID),
	}
	for _, id := range s.IDs() {
		for _, to := range records[id].Targets() {
			s.dependents[to] = append(s.dependents[to], id)
		}
	}
	return s
}

func emptySnapshot(root string) *Snapshot {
	return newSnapshot(root, nil, map[source.ModuleID]*Record{}, map[source.ModuleID]error{})
}

func (s *Snapshot) Entries() []Entry { return slices.Clone(s.entries) }

func (s *Snapshot) Record(id source.ModuleID) (*Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

func (s *Snapshot) Len() int { return len(s.records) }

// IDs returns every module with a live record, sorted.
func (s *Snapshot) IDs() []source.ModuleID {
	return slices.Sorted(maps.Keys(s.records))
}

// Records returns the live records sorted by ID.
func (s *Snapshot) Records() []*Record {
	ids := s.IDs()
	out := make([]*Record, len(ids))
	for i, id := range ids {
		out[i] = s.records[id]
	}
	return out
}

// Failed returns the referenced modules that have never loaded, sorted.
func (s *Snapshot) Failed() []source.ModuleID {
	return slices.Sorted(maps.Keys(s.failed))
}

// Dependents returns the modules importing id directly, sorted.
func (s *Snapshot) Dependents(id source.ModuleID) []source.ModuleID {
	return slices.Clone(s.dependents[id])
}

// TransitiveDependents returns every module that reaches one of ids, not
// including ids themselves unless they sit on a cycle.
func (s *Snapshot) TransitiveDependents(ids ...source.ModuleID) []source.ModuleID {
	seen := make(map[source.ModuleID]bool)
	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range s.dependents[id] {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Paths is the watch set: the file behind every live or failed module.
func (s *Snapshot) Paths() []string {
	set := make(map[string]struct{}, len(s.records)+len(s.failed))
	for id := range s.records {
		set[id.Path()] = struct{}{}
	}
	for id := range s.failed {
		set[id.Path()] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Cycles lists the import cycles among live records.
func (s *Snapshot) Cycles() [][]source.ModuleID {
	_, cycles := dag.Sort(s.nodes())
	out := make([][]source.ModuleID, len(cycles))
	for i, c := range cycles {
		for _, name := range c {
			out[i] = append(out[i], source.ModuleID(name))
		}
	}
	return out
}

// ReportCycles warns once per module on an import cycle.
func (s *Snapshot) ReportCycles(rep diag.Reporter) {
	nodes := s.nodes()
	idx := dag.BuildIndex(nodes)
	dag.ReportCycles(idx, dag.StronglyConnected(dag.BuildGraph(idx, nodes)), rep)
}

func (s *Snapshot) nodes() []dag.Node {
	nodes := make([]dag.Node, 0, len(s.records))
	for _, r := range s.Records() {
		n := dag.Node{Name: string(r.ID)}
		for _, to := range r.Targets() {
			n.Deps = append(n.Deps, string(to))
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// ChangedSince lists the live modules whose transformed code differs from
// prev, modules prev does not have included, sorted. Dependents reloaded by
// Patch with identical output are left out.
func (s *Snapshot) ChangedSince(prev *Snapshot) []source.ModuleID {
	var out []source.ModuleID
	for _, id := range s.IDs() {
		old, ok := prev.records[id]
		if !ok || old.CodeHash != s.records[id].CodeHash {
			out = append(out, id)
		}
	}
	return out
}
