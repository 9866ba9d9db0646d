package dag

import (
	"fmt"
	"slices"
	"strings"

	"kiln/internal/diag"
	"kiln/internal/source"
)

// Graph stores edges from a dependency to its dependents so that Kahn's
// algorithm yields dependencies first.
type Graph struct {
	Edges   [][]NodeID // Edges[dep] = []dependent
	Deps    [][]NodeID // Deps[node] = []dep, only present deps
	Indeg   []int      // число присутствующих зависимостей узла
	Present []bool     // модуль реально есть в наборе, а не только упомянут
}

// BuildGraph wires nodes through idx. Dependencies on names that are not
// themselves nodes, self-imports and duplicates are ignored.
func BuildGraph(idx Index, nodes []Node) Graph {
	nodeCount := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]NodeID, nodeCount),
		Deps:    make([][]NodeID, nodeCount),
		Indeg:   make([]int, nodeCount),
		Present: make([]bool, nodeCount),
	}
	for _, n := range nodes {
		if id, ok := idx.NameToID[n.Name]; ok {
			g.Present[int(id)] = true
		}
	}

	for _, n := range nodes {
		from, ok := idx.NameToID[n.Name]
		if !ok {
			continue
		}
		seen := make(map[NodeID]struct{}, len(n.Deps))
		for _, dep := range n.Deps {
			to, ok := idx.NameToID[dep]
			if !ok || to == from || !g.Present[int(to)] {
				continue
			}
			if _, dup := seen[to]; dup {
				continue
			}
			seen[to] = struct{}{}
			g.Deps[int(from)] = append(g.Deps[int(from)], to)
			g.Edges[int(to)] = append(g.Edges[int(to)], from)
			g.Indeg[int(from)]++
		}
		slices.Sort(g.Deps[int(from)])
	}
	for i := range g.Edges {
		if len(g.Edges[i]) > 1 {
			slices.Sort(g.Edges[i])
		}
	}
	return g
}

// ReportCycles emits one warning per cycle member. Cycles are legal; the
// warning only points them out.
func ReportCycles(idx Index, cycles [][]NodeID, rep diag.Reporter) {
	for _, cycle := range cycles {
		names := idx.Names(cycle)
		summary := strings.Join(names, " -> ") + " -> " + names[0]
		for _, name := range names {
			msg := fmt.Sprintf("module %q participates in an import cycle: %s", name, summary)
			rep.Report(diag.GrfImportCycle, diag.SevWarning, source.ModuleID(name), source.Span{}, msg, nil)
		}
	}
}
