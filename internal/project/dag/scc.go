package dag

import (
	"slices"
)

// StronglyConnected returns the import cycles of g: every strongly connected
// component with more than one node. Members of each cycle are sorted and
// cycles are ordered by their first member.
func StronglyConnected(g Graph) [][]NodeID {
	n := len(g.Deps)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var (
		stack  []NodeID
		next   int
		cycles [][]NodeID
	)

	var visit func(v int)
	visit = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, conv(v))
		onStack[v] = true

		for _, w := range g.Deps[v] {
			switch {
			case index[int(w)] < 0:
				visit(int(w))
				low[v] = min(low[v], low[int(w)])
			case onStack[int(w)]:
				low[v] = min(low[v], index[int(w)])
			}
		}

		if low[v] != index[v] {
			return
		}
		var comp []NodeID
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[int(top)] = false
			comp = append(comp, top)
			if int(top) == v {
				break
			}
		}
		if len(comp) > 1 {
			slices.Sort(comp)
			cycles = append(cycles, comp)
		}
	}

	for v := range n {
		if g.Present[v] && index[v] < 0 {
			visit(v)
		}
	}
	slices.SortFunc(cycles, func(a, b []NodeID) int { return int(a[0]) - int(b[0]) })
	return cycles
}
