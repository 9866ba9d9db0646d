package dag

import (
	"container/heap"
	"fmt"
	"slices"

	"fortio.org/safecast"
)

type Topo struct {
	Order   []NodeID   // зависимости раньше зависимых; при равенстве лексический порядок
	Batches [][]NodeID // волны: узлы одной волны не зависят друг от друга
	Cyclic  bool
	Cycles  []NodeID // узлы, оставшиеся в цикле или за ним, в лексическом порядке
}

// ToposortKahn orders the present nodes of g. Among ready nodes the smallest
// id goes first, and ids follow name order, so ties break lexically. Nodes
// that never become ready are appended to Order in lexical order as well.
func ToposortKahn(g Graph) *Topo {
	nodeCount := len(g.Edges)
	indeg := make([]int, len(g.Indeg))
	copy(indeg, g.Indeg)
	level := make([]int, nodeCount)

	topo := &Topo{
		Order:   make([]NodeID, 0, nodeCount),
		Batches: make([][]NodeID, 0),
	}

	ready := &idHeap{}
	active := 0
	for i := range nodeCount {
		if !g.Present[i] {
			continue
		}
		active++
		if indeg[i] == 0 {
			heap.Push(ready, conv(i))
		}
	}

	for ready.Len() > 0 {
		id := heap.Pop(ready).(NodeID)
		topo.Order = append(topo.Order, id)
		lvl := level[int(id)]
		for len(topo.Batches) <= lvl {
			topo.Batches = append(topo.Batches, nil)
		}
		topo.Batches[lvl] = append(topo.Batches[lvl], id)
		for _, to := range g.Edges[int(id)] {
			if !g.Present[int(to)] {
				continue
			}
			level[int(to)] = max(level[int(to)], lvl+1)
			indeg[int(to)]--
			if indeg[int(to)] == 0 {
				heap.Push(ready, to)
			}
		}
	}
	for _, batch := range topo.Batches {
		slices.Sort(batch)
	}

	if len(topo.Order) != active {
		topo.Cyclic = true
		for i := range nodeCount {
			if g.Present[i] && indeg[i] > 0 {
				topo.Cycles = append(topo.Cycles, conv(i))
			}
		}
		topo.Order = append(topo.Order, topo.Cycles...)
	}

	return topo
}

func conv(i int) NodeID {
	id, err := safecast.Conv[NodeID](i)
	if err != nil {
		panic(fmt.Errorf("node id overflow: %w", err))
	}
	return id
}

type idHeap []NodeID

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(NodeID)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Sort orders nodes dependencies first and lists their import cycles by name.
func Sort(nodes []Node) (order []string, cycles [][]string) {
	idx := BuildIndex(nodes)
	g := BuildGraph(idx, nodes)
	topo := ToposortKahn(g)
	for _, id := range topo.Order {
		if g.Present[int(id)] {
			order = append(order, idx.IDToName[int(id)])
		}
	}
	for _, c := range StronglyConnected(g) {
		cycles = append(cycles, idx.Names(c))
	}
	return order, cycles
}
