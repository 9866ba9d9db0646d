package dag

import (
	"sort"
)

type NodeID uint32

// Node is one module and the names of the modules it depends on.
type Node struct {
	Name string
	Deps []string
}

type Index struct {
	NameToID map[string]NodeID
	IDToName []string
}

// собрать уникальные имена, sort.Strings, раздать ID по порядку:
// порядок ID совпадает с лексическим порядком имён
func BuildIndex(nodes []Node) Index {
	uniq := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Name != "" {
			uniq[n.Name] = struct{}{}
		}
		for _, dep := range n.Deps {
			if dep == "" {
				continue
			}
			uniq[dep] = struct{}{}
		}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]NodeID, len(names))
	for i, name := range names {
		nameToID[name] = NodeID(i)
	}

	return Index{
		NameToID: nameToID,
		IDToName: names,
	}
}

// Names maps ids back to names.
func (idx Index) Names(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idx.IDToName[int(id)]
	}
	return out
}
