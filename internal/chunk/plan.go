// Package chunk partitions the module graph into output chunks and writes
// them.
package chunk

import (
	"maps"
	"slices"
	"strings"

	"kiln/internal/config"
	"kiln/internal/graph"
	"kiln/internal/project/dag"
	"kiln/internal/source"
)

type Kind uint8

const (
	KindEntry Kind = iota
	KindDynamic
	KindShared
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindDynamic:
		return "dynamic"
	case KindShared:
		return "shared"
	default:
		return "unknown"
	}
}

// Chunk is one output file.
type Chunk struct {
	Name string
	Kind Kind
	// Root is the entry module or the dynamic import target; empty for
	// shared chunks.
	Root source.ModuleID
	// Modules in emission order: dependencies first, ties and cycle members
	// in lexical order.
	Modules []source.ModuleID
	// Requires names the shared chunks that must be loaded before this one
	// runs, sorted.
	Requires []string

	Code []byte
	Hash source.Digest
	File string
}

// Contains reports whether id is serialised in c.
func (c *Chunk) Contains(id source.ModuleID) bool {
	return slices.Contains(c.Modules, id)
}

// Plan is the chunk layout of one snapshot.
type Plan struct {
	Chunks []*Chunk
	// Dynamic maps a dynamic import target to the chunk that carries it.
	// Targets already available to every importer map to "".
	Dynamic map[source.ModuleID]string

	byName map[string]*Chunk
}

func (p *Plan) Chunk(name string) (*Chunk, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// Policy controls how modules shared between chunks are placed.
type Policy struct {
	// Hoist is config.HoistEager or config.HoistLazy.
	Hoist string
	// MinShare is the owner count from which lazy hoisting kicks in.
	MinShare int
}

type set map[source.ModuleID]bool

func (s set) sorted() []source.ModuleID { return slices.Sorted(maps.Keys(s)) }

// NewPlan partitions snap.
//
// Every entry seeds a chunk holding its static closure. Every dynamic import
// target seeds one chunk shared by all its import sites; modules already
// available in every parent of such a chunk are left out of it. Modules owned
// by several chunks are then hoisted into shared chunks according to policy.
func NewPlan(snap *graph.Snapshot, policy Policy) *Plan {
	b := &planner{snap: snap, closure: make(map[source.ModuleID]set)}
	return b.plan(policy)
}

type planner struct {
	snap    *graph.Snapshot
	closure map[source.ModuleID]set
}

type seed struct {
	name    string
	kind    Kind
	root    source.ModuleID
	parents []string
	owned   set
	avail   set
}

// staticClosure is every live module reachable from root through static
// dependencies, root included.
func (b *planner) staticClosure(root source.ModuleID) set {
	if c, ok := b.closure[root]; ok {
		return c
	}
	out := set{}
	queue := []source.ModuleID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		rec, ok := b.snap.Record(id)
		if !ok || out[id] {
			continue
		}
		out[id] = true
		queue = append(queue, rec.StaticDeps()...)
	}
	b.closure[root] = out
	return out
}

func (b *planner) plan(policy Policy) *Plan {
	var seeds []*seed
	byName := map[string]*seed{}
	dynamicSeed := map[source.ModuleID]*seed{}

	for _, e := range b.snap.Entries() {
		s := &seed{name: e.Name, kind: KindEntry, root: e.ID, owned: maps.Clone(b.staticClosure(e.ID))}
		seeds = append(seeds, s)
		byName[s.name] = s
	}

	// discover dynamic targets breadth-first from the entries so names are
	// assigned in a stable order
	var targets []source.ModuleID
	for i := 0; i < len(seeds); i++ {
		s := seeds[i]
		for _, id := range b.staticClosure(s.root).sorted() {
			rec, _ := b.snap.Record(id)
			for _, t := range rec.DynamicDeps() {
				if _, ok := b.snap.Record(t); !ok {
					continue
				}
				ds, ok := dynamicSeed[t]
				if !ok {
					ds = &seed{kind: KindDynamic, root: t}
					dynamicSeed[t] = ds
					targets = append(targets, t)
					seeds = append(seeds, ds)
				}
				if !slices.Contains(ds.parents, s.name) {
					ds.parents = append(ds.parents, s.name)
				}
			}
		}
		// named on discovery so their own imports can list them as parents
		b.nameDynamic(seeds[i+1:], byName)
	}

	// available(D) = ∩ over parents P of (available(P) ∪ closure(P)),
	// iterated to a fixpoint because dynamic imports may form cycles
	all := set{}
	for _, id := range b.snap.IDs() {
		all[id] = true
	}
	for _, s := range seeds {
		if s.kind == KindEntry {
			s.avail = set{}
		} else {
			s.avail = all
		}
	}
	for changed := true; changed; {
		changed = false
		for _, s := range seeds {
			if s.kind == KindEntry {
				continue
			}
			var next set
			for _, pn := range s.parents {
				p := byName[pn]
				reach := maps.Clone(p.avail)
				for id := range b.staticClosure(p.root) {
					reach[id] = true
				}
				if next == nil {
					next = reach
					continue
				}
				for id := range next {
					if !reach[id] {
						delete(next, id)
					}
				}
			}
			if next == nil {
				next = set{}
			}
			// sets only shrink, so comparing sizes is enough
			if len(next) != len(s.avail) {
				s.avail = next
				changed = true
			}
		}
	}
	for _, s := range seeds {
		if s.kind == KindEntry {
			continue
		}
		s.owned = set{}
		for id := range b.staticClosure(s.root) {
			if !s.avail[id] {
				s.owned[id] = true
			}
		}
	}

	plan := &Plan{Dynamic: make(map[source.ModuleID]string, len(targets)), byName: map[string]*Chunk{}}
	chunks := make(map[string]*Chunk, len(seeds))
	for _, s := range seeds {
		if len(s.owned) == 0 {
			if s.kind == KindDynamic {
				plan.Dynamic[s.root] = ""
			}
			continue
		}
		c := &Chunk{Name: s.name, Kind: s.kind, Root: s.root}
		chunks[s.name] = c
		if s.kind == KindDynamic {
			plan.Dynamic[s.root] = s.name
		}
	}

	b.hoist(seeds, chunks, policy)

	for _, s := range seeds {
		c, ok := chunks[s.name]
		if !ok {
			continue
		}
		c.Modules = b.order(s.owned)
		plan.Chunks = append(plan.Chunks, c)
	}
	for _, c := range chunks {
		if c.Kind == KindShared {
			plan.Chunks = append(plan.Chunks, c)
		}
	}
	slices.SortStableFunc(plan.Chunks, func(x, y *Chunk) int {
		if x.Kind != y.Kind {
			return int(x.Kind) - int(y.Kind)
		}
		if x.Kind == KindDynamic {
			return 0
		}
		return strings.Compare(x.Name, y.Name)
	})
	for _, c := range plan.Chunks {
		plan.byName[c.Name] = c
	}
	return plan
}

// nameDynamic names unnamed dynamic seeds after their target's base name,
// suffixed with a short digest of the ID when two targets share a base.
func (b *planner) nameDynamic(seeds []*seed, byName map[string]*seed) {
	for _, s := range seeds {
		if s.name != "" || s.kind != KindDynamic {
			continue
		}
		name := sanitize(s.root.Base())
		if _, taken := byName[name]; taken {
			name += "-" + source.Sum([]byte(s.root)).Short(6)
		}
		s.name = name
		byName[name] = s
	}
}

// hoist moves modules owned by several chunks into shared chunks, one per
// distinct owner set.
func (b *planner) hoist(seeds []*seed, chunks map[string]*Chunk, policy Policy) {
	owners := map[source.ModuleID][]string{}
	for _, s := range seeds {
		if _, ok := chunks[s.name]; !ok {
			continue
		}
		for id := range s.owned {
			owners[id] = append(owners[id], s.name)
		}
	}

	threshold := 2
	if policy.Hoist != config.HoistEager {
		threshold = max(policy.MinShare, 2)
	}

	groups := map[string]set{}
	groupOwners := map[string][]string{}
	for id, names := range owners {
		if len(names) < threshold {
			continue
		}
		slices.Sort(names)
		key := strings.Join(names, "\x00")
		if groups[key] == nil {
			groups[key] = set{}
			groupOwners[key] = names
		}
		groups[key][id] = true
	}

	seedByName := make(map[string]*seed, len(seeds))
	for _, s := range seeds {
		seedByName[s.name] = s
	}
	for _, key := range slices.Sorted(maps.Keys(groups)) {
		names := groupOwners[key]
		name := "shared-" + source.Sum([]byte(key)).Short(8)
		shared := &seed{name: name, kind: KindShared, owned: groups[key]}
		seedByName[name] = shared
		chunks[name] = &Chunk{Name: name, Kind: KindShared}
		for _, owner := range names {
			s := seedByName[owner]
			for id := range groups[key] {
				delete(s.owned, id)
			}
			c := chunks[owner]
			c.Requires = append(c.Requires, name)
			slices.Sort(c.Requires)
		}
		chunks[name].Modules = b.order(shared.owned)
	}
}

// order sorts a module set dependencies first.
func (b *planner) order(ids set) []source.ModuleID {
	nodes := make([]dag.Node, 0, len(ids))
	for _, id := range ids.sorted() {
		n := dag.Node{Name: string(id)}
		if rec, ok := b.snap.Record(id); ok {
			for _, dep := range rec.StaticDeps() {
				if ids[dep] {
					n.Deps = append(n.Deps, string(dep))
				}
			}
		}
		nodes = append(nodes, n)
	}
	names, _ := dag.Sort(nodes)
	out := make([]source.ModuleID, len(names))
	for i, n := range names {
		out[i] = source.ModuleID(n)
	}
	return out
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "chunk"
	}
	return b.String()
}
