package watch

import (
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is the watch set: the files behind the current graph and the
// directories holding them. A new file in one of those directories matters
// because it may satisfy a specifier that failed to resolve. Trees are
// directories where every change matters, such as the content base.
type Set struct {
	root   string
	ignore []string
	files  map[string]bool
	dirs   map[string]bool
	trees  map[string]bool
}

func NewSet(root string, paths, ignore []string) *Set {
	s := &Set{
		root:   strings.TrimSuffix(root, "/"),
		ignore: ignore,
		files:  make(map[string]bool, len(paths)),
		dirs:   make(map[string]bool),
		trees:  make(map[string]bool),
	}
	for _, p := range paths {
		if s.ignored(p) {
			continue
		}
		s.files[p] = true
		s.dirs[path.Dir(p)] = true
	}
	return s
}

// AddTrees marks dirs so that any change directly inside them matches.
func (s *Set) AddTrees(dirs ...string) {
	for _, d := range dirs {
		if !s.ignored(d) {
			s.trees[d] = true
		}
	}
}

func (s *Set) Len() int { return len(s.files) }

// Dirs returns the directories to watch, sorted.
func (s *Set) Dirs() []string {
	out := make([]string, 0, len(s.dirs)+len(s.trees))
	for d := range s.dirs {
		out = append(out, d)
	}
	for d := range s.trees {
		if !s.dirs[d] {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out
}

// Match reports whether ev can change the build.
func (s *Set) Match(ev Event) bool {
	if s.ignored(ev.Path) {
		return false
	}
	if s.files[ev.Path] || s.trees[path.Dir(ev.Path)] {
		return true
	}
	return ev.Op != OpWrite && s.dirs[path.Dir(ev.Path)]
}

func (s *Set) ignored(p string) bool {
	rel := strings.TrimPrefix(strings.TrimPrefix(p, s.root), "/")
	for _, pat := range s.ignore {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
