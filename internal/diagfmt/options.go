package diagfmt

import (
	"path"
	"strings"

	"kiln/internal/source"
)

// PathMode specifies how module paths are displayed.
type PathMode uint8

const (
	// PathModeAuto shows paths relative to the root when they are inside it.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color    bool
	Context  int8
	PathMode PathMode
	// Root is the project directory relative paths are computed against.
	Root      string
	ShowNotes bool
	// Max limits the number of diagnostics printed, 0 means no limit.
	Max int
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	IncludePositions bool
	PathMode         PathMode
	Root             string
	Max              int
	IncludeNotes     bool
}

func formatPath(id source.ModuleID, root string, mode PathMode) string {
	if id == "" {
		return ""
	}
	switch mode {
	case PathModeAbsolute:
		return id.String()
	case PathModeBasename:
		p := path.Base(id.Path())
		if q := id.Query(); q != "" {
			p += "?" + q
		}
		return p
	case PathModeRelative:
		return relWithQuery(id, root)
	default:
		if root == "" || id.Rel(root) == strings.TrimPrefix(id.Path(), "/") {
			return id.String()
		}
		return relWithQuery(id, root)
	}
}

func relWithQuery(id source.ModuleID, root string) string {
	p := id.Rel(root)
	if q := id.Query(); q != "" {
		p += "?" + q
	}
	return p
}
