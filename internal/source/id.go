package source

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ModuleID is the canonical identity of a module: a cleaned absolute path
// with forward slashes in Unicode NFC, optionally followed by "?query".
type ModuleID string

// NewModuleID normalises p and attaches query (without the leading '?').
func NewModuleID(p, query string) ModuleID {
	clean := NormalizePath(p)
	if query == "" {
		return ModuleID(clean)
	}
	return ModuleID(clean + "?" + query)
}

// ParseModuleID splits s on the first '?' and normalises the path part.
func ParseModuleID(s string) ModuleID {
	p, q, _ := strings.Cut(s, "?")
	return NewModuleID(p, q)
}

// NormalizePath returns the single form used in module keys and diffs.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	// filepath.Clean keeps platform separators; keys are always slash-separated
	clean := filepath.ToSlash(filepath.Clean(p))
	return norm.NFC.String(clean)
}

func (id ModuleID) String() string { return string(id) }

// Path is the filesystem part of the identifier.
func (id ModuleID) Path() string {
	p, _, _ := strings.Cut(string(id), "?")
	return p
}

// Query is the part after '?', without the separator.
func (id ModuleID) Query() string {
	_, q, _ := strings.Cut(string(id), "?")
	return q
}

func (id ModuleID) Dir() string { return path.Dir(id.Path()) }

// Ext returns the extension of the path part, including the dot.
func (id ModuleID) Ext() string { return path.Ext(id.Path()) }

// Base returns the file name without extension.
func (id ModuleID) Base() string {
	b := path.Base(id.Path())
	return strings.TrimSuffix(b, path.Ext(b))
}

// Rel returns the path relative to root, slash separated. Paths outside root
// are returned without their leading slash so glob patterns never see "../".
func (id ModuleID) Rel(root string) string {
	p := id.Path()
	root = NormalizePath(root)
	if root != "" {
		if p == root {
			return "."
		}
		prefix := strings.TrimSuffix(root, "/") + "/"
		if strings.HasPrefix(p, prefix) {
			return p[len(prefix):]
		}
	}
	return strings.TrimPrefix(p, "/")
}

// Key is the registry key the runtime uses: "./" plus the root-relative path,
// with the query kept so "a.css" and "a.css?inline" stay distinct.
func (id ModuleID) Key(root string) string {
	k := "./" + id.Rel(root)
	if q := id.Query(); q != "" {
		k += "?" + q
	}
	return k
}
