// Package config loads the kiln manifest (kiln.toml or kiln.yaml), applies
// .env and KILN_* overrides and validates the result. A Config is built once
// and handed to every component by constructor injection; nothing mutates it
// afterwards.
package config

import (
	"time"
)

// Rule categories. Within a category the first matching rule wins.
const (
	CategoryLint   = "lint"
	CategoryScript = "script"
	CategoryStyle  = "style"
	CategoryAsset  = "asset"
	CategoryData   = "data"
)

// Categories lists every known category in execution order.
var Categories = []string{CategoryLint, CategoryScript, CategoryStyle, CategoryAsset, CategoryData}

// Shared-module hoisting policies.
const (
	HoistEager = "eager"
	HoistLazy  = "lazy"
)

type Config struct {
	// Path is the manifest file the config came from; empty for defaults.
	Path string
	// Root is the absolute project directory every relative path is joined to.
	Root        string
	Mode        string
	Concurrency int
	Entries     []Entry
	Resolve     Resolve
	Rules       []Rule
	Output      Output
	Watch       Watch
	Dev         DevServer
	Cache       Cache
}

// Entry names a bundle root. Path is absolute.
type Entry struct {
	Name string
	Path string
}

type Resolve struct {
	Extensions []string
	MainFiles  []string
	// Modules holds absolute directories and hierarchical markers such as
	// "node_modules" that are searched in every ancestor of the importer.
	Modules    []string
	MainFields []string
	Alias      map[string]string
	CacheSize  int
}

type Rule struct {
	Category    string
	Include     []string
	Exclude     []string
	FailOnError bool
	Use         []Use
}

// Use names a registered transform and its options.
type Use struct {
	Name    string
	Options map[string]any
}

type Output struct {
	Dir            string
	Filename       string
	ChunkFilename  string
	PublicPath     string
	Clean          bool
	HTMLTemplate   string
	HTMLFilename   string
	Manifest       string
	Hoist          string
	MinShare       int
	NoEmitOnErrors bool
}

type Watch struct {
	Poll         bool
	PollInterval time.Duration
	Debounce     time.Duration
	Ignore       []string
}

type DevServer struct {
	Host            string
	Port            int
	ContentBase     string
	Compress        bool
	Hot             bool
	HistoryFallback bool
}

type Cache struct {
	Disabled bool
	// Dir overrides the on-disk cache location.
	Dir string
}

// RulesFor returns the rules of one category in declaration order.
func (c *Config) RulesFor(category string) []Rule {
	var out []Rule
	for _, r := range c.Rules {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Addr is the dev server listen address.
func (d DevServer) Addr() string {
	return joinHostPort(d.Host, d.Port)
}
