package config

import (
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDebounce     = 100 * time.Millisecond
	DefaultPollInterval = 300 * time.Millisecond
	DefaultMinShare     = 3
	DefaultCacheSize    = 4096
	DefaultDevPort      = 3000
)

// Default returns the configuration used when a manifest leaves a field out.
// Paths are relative until resolved against a root.
func Default() Config {
	return Config{
		Mode:        "development",
		Concurrency: 0,
		Resolve: Resolve{
			Extensions: []string{".js", ".mjs", ".json"},
			MainFiles:  []string{"index"},
			Modules:    []string{"./src", "node_modules"},
			MainFields: []string{"module", "main"},
			CacheSize:  DefaultCacheSize,
		},
		Rules: DefaultRules(),
		Output: Output{
			Dir:           "dist",
			Filename:      "static/js/bundle.js",
			ChunkFilename: "static/js/[name].chunk.js",
			PublicPath:    "/",
			Clean:         true,
			HTMLFilename:  "index.html",
			Manifest:      "asset-manifest.json",
			Hoist:         HoistLazy,
			MinShare:      DefaultMinShare,
		},
		Watch: Watch{
			PollInterval: DefaultPollInterval,
			Debounce:     DefaultDebounce,
			Ignore:       []string{"**/node_modules/**", "**/.git/**"},
		},
		Dev: DevServer{
			Host:            "127.0.0.1",
			Port:            DefaultDevPort,
			ContentBase:     "public",
			Compress:        true,
			Hot:             true,
			HistoryFallback: true,
		},
	}
}

// DefaultRules mirrors a typical development setup: lint then compile
// scripts, compile and inject styles, inline small images, copy other files.
func DefaultRules() []Rule {
	nodeModules := []string{"**/node_modules/**"}
	return []Rule{
		{
			Category: CategoryLint,
			Include:  []string{"**/*.{js,mjs,jsx}"},
			Exclude:  nodeModules,
			Use:      []Use{{Name: "lint", Options: map[string]any{"no-debugger": "warn", "no-eval": "warn"}}},
		},
		{
			Category: CategoryScript,
			Include:  []string{"src/**/*.{js,mjs,jsx}"},
			Exclude:  nodeModules,
			Use:      []Use{{Name: "esbuild", Options: map[string]any{"target": "es2017"}}},
		},
		{
			Category: CategoryStyle,
			Include:  []string{"**/*.css"},
			Use: []Use{
				{Name: "esbuild", Options: map[string]any{"loader": "css"}},
				{Name: "style"},
			},
		},
		{
			Category: CategoryAsset,
			Include:  []string{"**/*.{bmp,gif,jpg,jpeg,png,svg}"},
			Use: []Use{{Name: "url", Options: map[string]any{
				"limit": 10000,
				"name":  "static/assets/[name].[hash:8].[ext]",
			}}},
		},
		{
			Category: CategoryAsset,
			Include:  []string{"**/*"},
			Exclude:  []string{"**/*.{js,jsx,mjs,cjs,ts,tsx,css,html,json}"},
			Use: []Use{{Name: "file", Options: map[string]any{
				"name": "static/assets/[name].[hash:8].[ext]",
			}}},
		},
		{
			Category: CategoryData,
			Include:  []string{"**/*.json"},
			Use:      []Use{{Name: "json"}},
		},
	}
}

// resolvePaths joins every relative path with root.
func (c *Config) resolvePaths() {
	c.Root = filepath.Clean(c.Root)
	for i := range c.Entries {
		c.Entries[i].Path = c.abs(c.Entries[i].Path)
	}
	for i, m := range c.Resolve.Modules {
		if isPathLike(m) {
			c.Resolve.Modules[i] = c.abs(m)
		}
	}
	for k, v := range c.Resolve.Alias {
		if isPathLike(v) {
			c.Resolve.Alias[k] = c.abs(v)
		}
	}
	c.Output.Dir = c.abs(c.Output.Dir)
	if c.Output.HTMLTemplate != "" {
		c.Output.HTMLTemplate = c.abs(c.Output.HTMLTemplate)
	}
	if c.Dev.ContentBase != "" {
		c.Dev.ContentBase = c.abs(c.Dev.ContentBase)
	}
	if c.Cache.Dir != "" {
		c.Cache.Dir = c.abs(c.Cache.Dir)
	}
}

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

func isPathLike(p string) bool {
	if filepath.IsAbs(p) {
		return true
	}
	return p == "." || p == ".." || strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../")
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
