package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate reports every problem at once, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Root == "" {
		add("root is empty")
	}
	if c.Mode != "development" && c.Mode != "production" {
		add("mode must be \"development\" or \"production\", got %q", c.Mode)
	}
	if c.Concurrency < 0 {
		add("concurrency must not be negative")
	}

	if len(c.Entries) == 0 {
		add("at least one entry is required")
	}
	seen := make(map[string]struct{}, len(c.Entries))
	for _, e := range c.Entries {
		if strings.TrimSpace(e.Name) == "" {
			add("entry with empty name")
		}
		if strings.TrimSpace(e.Path) == "" {
			add("entry %q has an empty path", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			add("duplicate entry %q", e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	for _, ext := range c.Resolve.Extensions {
		if !strings.HasPrefix(ext, ".") {
			add("resolve.extensions: %q must start with '.'", ext)
		}
	}
	if len(c.Resolve.MainFiles) == 0 {
		add("resolve.main_files must not be empty")
	}
	for alias := range c.Resolve.Alias {
		if alias == "" || strings.HasPrefix(alias, ".") || strings.HasSuffix(alias, "/") {
			add("resolve.alias: invalid key %q", alias)
		}
	}

	for i, r := range c.Rules {
		if !slices.Contains(Categories, r.Category) {
			add("rules[%d]: unknown category %q", i, r.Category)
		}
		if len(r.Use) == 0 {
			add("rules[%d]: use must name at least one transform", i)
		}
		for j, u := range r.Use {
			if strings.TrimSpace(u.Name) == "" {
				add("rules[%d].use[%d]: empty transform name", i, j)
			}
		}
		for _, p := range append(slices.Clone(r.Include), r.Exclude...) {
			if !doublestar.ValidatePattern(p) {
				add("rules[%d]: invalid glob %q", i, p)
			}
		}
	}

	if c.Output.Dir == "" {
		add("output.dir is empty")
	}
	if c.Output.Filename == "" {
		add("output.filename is empty")
	}
	if c.Output.ChunkFilename == "" {
		add("output.chunk_filename is empty")
	}
	if c.Output.Hoist != HoistEager && c.Output.Hoist != HoistLazy {
		add("output.hoist must be %q or %q, got %q", HoistEager, HoistLazy, c.Output.Hoist)
	}
	if c.Output.MinShare < 2 {
		add("output.min_share must be at least 2")
	}

	if c.Watch.Debounce < 0 {
		add("watch.debounce must not be negative")
	}
	if c.Watch.Poll && c.Watch.PollInterval <= 0 {
		add("watch.poll_interval must be positive when polling")
	}
	for _, p := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(p) {
			add("watch.ignore: invalid glob %q", p)
		}
	}

	if c.Dev.Port < 0 || c.Dev.Port > 65535 {
		add("dev.port out of range: %d", c.Dev.Port)
	}

	return errors.Join(errs...)
}
