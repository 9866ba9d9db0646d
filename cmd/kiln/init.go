package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kiln/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a new kiln project",
	Long: `Initialize a new kiln project by creating a manifest (kiln.toml), an HTML
template (public/index.html) and an entry module (src/index.js). If [path]
is omitted, initializes the current directory; a missing directory is
created. Existing template and entry files are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	target := wd
	if len(args) == 1 && args[0] != "." {
		target = args[0]
		if !filepath.IsAbs(target) {
			target = filepath.Join(wd, target)
		}
	}
	created, err := initProject(target)
	if err != nil {
		return err
	}

	rel := target
	if r, err := filepath.Rel(wd, target); err == nil {
		rel = r
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized kiln project in %s\n", rel)
	for _, f := range created {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	return nil
}

// initProject writes the starter files into dir and returns the ones it
// created, relative to dir. It refuses to overwrite a manifest.
func initProject(dir string) ([]string, error) {
	if st, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	for _, name := range config.ManifestNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return nil, fmt.Errorf("project already initialized: %s exists", filepath.Join(dir, name))
		}
	}

	files := []struct {
		rel, content string
		always       bool
	}{
		{"kiln.toml", config.StarterTOML, true},
		{filepath.Join("public", "index.html"), config.StarterHTML, false},
		{filepath.Join("src", "index.js"), config.StarterEntry, false},
	}
	var created []string
	for _, f := range files {
		p := filepath.Join(dir, f.rel)
		if !f.always {
			if _, err := os.Stat(p); err == nil {
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return created, err
		}
		if err := os.WriteFile(p, []byte(f.content), 0o644); err != nil {
			return created, fmt.Errorf("failed to write %s: %w", f.rel, err)
		}
		created = append(created, filepath.ToSlash(f.rel))
	}
	return created, nil
}
