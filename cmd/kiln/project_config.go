package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kiln/internal/config"
)

// loadConfig loads the manifest named by --config or discovers one from the
// working directory, then applies the per-command mode override.
func loadConfig(cmd *cobra.Command, mode string) (*config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	var cfg *config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		cfg, err = config.Discover(wd)
		if errors.Is(err, config.ErrNoManifest) {
			return nil, fmt.Errorf("%w in %s or its parents (run \"kiln init\" to create one)", err, wd)
		}
	}
	if err != nil {
		return nil, err
	}
	if mode != "" {
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func maxDiagnostics(cmd *cobra.Command) int {
	n, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return 0
	}
	return n
}

func quietFlag(cmd *cobra.Command) bool {
	q, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	return q
}
