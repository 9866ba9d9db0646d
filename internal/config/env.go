package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix marks variables that override manifest values.
const EnvPrefix = "KILN_"

// Lookup returns an environment value and whether it was set.
type Lookup func(key string) (string, bool)

// envLookup prefers the process environment and falls back to root/.env.
func envLookup(root string) (Lookup, error) {
	dotenv, err := godotenv.Read(filepath.Join(root, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// applyEnv overrides the handful of values that commonly differ between
// machines.
func applyEnv(cfg *Config, lookup Lookup) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("MODE"); ok {
		cfg.Mode = v
	}
	if v, ok := get("PUBLIC_PATH"); ok {
		cfg.Output.PublicPath = v
	}
	if v, ok := get("OUT_DIR"); ok {
		cfg.Output.Dir = v
	}
	if v, ok := get("HOST"); ok {
		cfg.Dev.Host = v
	}
	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		cfg.Dev.Port = port
	}
	if v, ok := get("POLL"); ok {
		poll, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPOLL: %w", EnvPrefix, err)
		}
		cfg.Watch.Poll = poll
	}
	if v, ok := get("CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err)
		}
		cfg.Concurrency = n
	}
	return nil
}
