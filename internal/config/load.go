package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ManifestNames are probed in order in every directory while walking up.
var ManifestNames = []string{"kiln.toml", "kiln.yaml", "kiln.yml"}

// ErrNoManifest is returned by Discover when no manifest exists up to the
// filesystem root.
var ErrNoManifest = errors.New("no kiln.toml or kiln.yaml found")

// Find walks up from startDir to locate a manifest.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range ManifestNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover finds and loads the manifest governing startDir.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoManifest
	}
	return Load(path)
}

// Load reads a manifest, merges it over Default, applies environment
// overrides and validates the result. Errors name the manifest path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read manifest: %w", path, err)
	}
	var m manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		m, err = decodeTOML(data)
	case ".yaml", ".yml":
		m, err = decodeYAML(data)
	default:
		err = fmt.Errorf("unsupported manifest format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg := Default()
	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)
	if err := m.apply(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lookup, err := envLookup(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return finish(cfg)
}

// New builds a config without a manifest: defaults plus the given entries,
// whose paths are relative to root.
func New(root string, entries ...Entry) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.Root = abs
	cfg.Entries = append([]Entry(nil), entries...)
	return finish(cfg)
}

func finish(cfg Config) (*Config, error) {
	cfg.resolvePaths()
	sort.Slice(cfg.Entries, func(i, j int) bool { return cfg.Entries[i].Name < cfg.Entries[j].Name })
	if err := cfg.Validate(); err != nil {
		if cfg.Path != "" {
			return nil, fmt.Errorf("%s: %w", cfg.Path, err)
		}
		return nil, err
	}
	return &cfg, nil
}

// manifest is the on-disk shape shared by the TOML and YAML decoders. Pointer
// fields distinguish "absent" from zero values so defaults survive.
type manifest struct {
	Root        *string           `toml:"root" yaml:"root"`
	Mode        *string           `toml:"mode" yaml:"mode"`
	Concurrency *int              `toml:"concurrency" yaml:"concurrency"`
	Entries     map[string]string `toml:"entries" yaml:"entries"`
	Resolve     *resolveSection   `toml:"resolve" yaml:"resolve"`
	Rules       []ruleSection     `toml:"rules" yaml:"rules"`
	Output      *outputSection    `toml:"output" yaml:"output"`
	Watch       *watchSection     `toml:"watch" yaml:"watch"`
	Dev         *devSection       `toml:"dev" yaml:"dev"`
	Cache       *cacheSection     `toml:"cache" yaml:"cache"`

	rulesDefined bool
}

type resolveSection struct {
	Extensions []string          `toml:"extensions" yaml:"extensions"`
	MainFiles  []string          `toml:"main_files" yaml:"main_files"`
	Modules    []string          `toml:"modules" yaml:"modules"`
	MainFields []string          `toml:"main_fields" yaml:"main_fields"`
	Alias      map[string]string `toml:"alias" yaml:"alias"`
	CacheSize  *int              `toml:"cache_size" yaml:"cache_size"`
}

type ruleSection struct {
	Category    string       `toml:"category" yaml:"category"`
	Include     []string     `toml:"include" yaml:"include"`
	Exclude     []string     `toml:"exclude" yaml:"exclude"`
	FailOnError bool         `toml:"fail_on_error" yaml:"fail_on_error"`
	Use         []useSection `toml:"use" yaml:"use"`
}

type useSection struct {
	Name    string         `toml:"name" yaml:"name"`
	Options map[string]any `toml:"options" yaml:"options"`
}

type outputSection struct {
	Dir            *string `toml:"dir" yaml:"dir"`
	Filename       *string `toml:"filename" yaml:"filename"`
	ChunkFilename  *string `toml:"chunk_filename" yaml:"chunk_filename"`
	PublicPath     *string `toml:"public_path" yaml:"public_path"`
	Clean          *bool   `toml:"clean" yaml:"clean"`
	HTMLTemplate   *string `toml:"html_template" yaml:"html_template"`
	HTMLFilename   *string `toml:"html_filename" yaml:"html_filename"`
	Manifest       *string `toml:"manifest" yaml:"manifest"`
	Hoist          *string `toml:"hoist" yaml:"hoist"`
	MinShare       *int    `toml:"min_share" yaml:"min_share"`
	NoEmitOnErrors *bool   `toml:"no_emit_on_errors" yaml:"no_emit_on_errors"`
}

type watchSection struct {
	Poll         *bool    `toml:"poll" yaml:"poll"`
	PollInterval *string  `toml:"poll_interval" yaml:"poll_interval"`
	Debounce     *string  `toml:"debounce" yaml:"debounce"`
	Ignore       []string `toml:"ignore" yaml:"ignore"`
}

type devSection struct {
	Host            *string `toml:"host" yaml:"host"`
	Port            *int    `toml:"port" yaml:"port"`
	ContentBase     *string `toml:"content_base" yaml:"content_base"`
	Compress        *bool   `toml:"compress" yaml:"compress"`
	Hot             *bool   `toml:"hot" yaml:"hot"`
	HistoryFallback *bool   `toml:"history_fallback" yaml:"history_fallback"`
}

type cacheSection struct {
	Disabled *bool   `toml:"disabled" yaml:"disabled"`
	Dir      *string `toml:"dir" yaml:"dir"`
}

func decodeTOML(data []byte) (manifest, error) {
	var m manifest
	meta, err := toml.Decode(string(data), &m)
	if err != nil {
		return manifest{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if !meta.IsDefined("entries") {
		return manifest{}, errors.New("missing [entries]")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return manifest{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	m.rulesDefined = meta.IsDefined("rules")
	return m, nil
}

func decodeYAML(data []byte) (manifest, error) {
	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return manifest{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if m.Entries == nil {
		return manifest{}, errors.New("missing entries")
	}
	m.rulesDefined = m.Rules != nil
	return m, nil
}

func (m *manifest) apply(cfg *Config) error {
	if m.Root != nil {
		root := filepath.FromSlash(*m.Root)
		if !filepath.IsAbs(root) {
			root = filepath.Join(cfg.Root, root)
		}
		cfg.Root = root
	}
	setString(&cfg.Mode, m.Mode)
	if m.Concurrency != nil {
		cfg.Concurrency = *m.Concurrency
	}
	cfg.Entries = cfg.Entries[:0]
	for name, p := range m.Entries {
		cfg.Entries = append(cfg.Entries, Entry{Name: name, Path: p})
	}

	if r := m.Resolve; r != nil {
		setSlice(&cfg.Resolve.Extensions, r.Extensions)
		setSlice(&cfg.Resolve.MainFiles, r.MainFiles)
		setSlice(&cfg.Resolve.Modules, r.Modules)
		setSlice(&cfg.Resolve.MainFields, r.MainFields)
		if r.Alias != nil {
			cfg.Resolve.Alias = make(map[string]string, len(r.Alias))
			for k, v := range r.Alias {
				cfg.Resolve.Alias[k] = v
			}
		}
		if r.CacheSize != nil {
			cfg.Resolve.CacheSize = *r.CacheSize
		}
	}

	if m.rulesDefined {
		cfg.Rules = make([]Rule, 0, len(m.Rules))
		for _, r := range m.Rules {
			rule := Rule{
				Category:    r.Category,
				Include:     r.Include,
				Exclude:     r.Exclude,
				FailOnError: r.FailOnError,
			}
			for _, u := range r.Use {
				rule.Use = append(rule.Use, Use(u))
			}
			cfg.Rules = append(cfg.Rules, rule)
		}
	}

	if o := m.Output; o != nil {
		setString(&cfg.Output.Dir, o.Dir)
		setString(&cfg.Output.Filename, o.Filename)
		setString(&cfg.Output.ChunkFilename, o.ChunkFilename)
		setString(&cfg.Output.PublicPath, o.PublicPath)
		setBool(&cfg.Output.Clean, o.Clean)
		setString(&cfg.Output.HTMLTemplate, o.HTMLTemplate)
		setString(&cfg.Output.HTMLFilename, o.HTMLFilename)
		setString(&cfg.Output.Manifest, o.Manifest)
		setString(&cfg.Output.Hoist, o.Hoist)
		if o.MinShare != nil {
			cfg.Output.MinShare = *o.MinShare
		}
		setBool(&cfg.Output.NoEmitOnErrors, o.NoEmitOnErrors)
	}

	if w := m.Watch; w != nil {
		setBool(&cfg.Watch.Poll, w.Poll)
		if err := setDuration(&cfg.Watch.PollInterval, w.PollInterval, "watch.poll_interval"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Watch.Debounce, w.Debounce, "watch.debounce"); err != nil {
			return err
		}
		setSlice(&cfg.Watch.Ignore, w.Ignore)
	}

	if d := m.Dev; d != nil {
		setString(&cfg.Dev.Host, d.Host)
		if d.Port != nil {
			cfg.Dev.Port = *d.Port
		}
		setString(&cfg.Dev.ContentBase, d.ContentBase)
		setBool(&cfg.Dev.Compress, d.Compress)
		setBool(&cfg.Dev.Hot, d.Hot)
		setBool(&cfg.Dev.HistoryFallback, d.HistoryFallback)
	}

	if c := m.Cache; c != nil {
		setBool(&cfg.Cache.Disabled, c.Disabled)
		setString(&cfg.Cache.Dir, c.Dir)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSlice(dst *[]string, v []string) {
	if v != nil {
		*dst = append([]string(nil), v...)
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
