// Package resolve maps import specifiers to module identities.
//
// Relative and absolute specifiers are joined with the importer's directory;
// bare specifiers are searched through the configured module directories.
// Each candidate path is probed as a file, then with every configured
// extension, then as a directory (package.json fields, then main files).
package resolve

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/source"
)

// Error reports a specifier that matched no file. Searched lists every path
// probed, in probe order.
type Error struct {
	Specifier string
	From      string
	Searched  []string
	// Span locates the specifier in the importing module, when known.
	Span source.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot resolve %q from %s (searched %d paths)", e.Specifier, e.From, len(e.Searched))
}

func (e *Error) DiagCode() diag.Code {
	if strings.TrimSpace(e.Specifier) == "" {
		return diag.ResInvalidSpecifier
	}
	return diag.ResNotFound
}

func (e *Error) DiagSpan() source.Span { return e.Span }

type Resolver struct {
	fs      source.FS
	opts    config.Resolve
	aliases []string // alias keys, longest first
	cache   *lru.Cache[string, source.ModuleID]
	pkgs    *lru.Cache[string, packageJSON]
}

func New(fsys source.FS, opts config.Resolve) (*Resolver, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = config.DefaultCacheSize
	}
	cache, err := lru.New[string, source.ModuleID](size)
	if err != nil {
		return nil, fmt.Errorf("resolve cache: %w", err)
	}
	pkgs, err := lru.New[string, packageJSON](max(size/8, 16))
	if err != nil {
		return nil, fmt.Errorf("package cache: %w", err)
	}
	aliases := make([]string, 0, len(opts.Alias))
	for k := range opts.Alias {
		aliases = append(aliases, k)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	return &Resolver{fs: fsys, opts: opts, aliases: aliases, cache: cache, pkgs: pkgs}, nil
}

// Resolve returns the identity of specifier imported from fromDir. The same
// inputs always produce the same identity while the filesystem is unchanged.
func (r *Resolver) Resolve(specifier, fromDir string) (source.ModuleID, error) {
	fromDir = source.NormalizePath(fromDir)
	key := fromDir + "\x00" + specifier
	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}

	req, query, _ := strings.Cut(specifier, "?")
	if strings.TrimSpace(req) == "" {
		return "", &Error{Specifier: specifier, From: fromDir}
	}
	req = r.applyAlias(req)

	p := &prober{r: r}
	var found string
	if isRelative(req) || path.IsAbs(req) {
		target := req
		if !path.IsAbs(target) {
			target = path.Join(fromDir, target)
		}
		found = p.probe(target)
	} else {
		found = r.searchModules(p, req, fromDir)
	}
	if found == "" {
		return "", &Error{Specifier: specifier, From: fromDir, Searched: p.searched}
	}

	id := source.NewModuleID(found, query)
	r.cache.Add(key, id)
	return id, nil
}

// Purge drops every cached result; call it when files appear or disappear.
func (r *Resolver) Purge() {
	r.cache.Purge()
	r.pkgs.Purge()
}

func (r *Resolver) applyAlias(req string) string {
	for _, alias := range r.aliases {
		if req == alias || strings.HasPrefix(req, alias+"/") {
			return r.opts.Alias[alias] + req[len(alias):]
		}
	}
	return req
}

func (r *Resolver) searchModules(p *prober, req, fromDir string) string {
	for _, m := range r.opts.Modules {
		m = source.NormalizePath(m)
		if path.IsAbs(m) {
			if found := p.probe(path.Join(m, req)); found != "" {
				return found
			}
			continue
		}
		for dir := fromDir; ; dir = path.Dir(dir) {
			if path.Base(dir) != m {
				if found := p.probe(path.Join(dir, m, req)); found != "" {
					return found
				}
			}
			if dir == "/" || dir == "." || dir == path.Dir(dir) {
				break
			}
		}
	}
	return ""
}

func isRelative(req string) bool {
	return req == "." || req == ".." || strings.HasPrefix(req, "./") || strings.HasPrefix(req, "../")
}

// prober records every candidate for error reports.
type prober struct {
	r        *Resolver
	searched []string
}

func (p *prober) probe(target string) string {
	if found := p.file(target); found != "" {
		return found
	}
	return p.dir(target)
}

func (p *prober) file(target string) string {
	if p.isFile(target) {
		return target
	}
	for _, ext := range p.r.opts.Extensions {
		if c := target + ext; p.isFile(c) {
			return c
		}
	}
	return ""
}

func (p *prober) dir(target string) string {
	if !p.r.fs.IsDir(target) {
		return ""
	}
	if pkg, ok := p.r.readPackage(target); ok {
		for _, field := range p.r.opts.MainFields {
			entry := pkg.field(field)
			if entry == "" {
				continue
			}
			main := path.Join(target, entry)
			if found := p.file(main); found != "" {
				return found
			}
			if found := p.index(main); found != "" {
				return found
			}
		}
	}
	return p.index(target)
}

func (p *prober) index(dir string) string {
	for _, name := range p.r.opts.MainFiles {
		for _, ext := range p.r.opts.Extensions {
			if c := path.Join(dir, name+ext); p.isFile(c) {
				return c
			}
		}
	}
	return ""
}

func (p *prober) isFile(c string) bool {
	p.searched = append(p.searched, c)
	return p.r.fs.Exists(c) && !p.r.fs.IsDir(c)
}

type packageJSON map[string]json.RawMessage

func (pkg packageJSON) field(name string) string {
	raw, ok := pkg[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (r *Resolver) readPackage(dir string) (packageJSON, bool) {
	if pkg, ok := r.pkgs.Get(dir); ok {
		return pkg, pkg != nil
	}
	var pkg packageJSON
	data, err := r.fs.ReadFile(path.Join(dir, "package.json"))
	if err == nil {
		if jerr := json.Unmarshal(data, &pkg); jerr != nil {
			pkg = nil
		}
	}
	r.pkgs.Add(dir, pkg)
	return pkg, pkg != nil
}
