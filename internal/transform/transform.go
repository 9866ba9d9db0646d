// Package transform defines the content transform and linter contracts the
// loader pipeline drives, and ships the built-in implementations:
//
//	esbuild  JS/JSX/TS to CommonJS, CSS lowering
//	style    CSS to a JS module that injects a <style> tag
//	url      small files inlined as data URIs, larger ones emitted
//	file     files emitted under a hashed name, module exports the URL
//	json     JSON validated and exported
//	lint     tree-sitter checks (no-debugger, no-eval, no-console, no-empty-import)
//
// The loader refers to transforms by name only.
package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kiln/internal/diag"
	"kiln/internal/source"
)

// Transform rewrites module content. Implementations must be safe for
// concurrent use; per-call state lives in Context.
type Transform interface {
	Name() string
	Apply(tc *Context, in []byte) ([]byte, error)
}

// Linter inspects module content and reports findings through
// Context.Reporter. It never changes the content.
type Linter interface {
	Name() string
	Lint(tc *Context, in []byte) error
}

// Asset is an extra output file produced while transforming a module.
// Name is relative to the output directory.
type Asset struct {
	Name    string
	Content []byte
}

// Context carries everything a transform may need about the module being
// processed.
type Context struct {
	Ctx        context.Context
	ID         source.ModuleID
	Root       string
	Mode       string
	PublicPath string
	Options    Options
	Reporter   diag.Reporter

	mu     sync.Mutex
	assets []Asset
}

// EmitAsset schedules an output file.
func (tc *Context) EmitAsset(name string, content []byte) {
	tc.mu.Lock()
	tc.assets = append(tc.assets, Asset{Name: name, Content: content})
	tc.mu.Unlock()
}

// Assets returns the files emitted so far.
func (tc *Context) Assets() []Asset {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]Asset(nil), tc.assets...)
}

func (tc *Context) context() context.Context {
	if tc.Ctx == nil {
		return context.Background()
	}
	return tc.Ctx
}

func (tc *Context) reporter() diag.Reporter {
	if tc.Reporter == nil {
		return diag.NopReporter{}
	}
	return tc.Reporter
}

// Registry maps names to transforms and linters.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
	linters    map[string]Linter
}

func NewRegistry() *Registry {
	return &Registry{
		transforms: make(map[string]Transform),
		linters:    make(map[string]Linter),
	}
}

// Builtin returns a registry holding every built-in transform and linter.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Esbuild{})
	r.Register(Style{})
	r.Register(URL{})
	r.Register(File{})
	r.Register(JSON{})
	r.RegisterLinter(Lint{})
	return r
}

func (r *Registry) Register(t Transform) {
	r.mu.Lock()
	r.transforms[t.Name()] = t
	r.mu.Unlock()
}

func (r *Registry) RegisterLinter(l Linter) {
	r.mu.Lock()
	r.linters[l.Name()] = l
	r.mu.Unlock()
}

func (r *Registry) Transform(name string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	return t, ok
}

func (r *Registry) Linter(name string) (Linter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.linters[name]
	return l, ok
}

// Names lists registered transform and linter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.transforms)+len(r.linters))
	for n := range r.transforms {
		out = append(out, n)
	}
	for n := range r.linters {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Error wraps a failure inside one transform.
type Error struct {
	Transform string
	Span      source.Span
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Transform, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) DiagSpan() source.Span { return e.Span }
