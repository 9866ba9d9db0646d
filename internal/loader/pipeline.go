// Package loader turns a module identifier into a graph record: it reads the
// file, runs the matching rules and extracts the dependencies of the result.
package loader

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"kiln/internal/cache"
	"kiln/internal/config"
	"kiln/internal/deps"
	"kiln/internal/diag"
	"kiln/internal/graph"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/transform"
)

// scriptExts pass through unchanged when no rule applies.
var scriptExts = []string{".js", ".mjs", ".cjs"}

// Cache stores loader output keyed by content and rule fingerprints.
type Cache interface {
	Get(key source.Digest) (*cache.Entry, bool)
	Put(key source.Digest, e *cache.Entry)
}

// Pipeline loads modules. It is safe for concurrent use.
type Pipeline struct {
	fs    source.FS
	cfg   *config.Config
	rules []Rule
	cache Cache
}

type Option func(*Pipeline)

// WithCache enables output caching.
func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// New compiles the rules of cfg against reg. Rules naming unknown transforms
// are rejected here rather than on first use.
func New(fsys source.FS, cfg *config.Config, reg *transform.Registry, opts ...Option) (*Pipeline, error) {
	rules, err := compileRules(cfg.Rules, reg)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{fs: fsys, cfg: cfg, rules: rules}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Rules returns the compiled rules in declaration order.
func (p *Pipeline) Rules() []Rule { return p.rules }

// Select returns the rules applying to id: at most one per category, lint
// first, the rest in declaration order.
func (p *Pipeline) Select(id source.ModuleID) []*Rule {
	rel := id.Rel(p.cfg.Root)
	var lint *Rule
	var out []*Rule
	taken := make(map[string]bool, len(config.Categories))
	for i := range p.rules {
		r := &p.rules[i]
		if taken[r.Category] || !r.Match(rel) {
			continue
		}
		taken[r.Category] = true
		if r.Category == config.CategoryLint {
			lint = r
			continue
		}
		out = append(out, r)
	}
	if lint != nil {
		out = append([]*Rule{lint}, out...)
	}
	return out
}

// Load reads id and runs it through its rules. The returned record has no
// resolved dependencies yet; the graph fills them in.
func (p *Pipeline) Load(ctx context.Context, id source.ModuleID) (_ *graph.Record, err error) {
	span, ctx := trace.Start(ctx, trace.ScopeModule, "module:"+id.Key(p.cfg.Root))
	defer func() { span.Fail(err).End("") }()

	raw, err := p.fs.ReadFile(id.Path())
	if err != nil {
		return nil, &LoadError{ID: id, Err: err}
	}
	raw, _ = source.RemoveBOM(raw)
	rawHash := source.Sum(raw)

	rules := p.Select(id)
	key := p.cacheKey(id, rawHash, rules)
	if p.cache != nil {
		if e, ok := p.cache.Get(key); ok {
			span.WithExtra("cache", "hit")
			return p.record(id, raw, rawHash, e), nil
		}
	}

	e, err := p.run(ctx, id, raw, rules)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Put(key, e)
	}
	return p.record(id, raw, rawHash, e), nil
}

func (p *Pipeline) record(id source.ModuleID, raw []byte, rawHash source.Digest, e *cache.Entry) *graph.Record {
	return &graph.Record{
		ID:       id,
		Raw:      raw,
		Code:     e.Code,
		Deps:     e.Deps,
		Resolved: make([]source.ModuleID, len(e.Deps)),
		RawHash:  rawHash,
		CodeHash: source.Sum(e.Code),
		Assets:   e.Assets,
		Warnings: e.Warnings,
		ESM:      e.ESM,
	}
}

func (p *Pipeline) cacheKey(id source.ModuleID, rawHash source.Digest, rules []*Rule) source.Digest {
	parts := [][]byte{rawHash[:], []byte(id), []byte(p.cfg.Mode), []byte(p.cfg.Output.PublicPath)}
	for _, r := range rules {
		parts = append(parts, r.fingerprint[:])
	}
	return source.Combine(parts...)
}

func (p *Pipeline) run(ctx context.Context, id source.ModuleID, raw []byte, rules []*Rule) (*cache.Entry, error) {
	bag := diag.NewBag(0)
	rep := diag.BagReporter{Bag: bag}
	code := raw
	var assets []transform.Asset
	transformed := false

	for _, r := range rules {
		if r.Category == config.CategoryLint {
			if err := p.lint(ctx, id, raw, r, bag); err != nil {
				return nil, err
			}
			continue
		}
		for _, st := range r.Chain {
			tc := p.context(ctx, id, st.Options, rep)
			tspan, _ := trace.Start(ctx, trace.ScopeTransform, st.Name)
			out, err := st.Transform.Apply(tc, code)
			tspan.Fail(err).End("")
			if err != nil {
				return nil, &TransformError{Rule: r.Index, Category: r.Category, Transform: st.Name, ID: id, Err: err}
			}
			code = out
			assets = append(assets, tc.Assets()...)
		}
		transformed = true
	}
	if !transformed && !slices.Contains(scriptExts, strings.ToLower(id.Ext())) {
		return nil, &TransformError{Rule: -1, ID: id, Err: ErrNoRule}
	}

	res, err := deps.Extract(ctx, code)
	if err != nil {
		return nil, &TransformError{Rule: -1, ID: id, Err: fmt.Errorf("dependency analysis: %w", err)}
	}
	if res.SyntaxError {
		diag.ReportWarning(rep, diag.LdrParseFailed, id, source.Span{}, "transformed output has syntax errors; dependencies may be incomplete").Emit()
	}
	if res.ESM {
		diag.ReportWarning(rep, diag.LdrESMSurvived, id, source.Span{}, "import/export declarations survived the transforms; add a script rule for this file").Emit()
	}

	bag.Sort()
	return &cache.Entry{
		Code:     code,
		Deps:     res.Deps,
		ESM:      res.ESM,
		Assets:   assets,
		Warnings: bag.Items(),
	}, nil
}

// lint runs r's linters on the raw content. Error findings become warnings
// unless the rule fails on error.
func (p *Pipeline) lint(ctx context.Context, id source.ModuleID, raw []byte, r *Rule, out *diag.Bag) error {
	findings := diag.NewBag(0)
	for _, st := range r.Chain {
		tc := p.context(ctx, id, st.Options, diag.BagReporter{Bag: findings})
		if err := st.Linter.Lint(tc, raw); err != nil {
			return &TransformError{Rule: r.Index, Category: r.Category, Transform: st.Name, ID: id, Err: err}
		}
	}
	if r.FailOnError && findings.HasErrors() {
		n := 0
		for _, d := range findings.Items() {
			if d.Severity >= diag.SevError {
				n++
			}
		}
		return &TransformError{Rule: r.Index, Category: r.Category, ID: id, Err: fmt.Errorf("%w: %d finding(s)", ErrLintFailed, n)}
	}
	for _, d := range findings.Items() {
		if d.Severity > diag.SevWarning {
			d.Severity = diag.SevWarning
		}
		out.Add(d)
	}
	return nil
}

func (p *Pipeline) context(ctx context.Context, id source.ModuleID, opts transform.Options, rep diag.Reporter) *transform.Context {
	return &transform.Context{
		Ctx:        ctx,
		ID:         id,
		Root:       p.cfg.Root,
		Mode:       p.cfg.Mode,
		PublicPath: p.cfg.Output.PublicPath,
		Options:    opts,
		Reporter:   rep,
	}
}
