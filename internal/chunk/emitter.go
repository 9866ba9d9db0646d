package chunk

import (
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/graph"
	"kiln/internal/naming"
	"kiln/internal/source"
	"kiln/internal/trace"
)

type Options struct {
	Output config.Output
	// Out is rooted at the output directory.
	Out afero.Fs
	// Src reads the HTML template.
	Src source.FS
}

// Emitter writes chunks, assets, the HTML page and the manifest. It keeps
// what it wrote last so incremental emits only touch changed files.
type Emitter struct {
	opts Options

	mu      sync.Mutex
	written map[string]output
	assets  map[string]source.Digest
	extra   map[string]source.Digest
}

// output is what was last written for a chunk. code is the digest of the
// rendered bytes, which also cover the file names of other chunks.
type output struct {
	file string
	hash source.Digest
	code source.Digest
}

func NewEmitter(opts Options) *Emitter {
	return &Emitter{
		opts:    opts,
		written: make(map[string]output),
		assets:  make(map[string]source.Digest),
		extra:   make(map[string]source.Digest),
	}
}

// Result describes one emit.
type Result struct {
	Chunks []*Chunk
	// Updated lists the chunks written by this emit, in plan order.
	Updated []string
	// Removed lists stale output files deleted by this emit.
	Removed []string
	Assets  []string
	// Pages lists the HTML pages written by this emit.
	Pages  []string
	Report *diag.Report
}

// Chunk returns the chunk called name.
func (r *Result) Chunk(name string) (*Chunk, bool) {
	for _, c := range r.Chunks {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Emit partitions snap and writes what changed. A nil dirty set means a full
// build: the output directory is cleaned when configured and everything is
// written. Per-chunk failures land in the report; the error is non-nil only
// when ctx is cancelled or the output directory cannot be cleaned.
func (e *Emitter) Emit(ctx context.Context, snap *graph.Snapshot, dirty []source.ModuleID) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	span, ctx := trace.Start(ctx, trace.ScopeStage, "emit")
	defer span.End("")
	log := zerolog.Ctx(ctx)

	out := e.opts.Output
	full := dirty == nil
	report := diag.NewReport()
	res := &Result{Report: report}

	plan := NewPlan(snap, Policy{Hoist: out.Hoist, MinShare: out.MinShare})
	res.Chunks = plan.Chunks

	// pass one hashes content with chunk names standing in for file names
	r := &renderer{snap: snap, plan: plan, publicPath: out.PublicPath, files: func(name string) string { return name }}
	for _, c := range plan.Chunks {
		c.Hash = source.Sum(r.render(c))
	}

	failed := make(map[string]bool)
	owner := make(map[string]string, len(plan.Chunks))
	for _, c := range plan.Chunks {
		tmpl := out.ChunkFilename
		if c.Kind == KindEntry {
			tmpl = out.Filename
		}
		file, err := naming.Expand(tmpl, naming.Vars{Name: c.Name, Ext: ".js", ContentHash: c.Hash})
		if err != nil {
			report.ChunkError(c.Name, &EmitError{Chunk: c.Name, Op: OpNaming, Err: err})
			failed[c.Name] = true
			continue
		}
		if other, taken := owner[file]; taken {
			report.ChunkError(c.Name, &EmitError{Chunk: c.Name, Op: OpCollision, Err: fmt.Errorf("%w: %s (%s)", ErrCollision, file, other)})
			failed[c.Name] = true
			continue
		}
		owner[file] = c.Name
		c.File = file
	}

	files := func(name string) string {
		if c, ok := plan.Chunk(name); ok && c.File != "" {
			return c.File
		}
		return name
	}
	r.files = files
	for _, c := range plan.Chunks {
		c.Code = r.render(c)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if full {
		if out.Clean {
			if err := cleanDir(e.opts.Out); err != nil {
				return nil, fmt.Errorf("clean output directory: %w", err)
			}
		}
		clear(e.written)
		clear(e.assets)
		clear(e.extra)
	}

	// drop files of chunks that are gone or were renamed
	live := make(map[string]bool, len(plan.Chunks))
	for _, c := range plan.Chunks {
		if c.File != "" {
			live[c.File] = true
		}
	}
	for _, name := range sortedKeys(e.written) {
		w := e.written[name]
		if live[w.file] {
			continue
		}
		if err := e.opts.Out.Remove(path.Join("/", w.file)); err == nil {
			res.Removed = append(res.Removed, w.file)
		}
		delete(e.written, name)
	}

	dirtySet := make(map[source.ModuleID]bool, len(dirty))
	for _, id := range dirty {
		dirtySet[id] = true
	}
	var total int
	for _, c := range plan.Chunks {
		if failed[c.Name] {
			continue
		}
		prev, had := e.written[c.Name]
		code := source.Sum(c.Code)
		need := !had || prev.hash != c.Hash || prev.file != c.File || prev.code != code ||
			slices.ContainsFunc(c.Modules, func(id source.ModuleID) bool { return dirtySet[id] })
		if !need {
			continue
		}
		if err := writeFile(e.opts.Out, c.File, c.Code); err != nil {
			report.ChunkError(c.Name, &EmitError{Chunk: c.Name, Op: OpWrite, Err: err})
			continue
		}
		total += len(c.Code)
		e.written[c.Name] = output{file: c.File, hash: c.Hash, code: code}
		res.Updated = append(res.Updated, c.Name)
		log.Debug().Str("chunk", c.Name).Str("file", c.File).Str("size", humanize.Bytes(uint64(len(c.Code)))).Msg("chunk written")
	}

	e.emitAssets(snap, res, full)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.emitPage(snap, plan, res, full)
	e.emitManifest(snap, plan, res)

	span.WithExtra("chunks", fmt.Sprint(len(plan.Chunks))).WithExtra("updated", fmt.Sprint(len(res.Updated)))
	log.Debug().Int("chunks", len(plan.Chunks)).Int("updated", len(res.Updated)).Str("bytes", humanize.Bytes(uint64(total))).Msg("emit done")
	return res, nil
}

func (e *Emitter) emitAssets(snap *graph.Snapshot, res *Result, full bool) {
	for _, rec := range snap.Records() {
		for _, a := range rec.Assets {
			sum := source.Sum(a.Content)
			if prev, ok := e.assets[a.Name]; ok && prev == sum && !full {
				continue
			}
			if err := writeFile(e.opts.Out, a.Name, a.Content); err != nil {
				res.Report.ChunkError(a.Name, &EmitError{Chunk: a.Name, Op: OpAsset, Err: err})
				continue
			}
			e.assets[a.Name] = sum
			res.Assets = append(res.Assets, a.Name)
		}
	}
}

// entryFiles lists the entry chunk files in entry order.
func entryFiles(snap *graph.Snapshot, plan *Plan) []string {
	var out []string
	for _, entry := range snap.Entries() {
		if c, ok := plan.Chunk(entry.Name); ok && c.File != "" {
			out = append(out, c.File)
		}
	}
	return out
}

func (e *Emitter) emitPage(snap *graph.Snapshot, plan *Plan, res *Result, full bool) {
	out := e.opts.Output
	if out.HTMLFilename == "" {
		return
	}
	page := []byte(defaultPage)
	if out.HTMLTemplate != "" {
		tmpl, err := e.opts.Src.ReadFile(out.HTMLTemplate)
		if err != nil {
			res.Report.ChunkError(out.HTMLFilename, &EmitError{Chunk: out.HTMLFilename, Op: OpHTML, Err: err})
			return
		}
		page = tmpl
	}
	var srcs []string
	for _, f := range entryFiles(snap, plan) {
		srcs = append(srcs, publicURL(out.PublicPath, f))
	}
	if e.writeExtra(out.HTMLFilename, injectScripts(page, srcs), OpHTML, res, full) {
		res.Pages = append(res.Pages, out.HTMLFilename)
	}
}

func (e *Emitter) emitManifest(snap *graph.Snapshot, plan *Plan, res *Result) {
	out := e.opts.Output
	if out.Manifest == "" {
		return
	}
	m := &Manifest{Files: make(map[string]string)}
	for _, c := range plan.Chunks {
		if c.File != "" {
			m.Files[c.Name+".js"] = publicURL(out.PublicPath, c.File)
		}
	}
	for name := range e.assets {
		m.Files[name] = publicURL(out.PublicPath, name)
	}
	if out.HTMLFilename != "" {
		m.Files[out.HTMLFilename] = publicURL(out.PublicPath, out.HTMLFilename)
	}
	m.Entrypoints = entryFiles(snap, plan)
	data, err := m.encode()
	if err != nil {
		res.Report.ChunkError(out.Manifest, &EmitError{Chunk: out.Manifest, Op: OpWrite, Err: err})
		return
	}
	e.writeExtra(out.Manifest, data, OpWrite, res, false)
}

// writeExtra writes data unless it matches what was written last, and
// reports whether it wrote.
func (e *Emitter) writeExtra(name string, data []byte, op Op, res *Result, full bool) bool {
	sum := source.Sum(data)
	if prev, ok := e.extra[name]; ok && prev == sum && !full {
		return false
	}
	if err := writeFile(e.opts.Out, name, data); err != nil {
		res.Report.ChunkError(name, &EmitError{Chunk: name, Op: op, Err: err})
		return false
	}
	e.extra[name] = sum
	return true
}

func writeFile(fsys afero.Fs, name string, data []byte) error {
	p := path.Join("/", name)
	if err := fsys.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fsys, p, data, 0o644)
}

// cleanDir empties the output directory without removing it.
func cleanDir(fsys afero.Fs) error {
	entries, err := afero.ReadDir(fsys, "/")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, fi := range entries {
		if err := fsys.RemoveAll(path.Join("/", fi.Name())); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
