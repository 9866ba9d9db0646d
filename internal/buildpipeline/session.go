// Package buildpipeline wires resolver, loader, graph and emitter into one
// build session that the CLI and the watch controller drive.
package buildpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"kiln/internal/cache"
	"kiln/internal/chunk"
	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/graph"
	"kiln/internal/loader"
	"kiln/internal/resolve"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/transform"
	"kiln/internal/watch"
)

// Result is the outcome of one build or rebuild.
type Result struct {
	Report  *diag.Report
	Emit    *chunk.Result
	Timings Timings
	Modules int
	// Full is set when the whole graph was rebuilt.
	Full bool
	// Skipped is set when emitting was suppressed by NoEmitOnErrors.
	Skipped bool
	// Static lists changed files that are not modules: the HTML template
	// and files under the content base.
	Static []string
}

// Option tweaks a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	src  afero.Fs
	out  afero.Fs
	sink ProgressSink
	disk bool
}

// WithFS sets the source filesystem; the host filesystem by default.
func WithFS(fsys afero.Fs) Option {
	return func(o *sessionOptions) { o.src = fsys }
}

// WithOutput sets the filesystem rooted at the output directory.
func WithOutput(fsys afero.Fs) Option {
	return func(o *sessionOptions) { o.out = fsys }
}

// WithSink reports progress events to sink.
func WithSink(sink ProgressSink) Option {
	return func(o *sessionOptions) { o.sink = sink }
}

// WithoutDiskCache keeps transformed output in memory only.
func WithoutDiskCache() Option {
	return func(o *sessionOptions) { o.disk = false }
}

// Session owns the long-lived state of a project: the resolver memo, the
// transform cache, the module graph and what the emitter wrote last. It
// implements watch.Builder.
type Session struct {
	cfg     *config.Config
	src     afero.Fs
	sink    ProgressSink
	res     *resolve.Resolver
	graph   *graph.Graph
	emitter *chunk.Emitter
	disk    *cache.Disk

	mu   sync.Mutex
	last *Result
}

var _ watch.Builder = (*Session)(nil)

// NewSession builds every component from cfg.
func NewSession(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	o := sessionOptions{disk: !cfg.Cache.Disabled}
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		o.src = afero.NewOsFs()
	}
	if o.out == nil {
		o.out = afero.NewBasePathFs(afero.NewOsFs(), cfg.Output.Dir)
	}
	log := zerolog.Ctx(ctx)

	fsys := source.NewFS(o.src)
	res, err := resolve.New(fsys, cfg.Resolve)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	mem, err := cache.NewMemory(0)
	if err != nil {
		return nil, err
	}
	var disk *cache.Disk
	if o.disk {
		dir := cfg.Cache.Dir
		if dir == "" {
			dir, err = cache.DefaultDir("kiln")
		}
		if err == nil {
			disk, err = cache.OpenDisk(dir)
		}
		if err != nil {
			log.Warn().Err(err).Msg("disk cache disabled")
			disk = nil
		}
	}
	pipe, err := loader.New(fsys, cfg, transform.Builtin(), loader.WithCache(cache.NewStore(ctx, mem, disk)))
	if err != nil {
		if disk != nil {
			_ = disk.Close()
		}
		return nil, err
	}
	return &Session{
		cfg:  cfg,
		src:  o.src,
		sink: o.sink,
		res:  res,
		graph: graph.New(graph.Options{
			Root:        cfg.Root,
			Loader:      pipe,
			Resolver:    res,
			FS:          fsys,
			Concurrency: cfg.Concurrency,
		}),
		emitter: chunk.NewEmitter(chunk.Options{Output: cfg.Output, Out: o.out, Src: fsys}),
		disk:    disk,
	}, nil
}

// Close releases the disk cache.
func (s *Session) Close() error {
	if s.disk != nil {
		return s.disk.Close()
	}
	return nil
}

func (s *Session) Config() *config.Config { return s.cfg }

// Snapshot is the current module graph.
func (s *Session) Snapshot() *graph.Snapshot { return s.graph.Snapshot() }

// Last returns the result of the most recent build, or nil.
func (s *Session) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) entryNames() []string {
	names := make([]string, len(s.cfg.Entries))
	for i, e := range s.cfg.Entries {
		names[i] = e.Name
	}
	return names
}

// Build discards all incremental state and builds every entry from scratch.
func (s *Session) Build(ctx context.Context) (*watch.Outcome, error) {
	res, err := s.BuildResult(ctx)
	if err != nil {
		return nil, err
	}
	return s.outcome(res), nil
}

// BuildResult is Build returning the detailed result.
func (s *Session) BuildResult(ctx context.Context) (*Result, error) {
	span, ctx := trace.Start(ctx, trace.ScopeStage, "pipeline.build")
	defer span.End("")

	entries := s.entryNames()
	emitQueued(s.sink, entries)
	res := &Result{Report: diag.NewReport(), Full: true}

	s.res.Purge()
	emitStage(s.sink, entries, Event{Stage: StageGraph, Status: StatusWorking})
	start := time.Now()
	report, err := s.graph.Build(ctx, s.cfg.Entries)
	res.Timings.Set(StageGraph, since(start))
	res.Report.Merge(report)
	if err != nil {
		emitStage(s.sink, entries, Event{Stage: StageGraph, Status: StatusError, Err: err})
		return nil, err
	}
	res.Modules = s.graph.Snapshot().Len()
	emitStage(s.sink, entries, s.stageDone(StageGraph, report, res))

	if err := s.emit(ctx, nil, res, entries); err != nil {
		return nil, err
	}
	s.finish(res)
	return res, nil
}

// LoadGraph builds the module graph without emitting anything. Import
// cycles are legal but reported here as warnings.
func (s *Session) LoadGraph(ctx context.Context) (*graph.Snapshot, *diag.Report, error) {
	s.res.Purge()
	report, err := s.graph.Build(ctx, s.cfg.Entries)
	if err != nil {
		return nil, report, err
	}
	snap := s.graph.Snapshot()
	cycles := diag.NewBag(0)
	snap.ReportCycles(diag.BagReporter{Bag: cycles})
	for _, d := range cycles.Items() {
		report.Add(d)
	}
	return snap, report, nil
}

// Rebuild applies a batch of file changes incrementally. A missing entry
// forces a full build since its module may exist now.
func (s *Session) Rebuild(ctx context.Context, changes []watch.Event) (*watch.Outcome, error) {
	res, err := s.RebuildResult(ctx, changes)
	if err != nil {
		return nil, err
	}
	return s.outcome(res), nil
}

// RebuildResult is Rebuild returning the detailed result.
func (s *Session) RebuildResult(ctx context.Context, changes []watch.Event) (*Result, error) {
	prev := s.graph.Snapshot()
	if len(prev.Entries()) < len(s.cfg.Entries) {
		return s.BuildResult(ctx)
	}

	span, ctx := trace.Start(ctx, trace.ScopeStage, "pipeline.rebuild")
	defer span.End("")

	res := &Result{Report: diag.NewReport()}
	var modules []watch.Event
	structural := false
	for _, ev := range changes {
		if s.isStatic(ev.Path) {
			res.Static = append(res.Static, ev.Path)
			continue
		}
		modules = append(modules, ev)
		if ev.Op != watch.OpWrite {
			structural = true
		}
	}
	if structural {
		// created or removed files change what specifiers resolve to
		s.res.Purge()
	}

	entries := s.entryNames()
	emitStage(s.sink, entries, Event{Stage: StagePatch, Status: StatusWorking})
	start := time.Now()
	_, report, err := s.graph.Patch(ctx, changedIDs(prev, modules))
	res.Timings.Set(StagePatch, since(start))
	res.Report.Merge(report)
	if err != nil {
		emitStage(s.sink, entries, Event{Stage: StagePatch, Status: StatusError, Err: err})
		return nil, err
	}
	next := s.graph.Snapshot()
	res.Modules = next.Len()
	emitStage(s.sink, entries, s.stageDone(StagePatch, report, res))

	dirty := next.ChangedSince(prev)
	if dirty == nil {
		dirty = []source.ModuleID{}
	}
	if err := s.emit(ctx, dirty, res, entries); err != nil {
		return nil, err
	}
	s.finish(res)
	return res, nil
}

func (s *Session) emit(ctx context.Context, dirty []source.ModuleID, res *Result, entries []string) error {
	if s.cfg.Output.NoEmitOnErrors && res.Report.HasErrors() {
		res.Skipped = true
		zerolog.Ctx(ctx).Warn().Int("errors", res.Report.ErrorCount()).Msg("emit skipped")
		return nil
	}
	emitStage(s.sink, entries, Event{Stage: StageEmit, Status: StatusWorking})
	start := time.Now()
	out, err := s.emitter.Emit(ctx, s.graph.Snapshot(), dirty)
	res.Timings.Set(StageEmit, since(start))
	if err != nil {
		emitStage(s.sink, entries, Event{Stage: StageEmit, Status: StatusError, Err: err})
		return err
	}
	res.Emit = out
	res.Report.Merge(out.Report)
	emitStage(s.sink, entries, s.stageDone(StageEmit, out.Report, res))
	return nil
}

func (s *Session) stageDone(stage Stage, report *diag.Report, res *Result) Event {
	ev := Event{Stage: stage, Status: StatusDone, Elapsed: res.Timings.Duration(stage), Modules: res.Modules}
	if report != nil && report.HasErrors() {
		ev.Status = StatusError
		ev.Err = report.Errors()[0]
	}
	return ev
}

func (s *Session) finish(res *Result) {
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
}

func (s *Session) outcome(res *Result) *watch.Outcome {
	out := &watch.Outcome{Report: res.Report, Paths: s.graph.Snapshot().Paths(), Dirs: s.contentDirs()}
	if tmpl := s.cfg.Output.HTMLTemplate; tmpl != "" {
		out.Paths = append(out.Paths, tmpl)
	}
	if res.Emit != nil {
		out.Chunks = res.Emit.Updated
		out.Files = append(out.Files, res.Emit.Pages...)
	}
	out.Files = append(out.Files, res.Static...)
	return out
}

// isStatic reports whether p is the HTML template or lies under the
// content base. Neither is part of the module graph.
func (s *Session) isStatic(p string) bool {
	if p == s.cfg.Output.HTMLTemplate {
		return true
	}
	base := s.cfg.Dev.ContentBase
	return base != "" && strings.HasPrefix(p, strings.TrimSuffix(base, "/")+"/")
}

// contentDirs lists the content base and every directory below it.
func (s *Session) contentDirs() []string {
	base := s.cfg.Dev.ContentBase
	if base == "" {
		return nil
	}
	var dirs []string
	_ = afero.Walk(s.src, base, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return filepath.SkipDir
		}
		if fi.IsDir() {
			dirs = append(dirs, filepath.ToSlash(p))
		}
		return nil
	})
	return dirs
}

// changedIDs maps changed paths to the module ids the graph knows them by.
// A path the graph has never seen is passed through so Patch can retry
// unresolved specifiers.
func changedIDs(snap *graph.Snapshot, changes []watch.Event) []source.ModuleID {
	byPath := make(map[string][]source.ModuleID)
	for _, id := range append(snap.IDs(), snap.Failed()...) {
		byPath[id.Path()] = append(byPath[id.Path()], id)
	}
	var out []source.ModuleID
	for _, ev := range changes {
		if ids, ok := byPath[ev.Path]; ok {
			out = append(out, ids...)
			continue
		}
		out = append(out, source.NewModuleID(ev.Path, ""))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
