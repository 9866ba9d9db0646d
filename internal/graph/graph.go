// Package graph builds and incrementally patches the module graph reachable
// from the configured entries.
package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/resolve"
	"kiln/internal/source"
	"kiln/internal/trace"
)

// Loader produces a record with unresolved dependencies.
type Loader interface {
	Load(ctx context.Context, id source.ModuleID) (*Record, error)
}

// Resolver maps a specifier seen in fromDir to a module.
type Resolver interface {
	Resolve(specifier, fromDir string) (source.ModuleID, error)
}

type Options struct {
	Root        string
	Loader      Loader
	Resolver    Resolver
	FS          source.FS
	Concurrency int
}

// Graph owns the module records. Build and Patch are serialised by a single
// writer lock; readers take a Snapshot.
type Graph struct {
	opts  Options
	write sync.Mutex
	cur   atomic.Pointer[Snapshot]
}

func New(opts Options) *Graph {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	g := &Graph{opts: opts}
	g.cur.Store(emptySnapshot(opts.Root))
	return g
}

// Snapshot returns the current stable view.
func (g *Graph) Snapshot() *Snapshot { return g.cur.Load() }

// Build discards the current graph and loads everything reachable from
// entries. Module failures are collected in the report; the error is
// non-nil only when ctx is cancelled.
func (g *Graph) Build(ctx context.Context, entries []config.Entry) (*diag.Report, error) {
	g.write.Lock()
	defer g.write.Unlock()

	span, ctx := trace.Start(ctx, trace.ScopeStage, "graph.build")
	defer span.End("")

	report := diag.NewReport()
	roots := make([]Entry, 0, len(entries))
	for _, e := range entries {
		id, err := g.opts.Resolver.Resolve(e.Path, g.opts.Root)
		if err != nil {
			report.ModuleError(source.NewModuleID(e.Path, ""), &EntryError{Name: e.Name, Err: err})
			continue
		}
		roots = append(roots, Entry{Name: e.Name, ID: id})
	}

	w := &writer{
		g:       g,
		report:  report,
		records: make(map[source.ModuleID]*Record),
		failed:  make(map[source.ModuleID]error),
		seen:    make(map[source.ModuleID]bool),
	}
	var frontier []source.ModuleID
	for _, e := range roots {
		frontier = w.enqueue(frontier, e.ID)
	}
	if err := w.run(ctx, frontier); err != nil {
		return report, err
	}

	g.cur.Store(newSnapshot(g.opts.Root, roots, w.records, w.failed))
	span.WithExtra("modules", fmt.Sprint(len(w.records)))
	return report, nil
}

// Patch reloads the modules in changed whose content digest differs from the
// stored one, together with all their transitive dependents, then loads any
// newly referenced modules and prunes the ones no entry reaches any more.
// A module that fails to reload keeps its previous record. The returned set
// lists every module that was reloaded or newly loaded, sorted.
func (g *Graph) Patch(ctx context.Context, changed []source.ModuleID) ([]source.ModuleID, *diag.Report, error) {
	g.write.Lock()
	defer g.write.Unlock()

	span, ctx := trace.Start(ctx, trace.ScopeStage, "graph.patch")
	defer span.End("")

	prev := g.cur.Load()
	report := diag.NewReport()

	var dirty []source.ModuleID
	unknown := false
	for _, id := range changed {
		rec, live := prev.records[id]
		_, failed := prev.failed[id]
		switch {
		case live:
			if g.contentChanged(rec) {
				dirty = append(dirty, id)
			}
		case failed:
			dirty = append(dirty, id)
		default:
			unknown = true
		}
	}
	if unknown {
		// a new file may satisfy a specifier that failed to resolve before
		for _, rec := range prev.records {
			if slices.Contains(rec.Resolved, "") {
				dirty = append(dirty, rec.ID)
			}
		}
	}
	if len(dirty) == 0 {
		return nil, report, nil
	}
	dirty = append(dirty, prev.TransitiveDependents(dirty...)...)
	slices.Sort(dirty)
	dirty = slices.Compact(dirty)

	w := &writer{
		g:        g,
		report:   report,
		records:  maps.Clone(prev.records),
		failed:   maps.Clone(prev.failed),
		seen:     make(map[source.ModuleID]bool, len(prev.records)),
		previous: prev.records,
	}
	for id := range w.records {
		w.seen[id] = true
	}
	for id := range w.failed {
		w.seen[id] = true
	}
	for _, id := range dirty {
		w.seen[id] = true
	}
	if err := w.run(ctx, dirty); err != nil {
		return nil, report, err
	}

	next := newSnapshot(g.opts.Root, prev.entries, w.records, w.failed)
	next = next.pruned()
	g.cur.Store(next)

	affected := slices.Sorted(maps.Keys(w.loaded))
	span.WithExtra("affected", fmt.Sprint(len(affected)))
	return affected, report, nil
}

func (g *Graph) contentChanged(rec *Record) bool {
	if g.opts.FS == nil {
		return true
	}
	raw, err := g.opts.FS.ReadFile(rec.ID.Path())
	if err != nil {
		return true
	}
	raw, _ = source.RemoveBOM(raw)
	return source.Sum(raw) != rec.RawHash
}

// pruned drops records and failures no entry reaches.
func (s *Snapshot) pruned() *Snapshot {
	reach := make(map[source.ModuleID]bool, len(s.records))
	var queue []source.ModuleID
	for _, e := range s.entries {
		if !reach[e.ID] {
			reach[e.ID] = true
			queue = append(queue, e.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		for _, to := range rec.Targets() {
			if !reach[to] {
				reach[to] = true
				queue = append(queue, to)
			}
		}
	}
	stale := false
	for id := range s.records {
		stale = stale || !reach[id]
	}
	for id := range s.failed {
		stale = stale || !reach[id]
	}
	if !stale {
		return s
	}
	records := make(map[source.ModuleID]*Record, len(reach))
	failed := make(map[source.ModuleID]error)
	for id, r := range s.records {
		if reach[id] {
			records[id] = r
		}
	}
	for id, err := range s.failed {
		if reach[id] {
			failed[id] = err
		}
	}
	return newSnapshot(s.Root, s.entries, records, failed)
}

// EntryError reports an entry whose path does not resolve.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

func (e *EntryError) DiagCode() diag.Code { return diag.GrfEntryMissing }

// writer is the single goroutine that mutates the record map while workers
// load one frontier at a time.
type writer struct {
	g        *Graph
	report   *diag.Report
	records  map[source.ModuleID]*Record
	failed   map[source.ModuleID]error
	seen     map[source.ModuleID]bool
	previous map[source.ModuleID]*Record
	loaded   map[source.ModuleID]bool
}

type loadResult struct {
	rec         *Record
	err         error
	resolveErrs []error
}

func (w *writer) enqueue(frontier []source.ModuleID, id source.ModuleID) []source.ModuleID {
	if w.seen[id] {
		return frontier
	}
	w.seen[id] = true
	return append(frontier, id)
}

func (w *writer) run(ctx context.Context, frontier []source.ModuleID) error {
	if w.loaded == nil {
		w.loaded = make(map[source.ModuleID]bool)
	}
	for len(frontier) > 0 {
		slices.Sort(frontier)
		results, err := w.loadFrontier(ctx, frontier)
		if err != nil {
			return err
		}

		var next []source.ModuleID
		for i, id := range frontier {
			res := results[i]
			w.loaded[id] = true
			if res.err != nil {
				w.report.ModuleError(id, res.err)
				if _, had := w.previous[id]; !had {
					w.failed[id] = res.err
				}
				// the previous record, if any, stays live
				continue
			}
			delete(w.failed, id)
			w.records[id] = res.rec
			for _, d := range res.rec.Warnings {
				w.report.Add(d)
			}
			for _, rerr := range res.resolveErrs {
				w.report.ModuleError(id, rerr)
			}
			for _, to := range res.rec.Targets() {
				next = w.enqueue(next, to)
			}
		}
		frontier = next
	}
	return nil
}

// loadFrontier loads and resolves a frontier in a bounded worker pool.
func (w *writer) loadFrontier(ctx context.Context, frontier []source.ModuleID) ([]loadResult, error) {
	// индексы уникальны для каждой горутины, мьютекс не нужен
	results := make([]loadResult, len(frontier))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(min(w.g.opts.Concurrency, len(frontier)))
	for i, id := range frontier {
		eg.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rec, err := w.g.opts.Loader.Load(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				results[i] = loadResult{err: err}
				return nil
			}
			results[i] = loadResult{rec: rec, resolveErrs: w.g.resolveDeps(rec)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveDeps fills rec.Resolved. Failed specifiers stay empty.
func (g *Graph) resolveDeps(rec *Record) []error {
	if len(rec.Resolved) != len(rec.Deps) {
		rec.Resolved = make([]source.ModuleID, len(rec.Deps))
	}
	var errs []error
	dir := rec.ID.Dir()
	for i, d := range rec.Deps {
		id, err := g.opts.Resolver.Resolve(d.Specifier, dir)
		if err != nil {
			var rerr *resolve.Error
			if errors.As(err, &rerr) && rerr.Span.IsZero() {
				rerr.Span = d.Span
			}
			errs = append(errs, err)
			continue
		}
		rec.Resolved[i] = id
	}
	return errs
}
