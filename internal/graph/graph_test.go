package graph_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/graph"
	"kiln/internal/loader"
	"kiln/internal/resolve"
	"kiln/internal/source"
	"kiln/internal/transform"
)

type countingLoader struct {
	inner  graph.Loader
	mu     sync.Mutex
	counts map[source.ModuleID]int
}

func (c *countingLoader) Load(ctx context.Context, id source.ModuleID) (*graph.Record, error) {
	c.mu.Lock()
	c.counts[id]++
	c.mu.Unlock()
	return c.inner.Load(ctx, id)
}

func (c *countingLoader) reset() {
	c.mu.Lock()
	c.counts = make(map[source.ModuleID]int)
	c.mu.Unlock()
}

type fixture struct {
	fs     afero.Fs
	cfg    *config.Config
	graph  *graph.Graph
	loads  *countingLoader
	report *diag.Report
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	mem := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(mem, p, []byte(content), 0o644))
	}
	fsys := source.NewFS(mem)
	cfg, err := config.New("/proj", config.Entry{Name: "app", Path: "src/index.js"})
	require.NoError(t, err)

	res, err := resolve.New(fsys, cfg.Resolve)
	require.NoError(t, err)
	pipe, err := loader.New(fsys, cfg, transform.Builtin())
	require.NoError(t, err)
	loads := &countingLoader{inner: pipe, counts: map[source.ModuleID]int{}}

	g := graph.New(graph.Options{Root: cfg.Root, Loader: loads, Resolver: res, FS: fsys, Concurrency: 4})
	report, err := g.Build(context.Background(), cfg.Entries)
	require.NoError(t, err)
	return &fixture{fs: mem, cfg: cfg, graph: g, loads: loads, report: report}
}

func (f *fixture) write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, p, []byte(content), 0o644))
}

func ids(s ...string) []source.ModuleID {
	out := make([]source.ModuleID, len(s))
	for i, p := range s {
		out[i] = source.ModuleID(p)
	}
	return out
}

func TestBuildResolvesReachableModules(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": `const util = require("./util.js"); util();`,
		"/proj/src/util.js":  `module.exports = () => 1;`,
		"/proj/src/other.js": `module.exports = 2;`,
	})
	require.False(t, f.report.HasErrors(), f.report.Diagnostics())

	snap := f.graph.Snapshot()
	require.Equal(t, ids("/proj/src/index.js", "/proj/src/util.js"), snap.IDs())
	require.Equal(t, []graph.Entry{{Name: "app", ID: "/proj/src/index.js"}}, snap.Entries())

	index, ok := snap.Record("/proj/src/index.js")
	require.True(t, ok)
	require.Equal(t, ids("/proj/src/util.js"), index.Resolved)
	require.Equal(t, ids("/proj/src/index.js"), snap.Dependents("/proj/src/util.js"))
	require.Equal(t, []string{"/proj/src/index.js", "/proj/src/util.js"}, snap.Paths())
}

func TestBuildAcceptsImportCycles(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": `require("./a");`,
		"/proj/src/a.js":     `exports.b = () => require("./b");`,
		"/proj/src/b.js":     `exports.a = () => require("./a");`,
	})
	require.False(t, f.report.HasErrors())
	snap := f.graph.Snapshot()
	require.Equal(t, 3, snap.Len())
	require.Equal(t, [][]source.ModuleID{ids("/proj/src/a.js", "/proj/src/b.js")}, snap.Cycles())
	require.Equal(t, 1, f.loads.counts["/proj/src/a.js"])

	bag := diag.NewBag(0)
	snap.ReportCycles(diag.BagReporter{Bag: bag})
	require.Equal(t, 2, bag.Len())
	for _, d := range bag.Items() {
		require.Equal(t, diag.GrfImportCycle, d.Code)
		require.Equal(t, diag.SevWarning, d.Severity)
	}
}

func TestPatchReloadsChangedModuleAndDependentsOnly(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js":  `require("./a"); require("./b");`,
		"/proj/src/a.js":      `require("./c");`,
		"/proj/src/b.js":      `module.exports = "b";`,
		"/proj/src/c.js":      `module.exports = "c";`,
		"/proj/src/unused.js": `module.exports = 0;`,
	})
	f.loads.reset()

	f.write(t, "/proj/src/c.js", `module.exports = "c2";`)
	affected, report, err := f.graph.Patch(context.Background(), ids("/proj/src/c.js", "/proj/src/b.js"))
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	require.Equal(t, ids("/proj/src/a.js", "/proj/src/c.js", "/proj/src/index.js"), affected)

	require.Equal(t, map[source.ModuleID]int{
		"/proj/src/a.js":     1,
		"/proj/src/c.js":     1,
		"/proj/src/index.js": 1,
	}, f.loads.counts)

	rec, _ := f.graph.Snapshot().Record("/proj/src/c.js")
	require.Contains(t, string(rec.Code), "c2")
}

func TestPatchIgnoresUnchangedContent(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": `require("./a");`,
		"/proj/src/a.js":     `module.exports = 1;`,
	})
	f.loads.reset()

	f.write(t, "/proj/src/a.js", `module.exports = 1;`)
	affected, _, err := f.graph.Patch(context.Background(), ids("/proj/src/a.js"))
	require.NoError(t, err)
	require.Empty(t, affected)
	require.Empty(t, f.loads.counts)
}

func TestTransformErrorKeepsPreviousRecord(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js":  `require("./data.json");`,
		"/proj/src/data.json": `{"ok": true}`,
	})
	before, ok := f.graph.Snapshot().Record("/proj/src/data.json")
	require.True(t, ok)

	f.write(t, "/proj/src/data.json", `{"ok": }`)
	_, report, err := f.graph.Patch(context.Background(), ids("/proj/src/data.json"))
	require.NoError(t, err)

	errs := report.Errors()
	require.Len(t, errs, 1)
	var terr *loader.TransformError
	require.True(t, errors.As(errs[0], &terr))
	require.Equal(t, source.ModuleID("/proj/src/data.json"), terr.ID)
	require.Equal(t, source.ModuleID("/proj/src/data.json"), report.Diagnostics()[0].Module)

	after, ok := f.graph.Snapshot().Record("/proj/src/data.json")
	require.True(t, ok)
	require.Same(t, before, after)

	// fixing the file replaces the record
	f.write(t, "/proj/src/data.json", `{"ok": false}`)
	_, report, err = f.graph.Patch(context.Background(), ids("/proj/src/data.json"))
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	fixed, _ := f.graph.Snapshot().Record("/proj/src/data.json")
	require.Contains(t, string(fixed.Code), "false")
}

func TestPatchPrunesUnreachableModules(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": `require("./a");`,
		"/proj/src/a.js":     `require("./b");`,
		"/proj/src/b.js":     ``,
	})
	require.Equal(t, 3, f.graph.Snapshot().Len())

	f.write(t, "/proj/src/index.js", `module.exports = 1;`)
	_, _, err := f.graph.Patch(context.Background(), ids("/proj/src/index.js"))
	require.NoError(t, err)
	require.Equal(t, ids("/proj/src/index.js"), f.graph.Snapshot().IDs())
}

func TestUnresolvedSpecifierRetriedWhenFileAppears(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": `require("./later");`,
	})
	diags := f.report.Diagnostics()
	require.Len(t, diags, 1)
	require.Equal(t, diag.ResNotFound, diags[0].Code)
	index, _ := f.graph.Snapshot().Record("/proj/src/index.js")
	require.Equal(t, `"./later"`, string(index.Code[diags[0].Primary.Start:diags[0].Primary.End]))

	f.write(t, "/proj/src/later.js", `module.exports = 1;`)
	affected, report, err := f.graph.Patch(context.Background(), ids("/proj/src/later.js"))
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	require.Contains(t, affected, source.ModuleID("/proj/src/later.js"))
	require.Equal(t, 2, f.graph.Snapshot().Len())
}

func TestMissingEntryIsReported(t *testing.T) {
	f := newFixture(t, map[string]string{})
	diags := f.report.Diagnostics()
	require.Len(t, diags, 1)
	require.Equal(t, diag.GrfEntryMissing, diags[0].Code)
	require.Zero(t, f.graph.Snapshot().Len())
}
