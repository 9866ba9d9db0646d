package buildpipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"kiln/internal/config"
	"kiln/internal/source"
	"kiln/internal/watch"
)

type fixture struct {
	src afero.Fs
	out afero.Fs
	s   *Session
}

func newFixture(t *testing.T, files map[string]string, mutate func(*config.Config), opts ...Option) *fixture {
	t.Helper()
	src := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(src, p, []byte(content), 0o644))
	}
	cfg, err := config.New("/proj", config.Entry{Name: "app", Path: "src/index.js"})
	require.NoError(t, err)
	cfg.Rules = nil
	cfg.Output.Manifest = ""
	if mutate != nil {
		mutate(cfg)
	}
	out := afero.NewMemMapFs()
	opts = append([]Option{WithFS(src), WithOutput(out), WithoutDiskCache()}, opts...)
	s, err := NewSession(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{src: src, out: out, s: s}
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	b, err := afero.ReadFile(f.out, name)
	require.NoError(t, err)
	return string(b)
}

func TestBuildWritesBundle(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": "require(\"./util\");\n",
		"/proj/src/util.js":  "module.exports = 1;\n",
	}, nil)

	out, err := f.s.Build(context.Background())
	require.NoError(t, err)
	require.False(t, out.Report.HasErrors())
	require.Equal(t, []string{"app"}, out.Chunks)
	require.Equal(t, []string{"/proj/src/index.js", "/proj/src/util.js"}, out.Paths)
	require.Contains(t, f.read(t, "/static/js/bundle.js"), "module.exports = 1;")

	last := f.s.Last()
	require.True(t, last.Full)
	require.Equal(t, 2, last.Modules)
	require.True(t, last.Timings.Has(StageGraph))
	require.True(t, last.Timings.Has(StageEmit))
	require.False(t, last.Timings.Has(StagePatch))
}

func TestRebuildAppliesEdits(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": "require(\"./util\");\n",
		"/proj/src/util.js":  "module.exports = 1;\n",
	}, nil)
	_, err := f.s.Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(f.src, "/proj/src/util.js", []byte("module.exports = 2;\n"), 0o644))
	out, err := f.s.Rebuild(context.Background(), []watch.Event{{Path: "/proj/src/util.js", Op: watch.OpWrite}})
	require.NoError(t, err)
	require.False(t, out.Report.HasErrors())
	require.Equal(t, []string{"app"}, out.Chunks)
	require.Contains(t, f.read(t, "/static/js/bundle.js"), "module.exports = 2;")
	require.False(t, f.s.Last().Full)
	require.True(t, f.s.Last().Timings.Has(StagePatch))

	// an unchanged save writes nothing
	out, err = f.s.Rebuild(context.Background(), []watch.Event{{Path: "/proj/src/util.js", Op: watch.OpWrite}})
	require.NoError(t, err)
	require.Empty(t, out.Chunks)
}

func TestRebuildPicksUpCreatedFile(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": "require(\"./late\");\n",
	}, nil)
	out, err := f.s.Build(context.Background())
	require.NoError(t, err)
	require.True(t, out.Report.HasErrors())

	require.NoError(t, afero.WriteFile(f.src, "/proj/src/late.js", []byte("module.exports = 'late';\n"), 0o644))
	out, err = f.s.Rebuild(context.Background(), []watch.Event{{Path: "/proj/src/late.js", Op: watch.OpCreate}})
	require.NoError(t, err)
	require.False(t, out.Report.HasErrors(), out.Report.Diagnostics())
	require.Contains(t, out.Paths, "/proj/src/late.js")
	require.Contains(t, f.read(t, "/static/js/bundle.js"), "'late'")
}

func TestMissingEntryForcesFullBuild(t *testing.T) {
	f := newFixture(t, nil, nil)
	out, err := f.s.Build(context.Background())
	require.NoError(t, err)
	require.True(t, out.Report.HasErrors())

	require.NoError(t, afero.WriteFile(f.src, "/proj/src/index.js", []byte("1;\n"), 0o644))
	out, err = f.s.Rebuild(context.Background(), []watch.Event{{Path: "/proj/src/index.js", Op: watch.OpCreate}})
	require.NoError(t, err)
	require.False(t, out.Report.HasErrors())
	require.True(t, f.s.Last().Full)
	require.Equal(t, []string{"app"}, out.Chunks)
}

func TestNoEmitOnErrorsSkipsWriting(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": "require(\"./missing\");\n",
	}, func(c *config.Config) { c.Output.NoEmitOnErrors = true })

	out, err := f.s.Build(context.Background())
	require.NoError(t, err)
	require.True(t, out.Report.HasErrors())
	require.Empty(t, out.Chunks)
	require.True(t, f.s.Last().Skipped)
	ok, err := afero.Exists(f.out, "/static/js/bundle.js")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProgressEvents(t *testing.T) {
	ch := make(chan Event, 64)
	f := newFixture(t, map[string]string{"/proj/src/index.js": "1;\n"}, nil, WithSink(ChannelSink{Ch: ch}))
	_, err := f.s.Build(context.Background())
	require.NoError(t, err)
	close(ch)

	var entryEvents []Event
	for ev := range ch {
		if ev.Entry == "app" {
			entryEvents = append(entryEvents, ev)
		}
	}
	require.NotEmpty(t, entryEvents)
	require.Equal(t, StatusQueued, entryEvents[0].Status)
	last := entryEvents[len(entryEvents)-1]
	require.Equal(t, StageEmit, last.Stage)
	require.Equal(t, StatusDone, last.Status)
	require.Equal(t, 1, last.Modules)
}

func TestChangedIDsMapsPaths(t *testing.T) {
	f := newFixture(t, map[string]string{"/proj/src/index.js": "1;\n"}, nil)
	_, err := f.s.Build(context.Background())
	require.NoError(t, err)

	got := changedIDs(f.s.Snapshot(), []watch.Event{
		{Path: "/proj/src/index.js", Op: watch.OpWrite},
		{Path: "/proj/src/other.js", Op: watch.OpCreate},
		{Path: "/proj/src/index.js", Op: watch.OpWrite},
	})
	require.Equal(t, []source.ModuleID{"/proj/src/index.js", "/proj/src/other.js"}, got)
}

func TestTimingsSum(t *testing.T) {
	var tm Timings
	require.False(t, tm.Has(StageGraph))
	tm.Set(StageGraph, 2)
	tm.Set(StageEmit, 3)
	require.Equal(t, int64(5), int64(tm.Sum(Stages...)))
}

func TestLoadGraphDoesNotEmit(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": "require(\"./util\");\n",
		"/proj/src/util.js":  "module.exports = 1;\n",
	}, nil)
	snap, report, err := f.s.LoadGraph(context.Background())
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	require.Equal(t, 2, snap.Len())
	ok, err := afero.Exists(f.out, "/static/js/bundle.js")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadGraphWarnsAboutCycles(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js": "require(\"./a\");\n",
		"/proj/src/a.js":     "module.exports = () => require(\"./index\");\n",
	}, nil)
	_, report, err := f.s.LoadGraph(context.Background())
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	require.Equal(t, 2, report.WarningCount())
}

func TestRepeatedBuildsStayClean(t *testing.T) {
	files := map[string]string{}
	var requires strings.Builder
	for i := 0; i < 16; i++ {
		requires.WriteString(fmt.Sprintf("require(\"./m%d\");\n", i))
		files[fmt.Sprintf("/proj/src/m%d.js", i)] = fmt.Sprintf("module.exports = %d;\n", i)
	}
	files["/proj/src/index.js"] = requires.String()
	f := newFixture(t, files, nil)

	for n := 0; n < 30; n++ {
		require.NoError(t, afero.WriteFile(f.src, "/proj/src/m0.js", []byte(fmt.Sprintf("module.exports = %d;\n", 100+n)), 0o644))
		out, err := f.s.Build(context.Background())
		require.NoError(t, err)
		require.False(t, out.Report.HasErrors(), "build %d: %v", n, out.Report.Diagnostics())
		require.Len(t, out.Paths, 17)
	}
}

func TestTemplateAndContentBaseAreWatched(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/proj/src/index.js":      "1;\n",
		"/proj/public/index.html": "<html><body><p>one</p></body></html>",
		"/proj/public/img/a.png":  "png",
	}, func(c *config.Config) { c.Output.HTMLTemplate = "/proj/public/index.html" })

	out, err := f.s.Build(context.Background())
	require.NoError(t, err)
	require.Contains(t, out.Paths, "/proj/public/index.html")
	require.Equal(t, []string{"/proj/public", "/proj/public/img"}, out.Dirs)
	require.Equal(t, []string{"index.html"}, out.Files)

	require.NoError(t, afero.WriteFile(f.src, "/proj/public/index.html", []byte("<html><body><p>two</p></body></html>"), 0o644))
	out, err = f.s.Rebuild(context.Background(), []watch.Event{{Path: "/proj/public/index.html", Op: watch.OpWrite}})
	require.NoError(t, err)
	require.False(t, out.Report.HasErrors())
	require.Empty(t, out.Chunks)
	require.Equal(t, []string{"index.html", "/proj/public/index.html"}, out.Files)
	require.Contains(t, f.read(t, "/index.html"), "<p>two</p>")

	out, err = f.s.Rebuild(context.Background(), []watch.Event{{Path: "/proj/public/img/a.png", Op: watch.OpWrite}})
	require.NoError(t, err)
	require.Empty(t, out.Chunks)
	require.Equal(t, []string{"/proj/public/img/a.png"}, out.Files)
}
