package resolve

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/source"
)

func newResolver(t *testing.T, files map[string]string, mutate func(*config.Resolve)) (*Resolver, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(mem, p, []byte(content), 0o644))
	}
	opts := config.Default().Resolve
	opts.Modules = []string{"/proj/src", "node_modules"}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := New(source.NewFS(mem), opts)
	require.NoError(t, err)
	return r, mem
}

func TestResolveRelativeWithExtensions(t *testing.T) {
	r, _ := newResolver(t, map[string]string{
		"/proj/src/index.js":      "",
		"/proj/src/util.js":       "",
		"/proj/src/data.json":     "{}",
		"/proj/src/lib/index.mjs": "",
	}, nil)

	tests := []struct {
		spec string
		want source.ModuleID
	}{
		{"./util", "/proj/src/util.js"},
		{"./util.js", "/proj/src/util.js"},
		{"./data", "/proj/src/data.json"},
		{"./lib", "/proj/src/lib/index.mjs"},
		{"../src/util", "/proj/src/util.js"},
		{"/proj/src/util", "/proj/src/util.js"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.spec, "/proj/src")
		require.NoError(t, err, tt.spec)
		require.Equal(t, tt.want, got, tt.spec)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r, _ := newResolver(t, map[string]string{
		"/proj/src/util.js":  "",
		"/proj/src/util.mjs": "",
	}, nil)
	first, err := r.Resolve("./util", "/proj/src")
	require.NoError(t, err)
	for range 5 {
		again, err := r.Resolve("./util", "/proj/src")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	r.Purge()
	again, err := r.Resolve("./util", "/proj/src")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/src/util.js"), again)
}

func TestResolveBareSpecifiers(t *testing.T) {
	r, _ := newResolver(t, map[string]string{
		"/proj/src/components/button.js":           "",
		"/proj/node_modules/left-pad/package.json": `{"main": "lib/pad.js"}`,
		"/proj/node_modules/left-pad/lib/pad.js":   "",
		"/proj/node_modules/esm-only/package.json": `{"module": "dist/esm.js", "main": "dist/cjs.js"}`,
		"/proj/node_modules/esm-only/dist/esm.js":  "",
		"/proj/node_modules/esm-only/dist/cjs.js":  "",
		"/proj/node_modules/plain/index.js":        "",
	}, nil)

	got, err := r.Resolve("components/button", "/proj/src/pages")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/src/components/button.js"), got)

	got, err = r.Resolve("left-pad", "/proj/src/pages")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/node_modules/left-pad/lib/pad.js"), got)

	got, err = r.Resolve("esm-only", "/proj/src")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/node_modules/esm-only/dist/esm.js"), got)

	got, err = r.Resolve("plain", "/proj/src/a/b/c")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/node_modules/plain/index.js"), got)
}

func TestResolveAliasAndQuery(t *testing.T) {
	r, _ := newResolver(t, map[string]string{
		"/proj/src/theme/colors.css": "",
	}, func(o *config.Resolve) {
		o.Extensions = append(o.Extensions, ".css")
		o.Alias = map[string]string{"@": "/proj/src", "@theme": "/proj/src/theme"}
	})

	got, err := r.Resolve("@/theme/colors.css?inline", "/elsewhere")
	require.NoError(t, err)
	require.Equal(t, "/proj/src/theme/colors.css", got.Path())
	require.Equal(t, "inline", got.Query())

	got, err = r.Resolve("@theme/colors", "/elsewhere")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/src/theme/colors.css"), got)
}

func TestResolveNotFoundListsSearchedPaths(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"/proj/src/index.js": ""}, nil)

	_, err := r.Resolve("./missing", "/proj/src")
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "./missing", rerr.Specifier)
	require.Equal(t, "/proj/src", rerr.From)
	require.Equal(t, []string{
		"/proj/src/missing",
		"/proj/src/missing.js",
		"/proj/src/missing.mjs",
		"/proj/src/missing.json",
	}, rerr.Searched)
	require.Equal(t, diag.ResNotFound, diag.CodeOf(err))

	_, err = r.Resolve("", "/proj/src")
	require.Equal(t, diag.ResInvalidSpecifier, diag.CodeOf(err))
}

func TestResolveFailuresAreNotCached(t *testing.T) {
	r, mem := newResolver(t, map[string]string{"/proj/src/index.js": ""}, nil)
	_, err := r.Resolve("./late", "/proj/src")
	require.Error(t, err)

	require.NoError(t, afero.WriteFile(mem, "/proj/src/late.js", nil, 0o644))
	got, err := r.Resolve("./late", "/proj/src")
	require.NoError(t, err)
	require.Equal(t, source.ModuleID("/proj/src/late.js"), got)
}
