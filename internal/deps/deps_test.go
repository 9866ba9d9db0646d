package deps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func specs(res *Result) []string {
	out := make([]string, 0, len(res.Deps))
	for _, d := range res.Deps {
		out = append(out, d.Kind.String()+":"+d.Specifier)
	}
	return out
}

func TestExtractCommonJS(t *testing.T) {
	src := []byte(`const util = require("./util");
const other = require('../other.js');
function f() { return require(` + "`./lazy`" + `); }
require(name);
`)
	res, err := Extract(context.Background(), src)
	require.NoError(t, err)
	require.False(t, res.ESM)
	require.Equal(t, []string{"static:./util", "static:../other.js", "static:./lazy"}, specs(res))

	d := res.Deps[0]
	require.Equal(t, `"./util"`, string(src[d.Span.Start:d.Span.End]))
}

func TestExtractDynamicImport(t *testing.T) {
	src := []byte(`button.onclick = () => import("./page").then(m => m.render());`)
	res, err := Extract(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, []string{"dynamic:./page"}, specs(res))

	d := res.Deps[0]
	require.Equal(t, `import("./page")`, string(src[d.Call.Start:d.Call.End]))
	require.Equal(t, `"./page"`, string(src[d.Span.Start:d.Span.End]))
}

func TestExtractESM(t *testing.T) {
	src := []byte(`import a from "./a";
import "./side-effect.css";
export { b } from "./b";
export * from "./c";
export const x = 1;
`)
	res, err := Extract(context.Background(), src)
	require.NoError(t, err)
	require.True(t, res.ESM)
	require.Equal(t, []string{"static:./a", "static:./side-effect.css", "static:./b", "static:./c"}, specs(res))
}

func TestExtractIgnoresTemplateSubstitutions(t *testing.T) {
	src := []byte("const m = require(`./locale/${lang}`);\nconst n = import(`./x/${y}`);\n")
	res, err := Extract(context.Background(), src)
	require.NoError(t, err)
	require.Empty(t, res.Deps)
}

func TestExtractFlagsSyntaxErrors(t *testing.T) {
	res, err := Extract(context.Background(), []byte(`const = require("./a");`))
	require.NoError(t, err)
	require.True(t, res.SyntaxError)
}

func TestUnescape(t *testing.T) {
	require.Equal(t, `./a"b`, unescape(`./a\"b`))
	require.Equal(t, "./plain", unescape("./plain"))
}

func TestExtractAfterCancelledCallers(t *testing.T) {
	src := []byte("require(\"./a\");\nimport(\"./b\");\n")
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		res, err := Extract(ctx, src)
		cancel()
		require.NoError(t, err, "extract %d", i)
		require.Equal(t, []string{"static:./a", "dynamic:./b"}, specs(res))
	}
}
