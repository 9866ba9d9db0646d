package transform

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"kiln/internal/diag"
	"kiln/internal/source"
)

func newContext(id string, opts Options) (*Context, *diag.Bag) {
	bag := diag.NewBag(0)
	return &Context{
		Ctx:        context.Background(),
		ID:         source.ParseModuleID(id),
		Root:       "/proj",
		Mode:       "development",
		PublicPath: "/",
		Options:    opts,
		Reporter:   diag.BagReporter{Bag: bag},
	}, bag
}

func TestBuiltinRegistry(t *testing.T) {
	r := Builtin()
	require.Equal(t, []string{"esbuild", "file", "json", "lint", "style", "url"}, r.Names())
	_, ok := r.Transform("esbuild")
	require.True(t, ok)
	_, ok = r.Linter("lint")
	require.True(t, ok)
	_, ok = r.Transform("lint")
	require.False(t, ok)
}

func TestEsbuildConvertsToCommonJS(t *testing.T) {
	tc, _ := newContext("/proj/src/index.js", nil)
	out, err := Esbuild{}.Apply(tc, []byte(`import a from "./a";
export default a + 1;
export const later = () => import("./page");
`))
	require.NoError(t, err)
	code := string(out)
	require.Contains(t, code, `require("./a")`)
	require.Contains(t, code, `import("./page")`)
	require.Contains(t, code, "module.exports")
	require.NotContains(t, code, "export default")
}

func TestEsbuildReportsSyntaxErrors(t *testing.T) {
	tc, _ := newContext("/proj/src/bad.js", nil)
	_, err := Esbuild{}.Apply(tc, []byte("const = ;"))
	require.Error(t, err)
}

func TestEsbuildRejectsUnknownOptions(t *testing.T) {
	tc, _ := newContext("/proj/src/a.js", Options{"target": "es1999"})
	_, err := Esbuild{}.Apply(tc, []byte("1"))
	require.ErrorContains(t, err, "unknown target")

	tc, _ = newContext("/proj/src/a.png", nil)
	_, err = Esbuild{}.Apply(tc, []byte("x"))
	require.ErrorContains(t, err, "no esbuild loader")
}

func TestEsbuildLowersCSS(t *testing.T) {
	tc, _ := newContext("/proj/src/app.css", Options{"engines": []any{"chrome58"}})
	out, err := Esbuild{}.Apply(tc, []byte("a { color: red }"))
	require.NoError(t, err)
	require.Contains(t, string(out), "color: red")
}

func TestStyleRequiresImportsAndURLs(t *testing.T) {
	tc, _ := newContext("/proj/src/app.css", nil)
	out, err := Style{}.Apply(tc, []byte(`@import "./base.css";
@import url(~normalize.css/normalize.css);
.logo { background: url(img/logo.png) no-repeat; }
.remote { background: url("https://example.com/x.png"); }
.root { background: url(/static/bg.png); }
`))
	require.NoError(t, err)
	code := string(out)
	require.Contains(t, code, `require("./base.css");`)
	require.Contains(t, code, `require("normalize.css/normalize.css");`)
	require.Contains(t, code, `require("./img/logo.png")`)
	require.Contains(t, code, "https://example.com/x.png")
	require.Contains(t, code, "/static/bg.png")
	require.NotContains(t, code, "@import")
	require.Contains(t, code, `document.createElement("style")`)
}

func TestStyleInlineQuerySkipsInjection(t *testing.T) {
	tc, _ := newContext("/proj/src/app.css?inline", nil)
	out, err := Style{}.Apply(tc, []byte("a{color:red}"))
	require.NoError(t, err)
	require.Contains(t, string(out), "module.exports = css;")
	require.NotContains(t, string(out), "document")
}

func TestURLInlinesSmallFiles(t *testing.T) {
	tc, _ := newContext("/proj/src/dot.png", Options{"limit": int64(100)})
	content := []byte{0x89, 'P', 'N', 'G'}
	out, err := URL{}.Apply(tc, content)
	require.NoError(t, err)
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(content)
	require.Equal(t, "module.exports = \""+want+"\";\n", string(out))
	require.Empty(t, tc.Assets())
}

func TestURLFallsBackToFile(t *testing.T) {
	tc, _ := newContext("/proj/src/big.png", Options{"limit": 2, "name": "static/assets/[name].[hash:8].[ext]"})
	content := []byte("0123456789")
	out, err := URL{}.Apply(tc, content)
	require.NoError(t, err)

	assets := tc.Assets()
	require.Len(t, assets, 1)
	name := "static/assets/big." + source.Sum(content).Short(8) + ".png"
	require.Equal(t, name, assets[0].Name)
	require.Equal(t, content, assets[0].Content)
	require.Equal(t, "module.exports = \"/"+name+"\";\n", string(out))
}

func TestFileRejectsBadTemplate(t *testing.T) {
	tc, _ := newContext("/proj/src/font.woff", Options{"name": "[name].[chunkhash]"})
	_, err := File{}.Apply(tc, []byte("x"))
	require.Error(t, err)
}

func TestJSON(t *testing.T) {
	tc, _ := newContext("/proj/src/data.json", nil)
	out, err := JSON{}.Apply(tc, []byte("{\n  \"a\": [1, 2]\n}\n"))
	require.NoError(t, err)
	require.Equal(t, "module.exports = {\"a\":[1,2]};\n", string(out))

	_, err = JSON{}.Apply(tc, []byte("{\n  \"a\": ,\n}"))
	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Contains(t, err.Error(), "invalid JSON at 2:8")
	require.Equal(t, source.Span{Start: 9, End: 10}, terr.Span)

	_, err = JSON{}.Apply(tc, []byte("  \n"))
	require.Error(t, err)
}

func TestLintFindings(t *testing.T) {
	tc, bag := newContext("/proj/src/index.js", Options{"no-console": "warn", "no-eval": "error"})
	src := []byte(`debugger;
eval("1+1");
console.log("hi");
require("");
`)
	require.NoError(t, Lint{}.Lint(tc, src))

	bag.Sort()
	codes := make([]diag.Code, 0, bag.Len())
	for _, d := range bag.Items() {
		codes = append(codes, d.Code)
	}
	require.ElementsMatch(t, []diag.Code{diag.LntNoDebugger, diag.LntNoEval, diag.LntNoConsole, diag.LntNoEmptyImport}, codes)

	for _, d := range bag.Items() {
		switch d.Code {
		case diag.LntNoEval, diag.LntNoEmptyImport:
			require.Equal(t, diag.SevError, d.Severity)
		default:
			require.Equal(t, diag.SevWarning, d.Severity)
		}
		if d.Code == diag.LntNoDebugger {
			require.Equal(t, "debugger;", string(src[d.Primary.Start:d.Primary.End]))
		}
	}
}

func TestLintOffAndBadLevel(t *testing.T) {
	tc, bag := newContext("/proj/src/index.js", Options{"no-debugger": "off"})
	require.NoError(t, Lint{}.Lint(tc, []byte("debugger;")))
	require.Zero(t, bag.Len())

	tc, _ = newContext("/proj/src/index.js", Options{"no-eval": "loud"})
	require.Error(t, Lint{}.Lint(tc, []byte("1")))
}

func TestOptions(t *testing.T) {
	o := Options{"a": int64(3), "b": "7", "c": true, "d": []any{"x", "y"}, "e": "p,q"}
	require.Equal(t, 3, o.Int("a", 0))
	require.Equal(t, 7, o.Int("b", 0))
	require.Equal(t, 9, o.Int("missing", 9))
	require.True(t, o.Bool("c", false))
	require.Equal(t, []string{"x", "y"}, o.Strings("d"))
	require.Equal(t, []string{"p", "q"}, o.Strings("e"))

	same := Options{"e": "p,q", "d": []any{"x", "y"}, "c": true, "b": "7", "a": int64(3)}
	require.Equal(t, o.Fingerprint(), same.Fingerprint())
	require.NotEqual(t, o.Fingerprint(), Options{"a": int64(4)}.Fingerprint())
}

func TestJSString(t *testing.T) {
	require.Equal(t, `"a\"b\n"`, JSString("a\"b\n"))
	require.Equal(t, `"\u2028\u2029"`, JSString("  "))
}
