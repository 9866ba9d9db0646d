package transform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Style turns a stylesheet into a JavaScript module. @import rules become
// require calls, relative url() references are required so the asset
// transforms can rewrite them, and the CSS is injected into document.head
// unless the module is imported with "?inline" or option inject = false.
type Style struct{}

func (Style) Name() string { return "style" }

type cssToken struct {
	tt   css.TokenType
	text string
}

func (Style) Apply(tc *Context, in []byte) ([]byte, error) {
	tokens, err := lexCSS(in)
	if err != nil {
		return nil, err
	}

	var (
		imports []string
		parts   []string // JS expressions concatenated into the stylesheet
		lit     strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, JSString(lit.String()))
			lit.Reset()
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.tt == css.AtKeywordToken && strings.EqualFold(tok.text, "@import"):
			spec, end := importTarget(tokens, i+1)
			if spec == "" {
				lit.WriteString(tok.text)
				continue
			}
			imports = append(imports, requestFor(spec))
			i = end
		case tok.tt == css.URLToken:
			target := urlValue(tok.text)
			if !isModuleURL(target) {
				lit.WriteString(tok.text)
				continue
			}
			lit.WriteString("url(")
			flush()
			parts = append(parts, "require("+JSString(requestFor(target))+")")
			lit.WriteString(")")
		case tok.tt == css.FunctionToken && strings.EqualFold(tok.text, "url("):
			j := skipSpace(tokens, i+1)
			if j < len(tokens) && tokens[j].tt == css.StringToken {
				target := unquote(tokens[j].text)
				k := skipSpace(tokens, j+1)
				if isModuleURL(target) && k < len(tokens) && tokens[k].tt == css.RightParenthesisToken {
					lit.WriteString("url(")
					flush()
					parts = append(parts, "require("+JSString(requestFor(target))+")")
					lit.WriteString(")")
					i = k
					continue
				}
			}
			lit.WriteString(tok.text)
		default:
			lit.WriteString(tok.text)
		}
	}
	flush()

	inject := tc.Options.Bool("inject", true) && tc.ID.Query() != "inline"

	var b bytes.Buffer
	for _, spec := range imports {
		fmt.Fprintf(&b, "require(%s);\n", JSString(spec))
	}
	if len(parts) == 0 {
		parts = append(parts, `""`)
	}
	fmt.Fprintf(&b, "var css = [%s].join(\"\");\n", strings.Join(parts, ", "))
	b.WriteString("module.exports = css;\n")
	if inject {
		key := JSString(tc.ID.Key(tc.Root))
		fmt.Fprintf(&b, `if (typeof document !== "undefined") {
  var el = document.querySelector("style[data-kiln=" + JSON.stringify(%s) + "]");
  if (!el) {
    el = document.createElement("style");
    el.setAttribute("data-kiln", %s);
    document.head.appendChild(el);
  }
  el.textContent = css;
}
`, key, key)
	}
	return b.Bytes(), nil
}

func lexCSS(in []byte) ([]cssToken, error) {
	l := css.NewLexer(parse.NewInputBytes(in))
	var out []cssToken
	for {
		tt, text := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("css: %w", err)
			}
			return out, nil
		}
		out = append(out, cssToken{tt: tt, text: string(text)})
	}
}

// importTarget reads the target of an @import starting at i and returns the
// index of the terminating semicolon.
func importTarget(tokens []cssToken, i int) (string, int) {
	i = skipSpace(tokens, i)
	if i >= len(tokens) {
		return "", i
	}
	var spec string
	switch tokens[i].tt {
	case css.StringToken:
		spec = unquote(tokens[i].text)
	case css.URLToken:
		spec = urlValue(tokens[i].text)
	case css.FunctionToken:
		if strings.EqualFold(tokens[i].text, "url(") {
			j := skipSpace(tokens, i+1)
			if j < len(tokens) && tokens[j].tt == css.StringToken {
				spec = unquote(tokens[j].text)
			}
		}
	}
	if spec == "" || !isModuleURL(spec) {
		return "", i
	}
	for j := i; j < len(tokens); j++ {
		if tokens[j].tt == css.SemicolonToken {
			return spec, j
		}
	}
	return spec, len(tokens) - 1
}

func skipSpace(tokens []cssToken, i int) int {
	for i < len(tokens) && (tokens[i].tt == css.WhitespaceToken || tokens[i].tt == css.CommentToken) {
		i++
	}
	return i
}

func urlValue(tok string) string {
	inner := tok
	if len(inner) >= 4 && strings.EqualFold(inner[:4], "url(") {
		inner = inner[4:]
	}
	inner = strings.TrimSuffix(inner, ")")
	return unquote(strings.TrimSpace(inner))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// isModuleURL reports whether a url() target refers to a file the bundle
// should own rather than an external or root-absolute resource.
func isModuleURL(u string) bool {
	if u == "" || strings.HasPrefix(u, "/") || strings.HasPrefix(u, "#") {
		return false
	}
	lower := strings.ToLower(u)
	for _, scheme := range []string{"data:", "http:", "https:", "about:", "blob:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

// requestFor converts a CSS reference into a module request: "a.png" is
// relative to the stylesheet and "~pkg/a.css" names a package.
func requestFor(u string) string {
	if rest, ok := strings.CutPrefix(u, "~"); ok {
		return rest
	}
	if strings.HasPrefix(u, "./") || strings.HasPrefix(u, "../") {
		return u
	}
	return "./" + u
}
