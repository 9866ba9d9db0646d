package chunk

import (
	"bytes"
	"strings"
)

const defaultPage = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>kiln</title>
  </head>
  <body>
    <div id="root"></div>
  </body>
</html>
`

// injectScripts adds a script tag per src before the closing body tag, or
// at the end of the page when there is none.
func injectScripts(page []byte, srcs []string) []byte {
	var tags strings.Builder
	for _, src := range srcs {
		tags.WriteString(`<script src="`)
		tags.WriteString(htmlAttr(src))
		tags.WriteString(`"></script>`)
		tags.WriteByte('\n')
	}
	at := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if at < 0 {
		out := bytes.Clone(page)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		return append(out, tags.String()...)
	}
	out := make([]byte, 0, len(page)+tags.Len())
	out = append(out, page[:at]...)
	out = append(out, tags.String()...)
	return append(out, page[at:]...)
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

func htmlAttr(s string) string { return attrEscaper.Replace(s) }
