package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"fortio.org/safecast"
	"github.com/fatih/color"

	"kiln/internal/diag"
	"kiln/internal/source"
)

type palette struct {
	err, warn, info, code, path, gutter, caret *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		info:   color.New(color.FgCyan, color.Bold),
		code:   color.New(color.Faint),
		path:   color.New(color.Bold),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.path, p.gutter, p.caret} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty форматирует диагностики отчёта в человекочитаемый вид.
// Для каждой диагностики печатает
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем строку исходника с подчёркиванием ^~~~ по Span, затем Notes.
// Позиции и контекст берутся из fsys; при nil печатается только заголовок.
func Pretty(w io.Writer, report *diag.Report, fsys source.FS, opts PrettyOpts) {
	p := newPalette(opts.Color)
	files := newFileCache(fsys)

	items := report.Diagnostics()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}
	for _, d := range items {
		sev := p.severity(d.Severity)
		subject := subjectOf(d.Module, d.Chunk, d.Primary, files, opts)
		if subject != "" {
			fmt.Fprintf(w, "%s: ", p.path.Sprint(subject))
		}
		fmt.Fprintf(w, "%s %s: %s\n", sev.Sprint(d.Severity.String()), p.code.Sprint(d.Code.ID()), d.Message)

		if d.Module != "" && !d.Primary.IsZero() {
			if f := files.get(d.Module); f != nil {
				writeContext(w, f, d.Primary, opts.Context, p)
			}
		}
		if opts.ShowNotes {
			for _, n := range d.Notes {
				where := subjectOf(n.Module, "", n.Span, files, opts)
				if where != "" {
					where += ": "
				}
				fmt.Fprintf(w, "  %s %s%s\n", p.info.Sprint("note:"), where, n.Msg)
			}
		}
	}
}

func subjectOf(id source.ModuleID, chunk string, sp source.Span, files *fileCache, opts PrettyOpts) string {
	if id == "" {
		if chunk != "" {
			return "chunk " + chunk
		}
		return ""
	}
	out := formatPath(id, opts.Root, opts.PathMode)
	if sp.IsZero() {
		return out
	}
	if f := files.get(id); f != nil && int(sp.Start) <= len(f.content) {
		out += ":" + f.lines.Position(sp.Start).String()
	}
	return out
}

func writeContext(w io.Writer, f *file, sp source.Span, context int8, p palette) {
	size, err := safecast.Conv[uint32](len(f.content))
	if err != nil || sp.Start > size {
		return
	}
	start := f.lines.Position(sp.Start)
	first := start.Line
	if context > 0 {
		before, err := safecast.Conv[uint32](context)
		if err == nil && before < first {
			first -= before
		} else {
			first = 1
		}
	}
	width := len(fmt.Sprint(start.Line))
	for ln := first; ln <= start.Line; ln++ {
		fmt.Fprintf(w, " %s %s\n", p.gutter.Sprintf("%*d |", width, ln), f.line(ln))
	}

	text := f.line(start.Line)
	col := int(start.Col) - 1
	col = min(col, len(text))
	span := int(min(sp.End, size)) - int(sp.Start)
	span = max(min(span, len(text)-col), 1)
	marker := "^" + strings.Repeat("~", span-1)
	pad := strings.Map(func(r rune) rune {
		if r == '\t' {
			return '\t'
		}
		return ' '
	}, text[:col])
	fmt.Fprintf(w, " %s %s%s\n", p.gutter.Sprintf("%*s |", width, ""), pad, p.caret.Sprint(marker))
}

type file struct {
	content []byte
	lines   source.LineIndex
}

// line returns the 1-based line ln without its newline.
func (f *file) line(ln uint32) string {
	var start uint32
	if ln > 1 {
		if int(ln-2) >= len(f.lines) {
			return ""
		}
		start = f.lines[ln-2] + 1
	}
	end := uint32(len(f.content))
	if int(ln-1) < len(f.lines) {
		end = f.lines[ln-1]
	}
	return strings.TrimSuffix(string(f.content[start:end]), "\r")
}

type fileCache struct {
	fsys  source.FS
	files map[string]*file
}

func newFileCache(fsys source.FS) *fileCache {
	return &fileCache{fsys: fsys, files: make(map[string]*file)}
}

func (c *fileCache) get(id source.ModuleID) *file {
	if c.fsys == nil {
		return nil
	}
	p := id.Path()
	if f, ok := c.files[p]; ok {
		return f
	}
	raw, err := c.fsys.ReadFile(p)
	var f *file
	if err == nil {
		raw, _ = source.RemoveBOM(raw)
		f = &file{content: raw, lines: source.NewLineIndex(raw)}
	}
	c.files[p] = f
	return f
}
