package diagfmt

import (
	"encoding/json"
	"io"

	"kiln/internal/diag"
	"kiln/internal/source"
)

// LocationJSON представляет местоположение в модуле для JSON
type LocationJSON struct {
	Module    string `json:"module,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line,omitempty"`
	StartCol  uint32 `json:"start_col,omitempty"`
	EndLine   uint32 `json:"end_line,omitempty"`
	EndCol    uint32 `json:"end_col,omitempty"`
}

// NoteJSON представляет дополнительную заметку для JSON
type NoteJSON struct {
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

// DiagnosticJSON представляет диагностику в JSON формате
type DiagnosticJSON struct {
	Severity string       `json:"severity"`
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
	Notes    []NoteJSON   `json:"notes,omitempty"`
}

// DiagnosticsOutput представляет корневую структуру JSON вывода
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Errors      int              `json:"errors"`
	Warnings    int              `json:"warnings"`
}

func makeLocation(id source.ModuleID, chunk string, span source.Span, files *fileCache, opts JSONOpts) LocationJSON {
	loc := LocationJSON{
		Module:    formatPath(id, opts.Root, opts.PathMode),
		Chunk:     chunk,
		StartByte: span.Start,
		EndByte:   span.End,
	}
	if !opts.IncludePositions || id == "" || span.IsZero() {
		return loc
	}
	if f := files.get(id); f != nil && int(span.End) <= len(f.content) {
		start, end := f.lines.Position(span.Start), f.lines.Position(span.End)
		loc.StartLine, loc.StartCol = start.Line, start.Col
		loc.EndLine, loc.EndCol = end.Line, end.Col
	}
	return loc
}

// BuildDiagnosticsOutput формирует структуру JSON-вывода без сериализации.
func BuildDiagnosticsOutput(report *diag.Report, fsys source.FS, opts JSONOpts) DiagnosticsOutput {
	files := newFileCache(fsys)
	items := report.Diagnostics()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}

	diagnostics := make([]DiagnosticJSON, 0, len(items))
	for _, d := range items {
		dj := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Message:  d.Message,
			Location: makeLocation(d.Module, d.Chunk, d.Primary, files, opts),
		}
		if opts.IncludeNotes && len(d.Notes) > 0 {
			dj.Notes = make([]NoteJSON, len(d.Notes))
			for j, note := range d.Notes {
				dj.Notes[j] = NoteJSON{
					Message:  note.Msg,
					Location: makeLocation(note.Module, "", note.Span, files, opts),
				}
			}
		}
		diagnostics = append(diagnostics, dj)
	}

	return DiagnosticsOutput{
		Diagnostics: diagnostics,
		Count:       len(diagnostics),
		Errors:      report.ErrorCount(),
		Warnings:    report.WarningCount(),
	}
}

// JSON выводит диагностики отчёта в JSON формате.
func JSON(w io.Writer, report *diag.Report, fsys source.FS, opts JSONOpts) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildDiagnosticsOutput(report, fsys, opts))
}
