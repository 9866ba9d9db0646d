package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"kiln/internal/diag"
	"kiln/internal/source"
)

// TestJSONBasic проверяет базовое JSON форматирование
func TestJSONBasic(t *testing.T) {
	fsys := testFS(t, map[string]string{"/home/user/project/src/app.js": appJS})

	var buf bytes.Buffer
	opts := JSONOpts{IncludePositions: true, PathMode: PathModeRelative, Root: "/home/user/project"}
	if err := JSON(&buf, missingReport(), fsys, opts); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("Invalid JSON output: %v\nOutput: %s", err, buf.String())
	}
	if output.Count != 1 || output.Errors != 1 || output.Warnings != 0 {
		t.Fatalf("unexpected counts: %+v", output)
	}

	d := output.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "RES1001" {
		t.Errorf("severity/code = %s/%s", d.Severity, d.Code)
	}
	want := LocationJSON{Module: "src/app.js", StartByte: 21, EndByte: 32, StartLine: 2, StartCol: 9, EndLine: 2, EndCol: 20}
	if d.Location != want {
		t.Errorf("location = %+v, want %+v", d.Location, want)
	}
}

func TestJSONWithoutPositions(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, missingReport(), nil, JSONOpts{PathMode: PathModeBasename}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	loc := output.Diagnostics[0].Location
	if loc.Module != "app.js" || loc.StartLine != 0 {
		t.Errorf("location = %+v", loc)
	}
}

func TestJSONChunkAndNotes(t *testing.T) {
	r := diag.NewReport()
	d := diag.NewError(diag.EmtNaming, "", source.Span{}, "unknown token [foo]").
		WithNote("/p/src/a.js", source.Span{Start: 1, End: 3}, "entry module")
	d.Chunk = "app"
	r.Add(d)

	out := BuildDiagnosticsOutput(r, nil, JSONOpts{PathMode: PathModeAbsolute, IncludeNotes: true})
	got := out.Diagnostics[0]
	if got.Location.Chunk != "app" || got.Location.Module != "" {
		t.Errorf("location = %+v", got.Location)
	}
	if len(got.Notes) != 1 || got.Notes[0].Location.Module != "/p/src/a.js" {
		t.Errorf("notes = %+v", got.Notes)
	}

	out = BuildDiagnosticsOutput(r, nil, JSONOpts{})
	if len(out.Diagnostics[0].Notes) != 0 {
		t.Errorf("notes should be omitted")
	}
}

func TestJSONMax(t *testing.T) {
	r := diag.NewReport()
	for _, m := range []source.ModuleID{"/p/a.js", "/p/b.js", "/p/c.js"} {
		r.Add(diag.New(diag.SevWarning, diag.LntNoConsole, m, source.Span{}, "console"))
	}
	out := BuildDiagnosticsOutput(r, nil, JSONOpts{Max: 2})
	if out.Count != 2 || out.Warnings != 3 {
		t.Errorf("count=%d warnings=%d", out.Count, out.Warnings)
	}
}
