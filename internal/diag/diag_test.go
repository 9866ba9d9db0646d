package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"kiln/internal/source"
)

type codedErr struct {
	span source.Span
}

func (e *codedErr) Error() string         { return "not found" }
func (e *codedErr) DiagCode() Code        { return ResNotFound }
func (e *codedErr) DiagSpan() source.Span { return e.span }

func TestBagLimitAndSort(t *testing.T) {
	b := NewBag(2)
	require.True(t, b.Add(New(SevWarning, LntNoConsole, "/b.js", source.Span{Start: 4, End: 8}, "w")))
	require.True(t, b.Add(New(SevError, LdrTransformFailed, "/a.js", source.Span{}, "e")))
	require.False(t, b.Add(New(SevInfo, LdrInfo, "/c.js", source.Span{}, "dropped")))

	b.Sort()
	require.Equal(t, source.ModuleID("/a.js"), b.Items()[0].Module)
	require.True(t, b.HasErrors())
	require.True(t, b.HasWarnings())
}

func TestBagDedup(t *testing.T) {
	b := NewBag(0)
	d := New(SevWarning, LntNoDebugger, "/a.js", source.Span{Start: 1, End: 2}, "debugger")
	b.Add(d)
	b.Add(d)
	b.Add(New(SevWarning, LntNoDebugger, "/a.js", source.Span{Start: 5, End: 6}, "debugger"))
	b.Dedup()
	require.Equal(t, 2, b.Len())
}

func TestReportFromTypedErrors(t *testing.T) {
	r := NewReport()
	wrapped := fmt.Errorf("resolve: %w", &codedErr{span: source.Span{Start: 3, End: 9}})
	r.ModuleError("/src/index.js", wrapped)
	r.ChunkError("app", errors.New("boom"))
	r.Add(New(SevWarning, LntNoConsole, "/src/index.js", source.Span{}, "console"))

	require.True(t, r.HasErrors())
	require.Equal(t, 2, r.ErrorCount())
	require.Equal(t, 1, r.WarningCount())

	var mod Diagnostic
	for _, d := range r.Diagnostics() {
		if d.Module == "/src/index.js" && d.Severity == SevError {
			mod = d
		}
	}
	require.Equal(t, ResNotFound, mod.Code)
	require.Equal(t, source.Span{Start: 3, End: 9}, mod.Primary)

	var ce *codedErr
	require.True(t, errors.As(mod.Err, &ce))
	require.Len(t, r.Errors(), 2)
	require.Len(t, r.ForModule("/src/index.js"), 2)
}

func TestReportBuilderEmitsOnce(t *testing.T) {
	b := NewBag(0)
	rb := ReportWarning(BagReporter{Bag: b}, LntNoEval, "/a.js", source.Span{Start: 0, End: 4}, "eval").
		WithNote("/a.js", source.Span{Start: 0, End: 1}, "here")
	rb.Emit()
	rb.Emit()
	require.Equal(t, 1, b.Len())
	require.Len(t, b.Items()[0].Notes, 1)
}

func TestCodeID(t *testing.T) {
	require.Equal(t, "RES1001", ResNotFound.ID())
	require.Equal(t, "LNT3001", LntNoDebugger.ID())
	require.Equal(t, "EMT5001", EmtNaming.ID())
	require.Equal(t, UnknownCode, CodeOf(errors.New("plain")))
}

func TestParseSeverity(t *testing.T) {
	sev, on, err := ParseSeverity("Warn")
	require.NoError(t, err)
	require.True(t, on)
	require.Equal(t, SevWarning, sev)

	_, on, err = ParseSeverity("off")
	require.NoError(t, err)
	require.False(t, on)

	_, _, err = ParseSeverity("fatal")
	require.ErrorContains(t, err, `"fatal"`)
}
