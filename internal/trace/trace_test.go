package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltersScopes(t *testing.T) {
	require.True(t, LevelPhase.ShouldEmit(ScopeStage))
	require.False(t, LevelPhase.ShouldEmit(ScopeModule))
	require.True(t, LevelDetail.ShouldEmit(ScopeModule))
	require.False(t, LevelDetail.ShouldEmit(ScopeTransform))
	require.True(t, LevelDebug.ShouldEmit(ScopeTransform))
	require.False(t, LevelOff.ShouldEmit(ScopeSession))
}

func TestParseLevelAndMode(t *testing.T) {
	l, err := ParseLevel("DETAIL")
	require.NoError(t, err)
	require.Equal(t, LevelDetail, l)
	_, err = ParseLevel("loud")
	require.ErrorContains(t, err, "off|error|phase|detail|debug")

	m, err := ParseMode("both")
	require.NoError(t, err)
	require.Equal(t, ModeBoth, m)
	require.Equal(t, "ring", ModeRing.String())
	_, err = ParseMode("disk")
	require.Error(t, err)
}

func TestRingKeepsLastEvents(t *testing.T) {
	ring := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"graph.build", "graph.patch", "emit"} {
		Begin(ring, ScopeStage, name, 0).End("")
	}
	events := ring.Snapshot()
	require.Len(t, events, 2)
	require.Equal(t, "emit", events[0].Name)
	require.Equal(t, KindSpanBegin, events[0].Kind)
	require.Equal(t, KindSpanEnd, events[1].Kind)
	require.Less(t, events[0].Seq, events[1].Seq)
}

func TestRingDumpsOnClose(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeRing, Format: FormatNDJSON, Output: &buf, RingSize: 8})
	require.NoError(t, err)
	Begin(tr, ScopeStage, "emit", 0).WithExtra("chunks", "2").End("")
	require.Zero(t, buf.Len())

	require.NoError(t, tr.Close())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var end map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &end))
	require.Equal(t, "end", end["kind"])
	require.Equal(t, map[string]any{"chunks": "2"}, end["extra"])

	// a second close writes nothing more
	require.NoError(t, tr.Close())
	require.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
}

func TestChromeStreamIsValidJSON(t *testing.T) {
	var buf bytes.Buffer
	st := NewStreamTracer(&buf, LevelDebug, FormatChrome)
	ctx := WithTracer(context.Background(), st)
	stage, ctx := Start(ctx, ScopeStage, "graph.build")
	mod, mctx := Start(ctx, ScopeModule, "module:src/index.js")
	tf, _ := Start(mctx, ScopeTransform, "babel")
	tf.End("")
	mod.WithExtra("cache", "miss").End("")
	stage.End("")
	require.NoError(t, st.Close())

	var doc struct {
		TraceEvents []map[string]any `json:"traceEvents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.TraceEvents, 6)
	require.Equal(t, "b", doc.TraceEvents[0]["ph"])
	require.Equal(t, "e", doc.TraceEvents[5]["ph"])
	// transforms share the track of the module they run on
	require.Equal(t, doc.TraceEvents[1]["id"], doc.TraceEvents[2]["id"])
	require.NotEqual(t, doc.TraceEvents[0]["id"], doc.TraceEvents[1]["id"])
	require.Equal(t, map[string]any{"cache": "miss"}, doc.TraceEvents[4]["args"])
}

func TestStartNestsUnderContextSpan(t *testing.T) {
	ring := NewRingTracer(8, LevelDetail)
	ctx := WithTracer(context.Background(), ring)
	require.Zero(t, CurrentSpan(ctx))

	stage, ctx := Start(ctx, ScopeStage, "emit")
	require.Equal(t, stage.ID(), CurrentSpan(ctx))
	mod, _ := Start(ctx, ScopeModule, "module:a.js")
	mod.End("")

	// transforms are below the detail level
	tf, tctx := Start(ctx, ScopeTransform, "babel")
	require.Nil(t, tf)
	require.Equal(t, stage.ID(), CurrentSpan(tctx))
	require.Zero(t, tf.End("done"))
	stage.End("")

	events := ring.Snapshot()
	require.Len(t, events, 4)
	require.Equal(t, stage.ID(), events[1].ParentID)
}

func TestErrorLevelKeepsOnlyFailedSpans(t *testing.T) {
	ring := NewRingTracer(8, LevelError)
	ok := Begin(ring, ScopeModule, "module:ok.js", 0)
	bad := Begin(ring, ScopeModule, "module:bad.js", 0)
	ok.End("")
	bad.Fail(errors.New("unexpected token")).End("")

	events := ring.Snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "module:bad.js", events[0].Name)
	require.Equal(t, "unexpected token", events[0].Err)
}

func TestTextFormat(t *testing.T) {
	line := string(FormatEvent(&Event{Kind: KindPoint, Scope: ScopeSession, Name: "cache", Extra: map[string]string{"miss": "1", "hit": "3"}}, FormatText))
	require.True(t, strings.HasSuffix(line, "] • cache {hit=3, miss=1}\n"), line)

	line = string(FormatEvent(&Event{Kind: KindSpanEnd, Scope: ScopeModule, Name: "module:a.js", Err: "boom", Elapsed: 1500 * time.Microsecond}, FormatText))
	require.True(t, strings.HasSuffix(line, "]     ✗ module:a.js 1.50ms: boom\n"), line)
}

func TestContextDefaults(t *testing.T) {
	require.Equal(t, Nop, FromContext(context.Background()))
	require.Equal(t, Nop, FromContext(WithTracer(context.Background(), nil)))
	span, ctx := Start(context.Background(), ScopeStage, "graph.build")
	require.Nil(t, span)
	require.Zero(t, CurrentSpan(ctx))
}

func TestHeartbeat(t *testing.T) {
	require.Nil(t, StartHeartbeat(Nop, time.Millisecond))

	ring := NewRingTracer(1024, LevelPhase)
	h := StartHeartbeat(ring, time.Millisecond)
	require.Eventually(t, func() bool { return len(ring.Snapshot()) >= 2 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()
	events := ring.Snapshot()
	require.Equal(t, KindHeartbeat, events[0].Kind)
	require.Equal(t, "#1", events[0].Detail)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("chrome")
	require.NoError(t, err)
	require.Equal(t, FormatChrome, f)
	_, err = ParseFormat("xml")
	require.Error(t, err)
	require.Equal(t, FormatChrome, formatFor("build.chrome.json"))
	require.Equal(t, FormatNDJSON, formatFor("build.ndjson"))
	require.Equal(t, FormatText, formatFor("-"))
}
