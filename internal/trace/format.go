package trace

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Format uint8

const (
	FormatAuto   Format = iota // by output file extension
	FormatText                 // one line per event
	FormatNDJSON               // one JSON object per line
	FormatChrome               // Trace Event Format, for Perfetto or chrome://tracing
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson":
		return FormatNDJSON, nil
	case "chrome":
		return FormatChrome, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson|chrome)", s)
}

// FormatEvent renders a single event. Chrome events are bare array
// elements; use a StreamTracer or RingTracer.Dump for a whole document.
func FormatEvent(ev *Event, format Format) []byte {
	return newEncoder(format).encode(ev)
}

// encoder renders a sequence of events, adding the separators the
// document format needs between them.
type encoder struct {
	format Format
	n      int
}

func newEncoder(format Format) *encoder { return &encoder{format: format} }

func (e *encoder) header() []byte {
	if e.format == FormatChrome {
		return []byte("{\"traceEvents\":[\n")
	}
	return nil
}

func (e *encoder) footer() []byte {
	if e.format == FormatChrome {
		return []byte("\n]}\n")
	}
	return nil
}

func (e *encoder) encode(ev *Event) []byte {
	e.n++
	switch e.format {
	case FormatNDJSON:
		return encodeNDJSON(ev)
	case FormatChrome:
		b := encodeChrome(ev)
		if e.n > 1 {
			b = append([]byte(",\n"), b...)
		}
		return b
	}
	return encodeText(ev)
}

type ndjsonEvent struct {
	Time    string            `json:"time"`
	Seq     uint64            `json:"seq"`
	Kind    string            `json:"kind"`
	Scope   string            `json:"scope"`
	Span    uint64            `json:"span,omitempty"`
	Parent  uint64            `json:"parent,omitempty"`
	Name    string            `json:"name"`
	Detail  string            `json:"detail,omitempty"`
	Err     string            `json:"error,omitempty"`
	Elapsed float64           `json:"elapsed_ms,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

func encodeNDJSON(ev *Event) []byte {
	b, _ := json.Marshal(ndjsonEvent{
		Time:    ev.Time.Format(time.RFC3339Nano),
		Seq:     ev.Seq,
		Kind:    ev.Kind.String(),
		Scope:   ev.Scope.String(),
		Span:    ev.SpanID,
		Parent:  ev.ParentID,
		Name:    ev.Name,
		Detail:  ev.Detail,
		Err:     ev.Err,
		Elapsed: float64(ev.Elapsed.Microseconds()) / 1000,
		Extra:   ev.Extra,
	})
	return append(b, '\n')
}

// Spans from concurrent module loads overlap, so they are written as async
// events keyed by span id rather than nested per thread.
type chromeEvent struct {
	Name string            `json:"name"`
	Cat  string            `json:"cat"`
	Ph   string            `json:"ph"`
	Ts   int64             `json:"ts"`
	Pid  int               `json:"pid"`
	Tid  int               `json:"tid"`
	ID   string            `json:"id,omitempty"`
	S    string            `json:"s,omitempty"`
	Args map[string]string `json:"args,omitempty"`
}

func encodeChrome(ev *Event) []byte {
	ce := chromeEvent{Name: ev.Name, Cat: ev.Scope.String(), Ts: ev.Time.UnixMicro(), Pid: 1, Tid: 1}
	switch ev.Kind {
	case KindSpanBegin, KindSpanEnd:
		ce.Ph = "b"
		if ev.Kind == KindSpanEnd {
			ce.Ph = "e"
		}
		ce.ID = "0x" + strconv.FormatUint(rootOf(ev), 16)
	default:
		ce.Ph, ce.S = "i", "g"
	}
	if ev.Detail != "" || ev.Err != "" || len(ev.Extra) > 0 {
		ce.Args = maps.Clone(ev.Extra)
		if ce.Args == nil {
			ce.Args = make(map[string]string, 2)
		}
		if ev.Detail != "" {
			ce.Args["detail"] = ev.Detail
		}
		if ev.Err != "" {
			ce.Args["error"] = ev.Err
		}
	}
	b, _ := json.Marshal(ce)
	return b
}

// rootOf groups stage and session spans on one track and gives every module
// load a track of its own, with its transforms nested inside.
func rootOf(ev *Event) uint64 {
	if ev.Scope == ScopeTransform {
		return ev.ParentID
	}
	if ev.Scope <= ScopeStage {
		return 0
	}
	return ev.SpanID
}

// encodeText renders "[15:04:05.000]   → name (detail) {k=v}".
func encodeText(ev *Event) []byte {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(ev.Time.Format(time.TimeOnly + ".000"))
	sb.WriteString("] ")
	if ev.Scope > ScopeSession {
		sb.WriteString(strings.Repeat("  ", int(ev.Scope-ScopeSession)))
	}
	switch {
	case ev.Kind == KindSpanBegin:
		sb.WriteString("→ ")
	case ev.Kind == KindSpanEnd && ev.Err != "":
		sb.WriteString("✗ ")
	case ev.Kind == KindSpanEnd:
		sb.WriteString("← ")
	case ev.Kind == KindHeartbeat:
		sb.WriteString("♡ ")
	default:
		sb.WriteString("• ")
	}
	sb.WriteString(ev.Name)
	if ev.Kind == KindSpanEnd {
		fmt.Fprintf(&sb, " %.2fms", float64(ev.Elapsed.Microseconds())/1000)
	}
	if ev.Detail != "" {
		sb.WriteString(" (" + ev.Detail + ")")
	}
	if ev.Err != "" {
		sb.WriteString(": " + ev.Err)
	}
	if len(ev.Extra) > 0 {
		sb.WriteString(" {")
		for i, k := range slices.Sorted(maps.Keys(ev.Extra)) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k + "=" + ev.Extra[k])
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return []byte(sb.String())
}
