// Package trace records where a build spends its time.
//
//	kiln build --trace=build.chrome.json --trace-level=detail
//
// Spans nest through the context: a stage span opened with Start becomes
// the parent of every module span opened below it, and module spans parent
// the transforms applied to that module. Levels cut the tree at a scope:
//
//   - off: nothing
//   - error: only spans that ended with Fail
//   - phase: session and stage spans
//   - detail: plus one span per module load
//   - debug: plus one span per transform
package trace

import (
	"fmt"
	"strings"
	"time"
)

type Level uint8

const (
	LevelOff Level = iota
	LevelError
	LevelPhase
	LevelDetail
	LevelDebug
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the lower- or upper-case level name.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// ShouldEmit reports whether spans of scope are recorded at l.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelError, LevelDetail:
		return scope <= ScopeModule
	case LevelPhase:
		return scope <= ScopeStage
	case LevelDebug:
		return true
	}
	return false
}

// Scope is the granularity of a span; lower values are coarser.
type Scope uint8

const (
	ScopeSession   Scope = iota + 1 // a build or watch session
	ScopeStage                      // graph, patch, emit
	ScopeModule                     // one module load
	ScopeTransform                  // one transform applied to one module
)

func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeStage:
		return "stage"
	case ScopeModule:
		return "module"
	case ScopeTransform:
		return "transform"
	}
	return "unknown"
}

type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// Event is one record written by a Tracer.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Name     string // "graph.build", "./src/index.js", "babel"
	Detail   string
	// Err is the failure message of a span ended with Fail.
	Err     string
	Elapsed time.Duration // set on KindSpanEnd
	Extra   map[string]string
}
