package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

type (
	tracerKey struct{}
	spanKey   struct{}
)

// FromContext returns the tracer carried by ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx != nil {
		if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
			return t
		}
	}
	return Nop
}

// WithTracer returns a context carrying t.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// CurrentSpan returns the id of the innermost span started on ctx, or 0.
func CurrentSpan(ctx context.Context) uint64 {
	if ctx != nil {
		if id, ok := ctx.Value(spanKey{}).(uint64); ok {
			return id
		}
	}
	return 0
}

// Span is an open interval of work. A nil or disabled Span accepts every
// call and records nothing.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	// quiet spans only surface when they fail
	quiet bool
	err   string
	extra map[string]string
}

// Begin opens a span under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Level().ShouldEmit(scope) {
		return nil
	}
	s := &Span{
		tracer:  t,
		id:      spanCounter.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
		quiet:   t.Level() == LevelError,
	}
	if !s.quiet {
		t.Emit(&Event{
			Time:     s.started,
			Seq:      NextSeq(),
			Kind:     KindSpanBegin,
			Scope:    scope,
			SpanID:   s.id,
			ParentID: parent,
			Name:     name,
		})
	}
	return s
}

// Start opens a span under the one carried by ctx and returns a context
// that makes it the parent of later spans.
func Start(ctx context.Context, scope Scope, name string) (*Span, context.Context) {
	s := Begin(FromContext(ctx), scope, name, CurrentSpan(ctx))
	if s == nil {
		return nil, ctx
	}
	return s, context.WithValue(ctx, spanKey{}, s.id)
}

// WithExtra attaches a key/value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil {
		return nil
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// Fail marks the span as failed; End reports err with the end event.
func (s *Span) Fail(err error) *Span {
	if s != nil && err != nil {
		s.err = err.Error()
	}
	return s
}

// End closes the span and returns its duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil {
		return 0
	}
	elapsed := time.Since(s.started)
	if s.quiet && s.err == "" {
		return elapsed
	}
	s.tracer.Emit(&Event{
		Time:     s.started.Add(elapsed),
		Seq:      NextSeq(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
		Err:      s.err,
		Elapsed:  elapsed,
		Extra:    s.extra,
	})
	return elapsed
}

func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}
