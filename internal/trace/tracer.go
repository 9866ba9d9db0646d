package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Tracer receives events. Implementations are safe for concurrent use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

// StorageMode selects where events go.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // written as they happen
	ModeRing                          // last N kept, written on Close
	ModeBoth
)

var modeNames = map[string]StorageMode{"stream": ModeStream, "ring": ModeRing, "both": ModeBoth}

func (m StorageMode) String() string {
	for name, v := range modeNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

func ParseMode(s string) (StorageMode, error) {
	if m, ok := modeNames[strings.ToLower(s)]; ok {
		return m, nil
	}
	return ModeStream, fmt.Errorf("invalid storage mode: %q (expected: stream|ring|both)", s)
}

type Config struct {
	Level  Level
	Mode   StorageMode
	Format Format // FormatAuto picks by OutputPath extension
	Output io.Writer
	// OutputPath is used when Output is nil; "-" or "" is stderr.
	OutputPath string
	RingSize   int
}

// New builds the tracer described by cfg. A ring tracer writes the events
// it still holds to the output when closed.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	format := cfg.Format
	if format == FormatAuto {
		format = formatFor(cfg.OutputPath)
	}
	w, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeStream:
		return NewStreamTracer(w, cfg.Level, format), nil
	case ModeRing:
		ring := NewRingTracer(cfg.RingSize, cfg.Level)
		ring.dump, ring.format = w, format
		return ring, nil
	case ModeBoth:
		return NewMultiTracer(cfg.Level, NewStreamTracer(w, cfg.Level, format), NewRingTracer(cfg.RingSize, cfg.Level)), nil
	}
	return nil, fmt.Errorf("unknown storage mode: %v", cfg.Mode)
}

func formatFor(path string) Format {
	switch {
	case strings.HasSuffix(path, ".ndjson"):
		return FormatNDJSON
	case strings.HasSuffix(path, ".json"):
		return FormatChrome
	}
	return FormatText
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.Output != nil {
		return cfg.Output, nil
	}
	if cfg.OutputPath == "" || cfg.OutputPath == "-" {
		return os.Stderr, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, nil
}

func closeOutput(w io.Writer) error {
	if c, ok := w.(io.Closer); ok && w != io.Writer(os.Stderr) && w != io.Writer(os.Stdout) {
		return c.Close()
	}
	return nil
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop records nothing.
var Nop Tracer = nopTracer{}

// StreamTracer writes each event as it arrives.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	enc    *encoder
	closed bool
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	t := &StreamTracer{w: w, level: level, enc: newEncoder(format)}
	_, _ = w.Write(t.enc.header())
	return t
}

func (t *StreamTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	// a broken trace file never fails a build
	_, _ = t.w.Write(t.enc.encode(ev))
}

func (t *StreamTracer) Flush() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (t *StreamTracer) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	_, err := t.w.Write(t.enc.footer())
	t.mu.Unlock()
	return errors.Join(err, t.Flush(), closeOutput(t.w))
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }

// RingTracer keeps the most recent events in a fixed-size buffer.
type RingTracer struct {
	mu     sync.Mutex
	buf    []Event
	next   int
	filled bool
	level  Level

	dump   io.Writer
	format Format
}

// NewRingTracer keeps up to capacity events; 4096 when capacity <= 0.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	t.buf[t.next] = *ev
	t.next++
	if t.next == len(t.buf) {
		t.next, t.filled = 0, true
	}
	t.mu.Unlock()
}

// Snapshot returns the held events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.filled {
		return append([]Event(nil), t.buf[:t.next]...)
	}
	out := make([]Event, 0, len(t.buf))
	out = append(out, t.buf[t.next:]...)
	return append(out, t.buf[:t.next]...)
}

// Dump writes the held events to w as one complete document.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	enc := newEncoder(format)
	if _, err := w.Write(enc.header()); err != nil {
		return err
	}
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(enc.encode(&ev)); err != nil {
			return err
		}
	}
	_, err := w.Write(enc.footer())
	return err
}

func (t *RingTracer) Flush() error { return nil }

func (t *RingTracer) Close() error {
	if t.dump == nil {
		return nil
	}
	w := t.dump
	t.dump = nil
	return errors.Join(t.Dump(w, t.format), closeOutput(w))
}

func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

// MultiTracer sends every event to each of its tracers.
type MultiTracer struct {
	tracers []Tracer
	level   Level
}

func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	return &MultiTracer{tracers: tracers, level: level}
}

func (t *MultiTracer) Emit(ev *Event) {
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

func (t *MultiTracer) Flush() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t *MultiTracer) Close() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t *MultiTracer) Level() Level  { return t.level }
func (t *MultiTracer) Enabled() bool { return t.level > LevelOff }
