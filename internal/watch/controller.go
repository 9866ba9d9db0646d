package watch

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kiln/internal/config"
	"kiln/internal/diag"
)

type State int32

const (
	StateIdle State = iota
	StateWatching
	StateRebuilding
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateRebuilding:
		return "rebuilding"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Outcome is what a build reports back to the controller.
type Outcome struct {
	// Chunks names the chunks written.
	Chunks []string
	Report *diag.Report
	// Paths is the watch set of the resulting graph.
	Paths []string
	// Dirs are watched as trees: any change inside them triggers a rebuild.
	Dirs []string
	// Files names other output that changed, such as a rewritten HTML page
	// or an edited file under the content base.
	Files []string
}

// Update is published after every build, in completion order.
type Update struct {
	Seq     uint64
	BuildID uuid.UUID
	// Changes that triggered the build; empty for the initial build.
	Changes  []Event
	Chunks   []string
	Files    []string
	Report   *diag.Report
	Err      error
	Duration time.Duration
}

// OK reports whether the build produced no errors.
func (u Update) OK() bool {
	return u.Err == nil && (u.Report == nil || !u.Report.HasErrors())
}

type Options struct {
	Root    string
	Watch   config.Watch
	Watcher Watcher
	Builder Builder
}

// Controller owns the watch loop. Builds never overlap; changes that arrive
// while a build runs are batched into the next one.
type Controller struct {
	opts    Options
	updates chan Update
	state   atomic.Int32
	seq     uint64

	// debounce
	mu       sync.Mutex
	timer    *time.Timer
	fireSeq  uint64
	latest   atomic.Uint64
	fire     chan uint64
	debounce time.Duration
}

func NewController(opts Options) (*Controller, error) {
	if opts.Watcher == nil || opts.Builder == nil {
		return nil, errors.New("watch: watcher and builder are required")
	}
	debounce := opts.Watch.Debounce
	if debounce <= 0 {
		debounce = config.DefaultDebounce
	}
	return &Controller{
		opts:     opts,
		updates:  make(chan Update, 16),
		fire:     make(chan uint64, 1),
		debounce: debounce,
	}, nil
}

// Updates delivers one Update per build. It is closed when Run returns.
func (c *Controller) Updates() <-chan Update { return c.updates }

func (c *Controller) State() State { return State(c.state.Load()) }

type buildDone struct {
	outcome *Outcome
	err     error
	changes []Event
	took    time.Duration
}

// Run performs the initial build, then rebuilds on every relevant batch of
// changes until ctx is cancelled. It closes the watcher on return.
func (c *Controller) Run(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	defer close(c.updates)
	defer func() {
		c.stopTimer()
		c.state.Store(int32(StateStopped))
		_ = c.opts.Watcher.Close()
	}()

	c.state.Store(int32(StateRebuilding))
	start := time.Now()
	out, err := c.opts.Builder.Build(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	set := c.publishAndSync(ctx, buildDone{outcome: out, err: err, took: time.Since(start)}, nil)
	c.state.Store(int32(StateWatching))

	pending := make(map[string]Event)
	var done chan buildDone
	for {
		select {
		case <-ctx.Done():
			if done != nil {
				<-done
			}
			return nil

		case ev, ok := <-c.opts.Watcher.Events():
			if !ok {
				if done != nil {
					<-done
				}
				return nil
			}
			if !set.Match(ev) {
				continue
			}
			pending[ev.Path] = merge(pending[ev.Path], ev)
			if done == nil {
				c.schedule()
			}

		case err, ok := <-c.opts.Watcher.Errors():
			if ok {
				log.Warn().Err(err).Msg("watcher error")
			}

		case seq := <-c.fire:
			if seq != c.latest.Load() || done != nil || len(pending) == 0 {
				continue
			}
			changes := slices.SortedFunc(maps.Values(pending), func(a, b Event) int {
				return strings.Compare(a.Path, b.Path)
			})
			clear(pending)
			done = make(chan buildDone, 1)
			c.state.Store(int32(StateRebuilding))
			go func(ch chan<- buildDone) {
				start := time.Now()
				out, err := c.opts.Builder.Rebuild(ctx, changes)
				ch <- buildDone{outcome: out, err: err, changes: changes, took: time.Since(start)}
			}(done)

		case res := <-done:
			done = nil
			if errors.Is(res.err, context.Canceled) {
				return nil
			}
			if next := c.publishAndSync(ctx, res, set); next != nil {
				set = next
			}
			c.state.Store(int32(StateWatching))
			if len(pending) > 0 {
				c.schedule()
			}
		}
	}
}

// publishAndSync delivers the update and points the watcher at the new watch
// set. A failed build without an outcome keeps the previous set.
func (c *Controller) publishAndSync(ctx context.Context, res buildDone, prev *Set) *Set {
	log := zerolog.Ctx(ctx)
	c.seq++
	u := Update{
		Seq:      c.seq,
		BuildID:  uuid.New(),
		Changes:  res.changes,
		Err:      res.err,
		Duration: res.took,
	}
	set := prev
	if res.outcome != nil {
		u.Chunks = res.outcome.Chunks
		u.Files = res.outcome.Files
		u.Report = res.outcome.Report
		set = NewSet(c.opts.Root, res.outcome.Paths, c.opts.Watch.Ignore)
		set.AddTrees(res.outcome.Dirs...)
		if err := c.opts.Watcher.Sync(set.Dirs()); err != nil {
			log.Warn().Err(err).Msg("watch set incomplete")
		}
	}
	if set == nil {
		set = NewSet(c.opts.Root, nil, c.opts.Watch.Ignore)
	}
	ev := log.Info()
	if !u.OK() {
		ev = log.Warn()
	}
	ev.Uint64("seq", u.Seq).Str("build", u.BuildID.String()).Int("chunks", len(u.Chunks)).Dur("took", u.Duration).Err(u.Err).Msg("build finished")

	select {
	case c.updates <- u:
	case <-ctx.Done():
	}
	return set
}

// schedule (re)arms the debounce timer; only the latest arming fires.
func (c *Controller) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fireSeq++
	seq := c.fireSeq
	c.latest.Store(seq)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		select {
		case c.fire <- seq:
		default:
			// a stale tick is still queued; replace it
			select {
			case <-c.fire:
			default:
			}
			select {
			case c.fire <- seq:
			default:
			}
		}
	})
}

func (c *Controller) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

// merge keeps the most telling op when one path changes several times in a
// burst.
func merge(prev, next Event) Event {
	if prev.Path == "" {
		return next
	}
	if next.Op == OpWrite && prev.Op != OpWrite {
		return prev
	}
	return next
}
