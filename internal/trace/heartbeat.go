package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a point event at a fixed interval. A transform that hangs
// shows up as heartbeats after its begin event with no matching end.
type Heartbeat struct {
	stop chan struct{}
	once sync.Once
	done sync.WaitGroup
}

// StartHeartbeat returns nil when t is disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{})}
	h.done.Add(1)
	go func() {
		defer h.done.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for n := 1; ; n++ {
			select {
			case now := <-tick.C:
				t.Emit(&Event{
					Time:   now,
					Seq:    NextSeq(),
					Kind:   KindHeartbeat,
					Scope:  ScopeSession,
					Name:   "heartbeat",
					Detail: "#" + strconv.Itoa(n),
				})
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for it; safe on nil and repeated calls.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	h.done.Wait()
}
