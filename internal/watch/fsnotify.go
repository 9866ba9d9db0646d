package watch

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notify is the fsnotify backend.
type Notify struct {
	w      *fsnotify.Watcher
	events chan Event
	done   chan struct{}

	mu   sync.Mutex
	dirs map[string]bool
}

func NewNotify() (*Notify, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &Notify{
		w:      w,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		dirs:   make(map[string]bool),
	}
	go n.forward()
	return n, nil
}

func (n *Notify) forward() {
	defer close(n.events)
	for {
		select {
		case ev, ok := <-n.w.Events:
			if !ok {
				return
			}
			op, keep := translate(ev.Op)
			if !keep {
				continue
			}
			select {
			case n.events <- Event{Path: ev.Name, Op: op}:
			case <-n.done:
				return
			}
		case <-n.done:
			return
		}
	}
}

func translate(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	}
	// chmod only
	return 0, false
}

func (n *Notify) Sync(dirs []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	want := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		want[d] = true
	}
	for d := range n.dirs {
		if !want[d] {
			_ = n.w.Remove(d)
			delete(n.dirs, d)
		}
	}
	var firstErr error
	for d := range want {
		if n.dirs[d] {
			continue
		}
		if err := n.w.Add(d); err != nil {
			// the directory may not exist yet; Sync is retried after the next build
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n.dirs[d] = true
	}
	return firstErr
}

func (n *Notify) Events() <-chan Event { return n.events }

func (n *Notify) Errors() <-chan error { return n.w.Errors }

func (n *Notify) Close() error {
	select {
	case <-n.done:
		return nil
	default:
	}
	close(n.done)
	return n.w.Close()
}
