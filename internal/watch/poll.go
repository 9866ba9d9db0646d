package watch

import (
	"path"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Poll is the polling backend for file systems without change
// notifications, such as network mounts and some containers.
type Poll struct {
	fs       afero.Fs
	interval time.Duration
	events   chan Event
	errs     chan error
	done     chan struct{}
	once     sync.Once

	mu    sync.Mutex
	dirs  []string
	state map[string]stamp
}

type stamp struct {
	mod  time.Time
	size int64
}

func NewPoll(fs afero.Fs, interval time.Duration) *Poll {
	p := &Poll{
		fs:       fs,
		interval: interval,
		events:   make(chan Event, 64),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		state:    make(map[string]stamp),
	}
	go p.loop()
	return p
}

func (p *Poll) Sync(dirs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirs = append(p.dirs[:0], dirs...)
	// seed without reporting so only later changes surface
	p.state = p.scan()
	return nil
}

func (p *Poll) loop() {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			for _, ev := range p.poll() {
				select {
				case p.events <- ev:
				case <-p.done:
					return
				}
			}
		}
	}
}

func (p *Poll) poll() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.scan()
	var out []Event
	for name, s := range next {
		old, ok := p.state[name]
		switch {
		case !ok:
			out = append(out, Event{Path: name, Op: OpCreate})
		case !old.mod.Equal(s.mod) || old.size != s.size:
			out = append(out, Event{Path: name, Op: OpWrite})
		}
	}
	for name := range p.state {
		if _, ok := next[name]; !ok {
			out = append(out, Event{Path: name, Op: OpRemove})
		}
	}
	p.state = next
	return out
}

func (p *Poll) scan() map[string]stamp {
	out := make(map[string]stamp)
	for _, dir := range p.dirs {
		infos, err := afero.ReadDir(p.fs, dir)
		if err != nil {
			continue
		}
		for _, fi := range infos {
			if fi.IsDir() {
				continue
			}
			out[path.Join(dir, fi.Name())] = stamp{mod: fi.ModTime(), size: fi.Size()}
		}
	}
	return out
}

func (p *Poll) Events() <-chan Event { return p.events }

func (p *Poll) Errors() <-chan error { return p.errs }

func (p *Poll) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
