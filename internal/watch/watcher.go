// Package watch turns file system events into serialised incremental
// rebuilds.
package watch

import "context"

type Op uint8

const (
	OpWrite Op = iota
	OpCreate
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "write"
	}
}

// Event is one change to one path.
type Event struct {
	Path string
	Op   Op
}

// Watcher reports changes under a set of directories.
type Watcher interface {
	// Sync makes the watcher cover exactly dirs.
	Sync(dirs []string) error
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// Builder performs the builds the controller schedules.
type Builder interface {
	// Build loads everything from scratch.
	Build(ctx context.Context) (*Outcome, error)
	// Rebuild patches the graph for the changed paths and emits what they
	// affect.
	Rebuild(ctx context.Context, changes []Event) (*Outcome, error)
}
