package buildpipeline

import (
	"slices"
	"time"
)

// Stage is one step of a build as reported to progress sinks.
type Stage string

const (
	StageGraph Stage = "graph" // resolve, load and transform every reachable module
	StagePatch Stage = "patch" // reload modules touched by a file event
	StageEmit  Stage = "emit"  // partition into chunks and write them
)

// Stages lists the stages in execution order. A build runs graph then emit;
// a rebuild runs patch then emit.
var Stages = []Stage{StageGraph, StagePatch, StageEmit}

type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports the progress of one entry, or of the whole build when Entry
// is empty.
type Event struct {
	Entry   string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
	// Modules is the graph size once StageGraph or StagePatch is done.
	Modules int
}

type ProgressSink interface {
	OnEvent(Event)
}

// Timings records how long each stage of one build took.
type Timings struct {
	d    [3]time.Duration
	seen [3]bool
}

// Set records dur for stage; unknown stages are ignored.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if i := slices.Index(Stages, stage); t != nil && i >= 0 {
		t.d[i], t.seen[i] = dur, true
	}
}

func (t Timings) Has(stage Stage) bool {
	i := slices.Index(Stages, stage)
	return i >= 0 && t.seen[i]
}

func (t Timings) Duration(stage Stage) time.Duration {
	if i := slices.Index(Stages, stage); i >= 0 {
		return t.d[i]
	}
	return 0
}

// Sum adds the durations of stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += t.Duration(s)
	}
	return total
}
