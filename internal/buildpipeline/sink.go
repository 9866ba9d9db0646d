package buildpipeline

import "time"

// ChannelSink forwards events into Ch, blocking when it is full.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch != nil {
		s.Ch <- ev
	}
}

// emitQueued marks every entry as waiting for the graph stage.
func emitQueued(sink ProgressSink, entries []string) {
	for _, name := range entries {
		if sink != nil {
			sink.OnEvent(Event{Entry: name, Stage: StageGraph, Status: StatusQueued})
		}
	}
}

// emitStage reports ev for the build as a whole and then for each entry;
// entries share one graph, so they move through stages together.
func emitStage(sink ProgressSink, entries []string, ev Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(ev)
	for _, name := range entries {
		ev.Entry = name
		sink.OnEvent(ev)
	}
}

func since(start time.Time) time.Duration { return time.Since(start) }
