package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"kiln/internal/buildpipeline"
	"kiln/internal/config"
	"kiln/internal/ui"
)

// uiMode picks the progress display for build. Auto shows the TUI when
// stdout is a terminal and output is not quiet.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func parseUIMode(value string) (uiMode, error) {
	m := uiMode(strings.ToLower(strings.TrimSpace(value)))
	if m == "" {
		return uiModeAuto, nil
	}
	if !slices.Contains([]uiMode{uiModeAuto, uiModeOn, uiModeOff}, m) {
		return "", fmt.Errorf("--ui: unknown mode %q, want auto, on or off", value)
	}
	return m, nil
}

func (m uiMode) enabled(quiet bool) bool {
	if m == uiModeAuto {
		return !quiet && isTerminal(os.Stdout)
	}
	return m == uiModeOn
}

type buildOutcome struct {
	result  *buildpipeline.Result
	session *buildpipeline.Session
	err     error
}

// runBuildWithUI runs a full build while a Bubble Tea program renders its
// progress events.
func runBuildWithUI(ctx context.Context, title string, cfg *config.Config, opts ...buildpipeline.Option) (*buildpipeline.Session, *buildpipeline.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)

	go func() {
		defer close(events)
		opts := append(opts, buildpipeline.WithSink(buildpipeline.ChannelSink{Ch: events}))
		s, err := buildpipeline.NewSession(ctx, cfg, opts...)
		if err != nil {
			outcomeCh <- buildOutcome{err: err}
			return
		}
		res, err := s.BuildResult(ctx)
		outcomeCh <- buildOutcome{result: res, session: s, err: err}
	}()

	names := make([]string, len(cfg.Entries))
	for i, e := range cfg.Entries {
		names[i] = e.Name
	}
	program := tea.NewProgram(ui.NewProgressModel(title, names, events), tea.WithOutput(os.Stdout), tea.WithContext(ctx))
	_, uiErr := program.Run()
	// drain so the build goroutine never blocks on a stopped program
	for range events {
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil && ctx.Err() == nil {
		return outcome.session, outcome.result, uiErr
	}
	return outcome.session, outcome.result, outcome.err
}
