package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"kiln/internal/buildpipeline"
)

func TestApplyEventTracksEntries(t *testing.T) {
	m := NewProgressModel("build", []string{"app", "admin"}, nil).(*progressModel)

	m.applyEvent(buildpipeline.Event{Stage: buildpipeline.StageGraph, Status: buildpipeline.StatusWorking})
	require.Equal(t, "loading", m.stageLabel)

	m.applyEvent(buildpipeline.Event{Entry: "app", Stage: buildpipeline.StageGraph, Status: buildpipeline.StatusDone, Modules: 12})
	require.Equal(t, "done", m.items[0].status)
	require.False(t, m.items[0].final)
	require.Equal(t, 12, m.items[0].modules)

	m.applyEvent(buildpipeline.Event{Entry: "app", Stage: buildpipeline.StageEmit, Status: buildpipeline.StatusDone})
	require.True(t, m.items[0].final)

	m.applyEvent(buildpipeline.Event{Entry: "admin", Stage: buildpipeline.StageGraph, Status: buildpipeline.StatusError, Err: errors.New("boom")})
	require.Equal(t, "error", m.items[1].status)
	require.True(t, m.items[1].final)

	m.applyEvent(buildpipeline.Event{Entry: "unknown", Stage: buildpipeline.StageEmit, Status: buildpipeline.StatusDone})
	require.Len(t, m.items, 2)

	view := m.View()
	require.Contains(t, view, "app")
	require.Contains(t, view, "12 modules")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	require.Equal(t, "ab", truncate("abcdef", 2))
	require.Equal(t, "界界界...", truncate("界界界界界界界界", 10))
}
