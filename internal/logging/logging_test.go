package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestQuietDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf, Options{Quiet: true})
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestConsoleWriterWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf, Options{})
	log.Info().Str("chunk", "app").Msg("written")
	out := buf.String()
	require.Contains(t, out, "INF")
	require.Contains(t, out, "chunk=app")
	require.NotContains(t, out, "\x1b[")
}

func TestDevEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf, Options{Dev: true})
	require.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestLoggerTravelsInContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := Into(context.Background(), Setup(&buf, Options{Quiet: true}))
	zerolog.Ctx(ctx).Warn().Msg("from ctx")
	require.Contains(t, buf.String(), "from ctx")
}
