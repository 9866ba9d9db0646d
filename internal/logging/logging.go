// Package logging configures the zerolog logger shared by the CLI, the
// watch loop and the dev server.
package logging

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	// Dev switches to the human console writer and debug level.
	Dev   bool
	Quiet bool
	// Color is only honoured by the console writer.
	Color bool
}

func Setup(w io.Writer, opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case opts.Quiet:
		level = zerolog.WarnLevel
	case opts.Dev:
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()

	if opts.Dev || !opts.Quiet {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !opts.Color,
			TimeFormat: time.TimeOnly,
		}).Level(level)
	}
	if opts.Dev {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Into stores logger in ctx for zerolog.Ctx.
func Into(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}
