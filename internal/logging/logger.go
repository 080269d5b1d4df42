// Package logging configures the zerolog logger shared by every component and
// carries it through context.Context.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

// Options controls logger construction.
type Options struct {
	Debug  bool
	Pretty bool
	Output io.Writer
}

// New builds a logger writing through a non-blocking diode buffer. The returned
// func flushes and closes the buffer and must be called on shutdown.
func New(opts Options) (zerolog.Logger, func()) {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	// Ring buffer of 1000 entries polled every 10ms.
	wr := diode.NewWriter(out, 1000, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "logger dropped %d messages\n", missed)
	})

	var w io.Writer = wr
	if opts.Pretty {
		w = zerolog.ConsoleWriter{
			Out:        wr,
			TimeFormat: time.DateTime,
			PartsOrder: []string{
				zerolog.LevelFieldName,
				zerolog.TimestampFieldName,
				zerolog.MessageFieldName,
			},
		}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, func() { wr.Close() }
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromCtx returns the logger stored in ctx. When none was attached it returns
// a disabled logger, so callers never need a nil check.
func FromCtx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// Component returns the ctx logger tagged with a component name.
func Component(ctx context.Context, name string) zerolog.Logger {
	return FromCtx(ctx).With().Str("component", name).Logger()
}
