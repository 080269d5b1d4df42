package logging

import "github.com/rs/zerolog"

// GooseLogger adapts zerolog to goose's Logger interface.
type GooseLogger struct {
	logger zerolog.Logger
}

// NewGooseLogger wraps logger for use with goose.SetLogger.
func NewGooseLogger(logger zerolog.Logger) *GooseLogger {
	return &GooseLogger{logger: logger.With().Str("component", "migrations").Logger()}
}

func (g *GooseLogger) Fatalf(format string, v ...interface{}) {
	g.logger.Fatal().Msgf(format, v...)
}

func (g *GooseLogger) Printf(format string, v ...interface{}) {
	g.logger.Info().Msgf(format, v...)
}
