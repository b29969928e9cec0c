package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging interface used across the worker. Components accept
// this interface so tests can inject a silent implementation.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewLogger creates a zerolog-backed logger writing JSON lines to stdout.
func NewLogger() Logger {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &zerologLogger{logger: l}
}

// NewConsoleLogger creates a human-readable logger for development.
func NewConsoleLogger() Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	return &zerologLogger{logger: l}
}

func (l *zerologLogger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *zerologLogger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return &zerologLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}
	return &zerologLogger{logger: ctx.Logger()}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}
