package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerOptions configures the leveled logger.
type LoggerOptions struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	base zerolog.Logger
}

// NewLogger creates a Logger writing JSON to stdout unless opts say otherwise.
func NewLogger(opts LoggerOptions) *Logger {
	var out io.Writer = opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(out).
		With().
		Timestamp().
		Str("service", "vendor-desk").
		Logger().
		Level(parseLevel(opts.Level))

	return &Logger{base: base}
}

// NopLogger discards everything. Used by tests.
func NopLogger() *Logger {
	return &Logger{base: zerolog.Nop()}
}

func parseLevel(value string) zerolog.Level {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(value); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

func (l *Logger) Info(format string, args ...any) {
	l.base.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.base.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.base.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.base.Debug().Msg(fmt.Sprintf(format, args...))
}
