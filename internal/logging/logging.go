// Package logging provides structured, request-scoped logging for the
// server and its subsystems.
package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog with a JSON handler writing to stdout.
type Logger struct {
	slog *slog.Logger
}

// New creates a Logger that writes JSON to stdout at the given level.
func New(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(handler)}
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// With returns a new Logger with the given key-value pairs attached to
// every log entry it emits.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}
