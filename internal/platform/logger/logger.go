// Package logger provides structured logging for the game server.
// Every state change the engine makes should be traceable through this.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options configures a Logger.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // text, json or logfmt
	Output io.Writer // defaults to stderr
}

// Logger provides structured logging with context.
type Logger struct {
	l *log.Logger
}

// New creates a logger from options.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := log.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = log.InfoLevel
	}

	l := log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          "sleep",
		ReportTimestamp: true,
	})

	switch strings.ToLower(opts.Format) {
	case "json":
		l.SetFormatter(log.JSONFormatter)
	case "logfmt":
		l.SetFormatter(log.LogfmtFormatter)
	}

	return &Logger{l: l}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Options{Output: io.Discard})
}

// With returns a child logger that always carries the given key/value pairs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{l: l.l.With(keyvals...)}
}

// Debug logs verbose diagnostics.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.l.Debug(msg, keyvals...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.l.Info(msg, keyvals...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.l.Warn(msg, keyvals...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.l.Error(msg, keyvals...)
}

// Event logs a specific game event.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.l.Info("event", "type", eventType, "actor", actorID, "details", details)
}
