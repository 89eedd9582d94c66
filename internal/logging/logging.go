// Package logging builds the process logger. Components derive their own
// logger with Component so every record carries a "component" attribute.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects verbosity and record format ("text" or "json").
type Options struct {
	Level  string
	Format string
}

// New creates a console slog.Logger with provided level string.
func New(level string) *slog.Logger {
	return NewWithOptions(os.Stdout, Options{Level: level})
}

// NewWithOptions writes records to w. Unknown formats fall back to text.
func NewWithOptions(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: levelFromString(opts.Level)}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Component tags logger with a component name; a nil logger discards.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger.With("component", name)
}

// levelFromString maps error/warn/info; anything else is debug.
func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
