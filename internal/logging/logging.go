// Package logging holds the process-wide slog logger and builds handlers
// for the text, json and console formats.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	charm "github.com/charmbracelet/log"
)

// Global structured logger. Initialized with a reasonable text handler.
var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// Formats accepted by New.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ValidFormat reports whether New knows the format.
func ValidFormat(f string) bool {
	switch f {
	case FormatText, FormatJSON, FormatConsole:
		return true
	}
	return false
}

// New creates a new logger with given level, format ("text", "json" or
// "console"), and optional writer (defaults stderr). The console format is
// colored, human oriented output meant for an interactive terminal.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatConsole:
		h = charm.NewWithOptions(w, charm.Options{
			Level:           charm.Level(level.Level()),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
