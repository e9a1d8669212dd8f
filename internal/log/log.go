// Package log provides structured logging for go-recognize.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var logger *slog.Logger

// Options controls how the global logger is built.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Unknown values mean info.
	Level string

	// Format is "json" or "text". Empty picks JSON when GO_ENV=production.
	Format string

	// Output defaults to stdout.
	Output io.Writer
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger without touching the global one.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}

	format := opts.Format
	if format == "" && os.Getenv("GO_ENV") == "production" {
		format = "json"
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts))
}

// Set replaces the global logger, e.g. with one whose handler tees records
// elsewhere. It also becomes slog's default.
func Set(l *slog.Logger) {
	logger = l
	slog.SetDefault(l)
}

// L returns the global logger, falling back to slog's default before Set.
func L() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
