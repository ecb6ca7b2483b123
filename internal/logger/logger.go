// Package logger provides the structured logger used across lambdakit.
// It wraps "log/slog" so every binary emits the same shape (JSON in
// production, text in development) and so library code can pull a
// request-scoped logger out of the context instead of using globals.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Options controls handler selection and the identity attributes attached to
// every log line.
type Options struct {
	// Level is the textual minimum level: debug, info, warn or error.
	// Unknown values fall back to info.
	Level string

	// Format selects the handler: "json" or "text". Anything else means JSON.
	Format string

	// Service and Environment are attached to every record when non-empty.
	Service     string
	Environment string
}

// New returns a logger writing to stdout.
func New(opts Options) *slog.Logger {
	return NewWithWriter(opts, os.Stdout)
}

// NewWithWriter returns a logger writing to w. Used by tests to capture
// output.
func NewWithWriter(opts Options, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var handler slog.Handler
	switch opts.Format {
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With(slog.String("service", opts.Service))
	}
	if opts.Environment != "" {
		log = log.With(slog.String("env", opts.Environment))
	}
	return log
}

// parseLevel converts a string level, defaulting to info.
func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
