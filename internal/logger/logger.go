// Package logger builds the slog.Logger used by both binaries.
package logger

import (
	"io"
	"log/slog"
)

// Setup returns a logger configured for env.
//
// "prod" writes JSON at INFO, "staging" JSON at DEBUG, and anything else
// ("dev" included) human-readable text at DEBUG.
func Setup(env string, w io.Writer) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case "staging":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// Quiet returns a logger that drops everything below WARN, for interactive
// use where debug lines would clutter the output.
func Quiet(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
