// Package logging builds the structured logger shared by the server and the
// operator CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level and encoding of the logger.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	Output io.Writer
}

// New creates a slog.Logger from cfg. Unknown levels fall back to info and
// unknown formats to text.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
