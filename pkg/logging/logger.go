package logging

import (
	"io"
	"log/slog"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCLI  = "cli"
)

// NewLogger returns a logger writing to w in the given format. Unknown
// formats fall back to text.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lev := ParseLogLevel(level)
	opts := &slog.HandlerOptions{Level: lev}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts))
	case FormatCLI:
		return slog.New(NewCLIHandler(w, lev))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// SetDefault installs a NewLogger result as the slog default.
func SetDefault(w io.Writer, format, level string) {
	slog.SetDefault(NewLogger(w, format, level))
}

// ParseLogLevel converts a string log level to slog.Level.
// Defaults to slog.LevelInfo for unrecognized strings.
func ParseLogLevel(level string) slog.Level {
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
