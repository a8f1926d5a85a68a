// Package logger sets up the process-wide structured logger. Level and format
// come from LOG_LEVEL (debug|info|warn|error) and LOG_FORMAT (text|json).
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup builds and installs the default logger from the environment, writing to stderr
func Setup() *slog.Logger {
	return SetupWriter(os.Stderr)
}

// SetupWriter builds and installs the default logger from the environment, writing to w
func SetupWriter(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(os.Getenv("LOG_LEVEL"))}

	var h slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a slog level; unknown names mean info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
