// Package logging configures structured logging for the Girandola binaries.
//
// Usage:
//
//	logging.Setup()                                   // tint, level from LOG_LEVEL env
//	logging.SetupWithLevel(slog.LevelDebug)           // tint, explicit level
//	logging.Configure(os.Stdout, "info", FormatJSON)  // server output
//
// Environment variables:
//
//	LOG_LEVEL: debug, info, warn, error (default: info)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats accepted by Configure.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup configures colored logging at the level specified by LOG_LEVEL env var
// (default: INFO).
func Setup() {
	SetupWithLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// SetupWithLevel configures colored logging at the given level.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, level, FormatText)))
}

// Configure installs a default logger writing to w in the given format and
// returns it. Unknown formats fall back to colored text.
func Configure(w io.Writer, level, format string) *slog.Logger {
	logger := slog.New(NewHandler(w, ParseLevel(level), format))
	slog.SetDefault(logger)
	return logger
}

// NewHandler builds a JSON handler for FormatJSON and a tint handler otherwise.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	if strings.EqualFold(format, FormatJSON) {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  level == slog.LevelDebug,
	})
}

// ParseLevel maps debug, warn and error to their slog levels; anything else is INFO.
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
