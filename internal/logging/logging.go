package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	pionlog "github.com/pion/logging"
)

// Log formats accepted in LOG_FORMAT.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Init installs the default logger. LOG_LEVEL overrides fallback and
// LOG_FORMAT picks text (default) or json output on stderr.
func Init(fallback slog.Level) error {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), fallback)
	logger, err := New(os.Getenv("LOG_FORMAT"), level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// ParseLevel maps a LOG_LEVEL value to a level, or returns fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// New builds a logger writing to stderr.
func New(format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	return slog.New(handler), nil
}

// PionFactory returns a pion logger factory at the same verbosity as
// level. PION_LOG_* variables still override it per scope.
func PionFactory(level slog.Level) pionlog.LoggerFactory {
	f := pionlog.NewDefaultLoggerFactory()
	f.Writer = os.Stderr
	switch {
	case level <= slog.LevelDebug:
		f.DefaultLogLevel = pionlog.LogLevelDebug
	case level <= slog.LevelInfo:
		f.DefaultLogLevel = pionlog.LogLevelInfo
	case level <= slog.LevelWarn:
		f.DefaultLogLevel = pionlog.LogLevelWarn
	default:
		f.DefaultLogLevel = pionlog.LogLevelError
	}
	return f
}
