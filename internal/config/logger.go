package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the service logger: JSON in production, text with source
// locations elsewhere. LOG_LEVEL overrides the environment's default level.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.Environment, cfg.LogLevel)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		AddSource: env == "development",
		Level:     slog.LevelDebug,
	}
	if env == "production" {
		opts.Level = slog.LevelInfo
	}
	if lvl, ok := parseLevel(level); ok {
		opts.Level = lvl
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", "facegate"))
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
