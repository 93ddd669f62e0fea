// Package logger provides structured logging functionality for the engine.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ventlearn/progress-sync/internal/config"
)

// Setup initializes and configures the engine's logging system based on the
// provided configuration. It creates a structured JSON logger with the
// appropriate log level and sets it as the default logger.
//
// It accepts a LogConfig containing the log level setting and returns the
// configured logger.
func Setup(cfg config.LogConfig) *slog.Logger {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.LogConfig, out io.Writer) *slog.Logger {
	// Parse the log level from configuration (case-insensitive)
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		// If the log level is invalid, use info level as default and log a warning
		level = slog.LevelInfo

		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
