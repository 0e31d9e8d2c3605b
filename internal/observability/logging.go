// Package observability wires structured logging and distributed tracing
// for the gateway (§10.1, §13 "request tracing span tree").
package observability

import (
	"io"
	"log/slog"
	"os"
)

// LoggingConfig mirrors config.LoggingConfig without importing the config
// package, keeping observability free of a dependency on it.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// NewLogger builds the process-wide slog.Logger per §10.1: JSON by
// default, structured key-value fields rather than formatted strings.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
