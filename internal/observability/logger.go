// Package observability provides the pipeline's structured logger and
// prometheus metrics. Each step is a short-lived batch process, so metrics
// are exported at end of run in textfile-collector format rather than
// served over HTTP.
package observability

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
)

// NewLogger builds the slog logger from the settings resource. Format is
// "json" or "text"; unknown levels fall back to info.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
