// Command reader runs the station-reader step for the configured network:
// it parses the raw ICOS or ISMN archive and writes the harmonized
// observation table and site metadata to the working directory.
//
// Usage:
//
//	go run ./cmd/reader -settings settings.yml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/observability"
	"github.com/couchcryptid/soil-moisture-etl/internal/pipeline"
	"github.com/couchcryptid/soil-moisture-etl/internal/reader"
)

func main() {
	settings := flag.String("settings", "settings.yml", "path to the YAML settings file")
	flag.Parse()

	cfg, err := config.Load(*settings)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	r, err := reader.ForNetwork(cfg.Network(), logger)
	if err != nil {
		logger.Error("failed to select reader", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, runErr := pipeline.RunReader(ctx, cfg, r, logger, metrics)

	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Error("metrics export failed", "error", err)
	}
	if runErr != nil {
		logger.Error("reader step failed", "error", runErr)
		os.Exit(1)
	}
}
