// Command compile runs the preprocessing step: it joins the harmonized
// observation artifacts with covariates fetched from the geospatial
// platform and writes the compiled training table.
//
// The platform credential comes from the PLATFORM_TOKEN environment
// variable (a .env file is honored) or the token file named in settings.
//
// Usage:
//
//	go run ./cmd/compile -settings settings.yml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
	"github.com/couchcryptid/soil-moisture-etl/internal/observability"
	"github.com/couchcryptid/soil-moisture-etl/internal/pipeline"
	"github.com/couchcryptid/soil-moisture-etl/internal/platform"
)

func main() {
	settings := flag.String("settings", "settings.yml", "path to the YAML settings file")
	flag.Parse()

	cfg, err := config.Load(*settings)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	if err := cfg.ResolveToken(); err != nil {
		slog.Error("failed to resolve platform credential", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var source domain.CovariateSource = platform.NewClient(cfg.Platform, logger)
	source = platform.NewCachedSource(source, cfg.Platform.CacheSize)

	compiler := pipeline.NewCompiler(source, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, runErr := compiler.Compile(ctx, cfg)

	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Error("metrics export failed", "error", err)
	}
	if runErr != nil {
		logger.Error("compile step failed", "error", runErr)
		os.Exit(1)
	}
}
