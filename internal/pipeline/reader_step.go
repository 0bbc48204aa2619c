// Package pipeline orchestrates the batch steps: harmonizing raw station
// archives into the shared artifacts, and compiling the training table by
// joining observations with platform covariates. Steps run strictly in
// sequence, driven by the operator; the artifacts on disk are the only
// state shared between them.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/soil-moisture-etl/internal/artifact"
	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
	"github.com/couchcryptid/soil-moisture-etl/internal/observability"
	"github.com/couchcryptid/soil-moisture-etl/internal/reader"
)

// ReaderSummary reports one reader run for the end-of-run summary log.
type ReaderSummary struct {
	Network      domain.Network
	Sites        int
	Observations int
	Warnings     []reader.Warning
	Duration     time.Duration
}

// RunReader executes one network's reader step: parse and harmonize the
// raw archive, then write the site metadata and observation artifacts.
// Re-running with the same configuration overwrites prior outputs
// deterministically.
func RunReader(ctx context.Context, cfg *config.Config, r reader.Reader, logger *slog.Logger, metrics *observability.Metrics) (*ReaderSummary, error) {
	start := domain.Clock().Now()

	if err := cfg.RequireWorkDir(); err != nil {
		return nil, err
	}

	res, err := r.Initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := artifact.WriteSiteInfo(cfg, r.Network(), res.Sites); err != nil {
		return nil, err
	}
	if err := artifact.WriteObservations(cfg, r.Network(), res.Observations); err != nil {
		return nil, err
	}

	metrics.StationsParsed.Add(float64(len(res.Sites)))
	metrics.StationsSkipped.Add(float64(len(res.Warnings)))
	metrics.ObservationsHarmonized.Add(float64(len(res.Observations)))

	summary := &ReaderSummary{
		Network:      r.Network(),
		Sites:        len(res.Sites),
		Observations: len(res.Observations),
		Warnings:     res.Warnings,
		Duration:     domain.Clock().Now().Sub(start),
	}
	finishStep(metrics, summary.Duration)

	logger.Info("reader step complete",
		"network", summary.Network,
		"sites", summary.Sites,
		"observations", summary.Observations,
		"stations_skipped", len(summary.Warnings),
		"duration", summary.Duration,
	)
	for _, w := range summary.Warnings {
		logger.Warn("station warning", "station", w.Station, "error", w.Err)
	}
	return summary, nil
}

func finishStep(metrics *observability.Metrics, d time.Duration) {
	metrics.StepDuration.Set(d.Seconds())
	metrics.LastRun.Set(float64(domain.Clock().Now().Unix()))
}
