package observability

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the prometheus counters and gauges for one pipeline run.
// Each Metrics carries its own registry so parallel tests never collide
// and WriteTextfile only exports this run's series.
type Metrics struct {
	registry *prometheus.Registry

	// Reader metrics.
	StationsParsed         prometheus.Counter
	StationsSkipped        prometheus.Counter
	ObservationsHarmonized prometheus.Counter

	// Compiler metrics.
	CovariateRequests *prometheus.CounterVec // labels: dataset, outcome={success,empty,error}
	RowsCompiled      prometheus.Counter
	RowsDropped       *prometheus.CounterVec // labels: reason={missing_covariate,missing_ground_truth}

	// Run metadata, textfile-collector style.
	StepDuration prometheus.Gauge
	LastRun      prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics on a fresh
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StationsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soil_etl",
			Name:      "stations_parsed_total",
			Help:      "Stations successfully harmonized by the reader step.",
		}),
		StationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soil_etl",
			Name:      "stations_skipped_total",
			Help:      "Stations skipped due to malformed raw files.",
		}),
		ObservationsHarmonized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soil_etl",
			Name:      "observations_harmonized_total",
			Help:      "Daily observation records written by the reader step.",
		}),
		CovariateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soil_etl",
			Name:      "covariate_requests_total",
			Help:      "Platform time-series queries by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		RowsCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soil_etl",
			Name:      "rows_compiled_total",
			Help:      "Training rows written to the compiled table.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soil_etl",
			Name:      "rows_dropped_total",
			Help:      "Candidate (site, day) rows dropped during compilation.",
		}, []string{"reason"}),
		StepDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "soil_etl",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of the completed step.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "soil_etl",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the step finished.",
		}),
	}

	m.registry.MustRegister(
		m.StationsParsed,
		m.StationsSkipped,
		m.ObservationsHarmonized,
		m.CovariateRequests,
		m.RowsCompiled,
		m.RowsDropped,
		m.StepDuration,
		m.LastRun,
	)

	return m
}

// WriteTextfile exports the run's metrics in the node-exporter textfile
// collector format. A no-op when path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return f.Close()
}
