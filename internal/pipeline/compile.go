package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/soil-moisture-etl/internal/artifact"
	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
	"github.com/couchcryptid/soil-moisture-etl/internal/observability"
	"github.com/couchcryptid/soil-moisture-etl/internal/platform"
)

// Compiler joins harmonized observations with platform covariates into the
// training table.
type Compiler struct {
	source  domain.CovariateSource
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCompiler creates a Compiler reading covariates from the given source.
func NewCompiler(source domain.CovariateSource, logger *slog.Logger, metrics *observability.Metrics) *Compiler {
	return &Compiler{
		source:  source,
		logger:  logger,
		metrics: metrics,
	}
}

// CompileWarning records a covariate that could not be resolved for a
// site. The affected rows are dropped and the run continues.
type CompileWarning struct {
	SiteID   string
	Variable string
	Err      error
}

// CompileSummary reports one compile run.
type CompileSummary struct {
	Sites       int
	Rows        int
	RowsDropped int
	Columns     []string
	Warnings    []CompileWarning
	Duration    time.Duration
}

// varSource says where a column's values come from.
type varSource int

const (
	fromObservation varSource = iota // harmonized station data
	fromPlatform                     // fetched covariate
	derived                          // computed locally (DD)
)

// plannedVar is one column of the compiled table and its source.
type plannedVar struct {
	code   string
	source varSource
	spec   platform.VariableSpec // set for fromPlatform
}

// Compile reads the reader artifacts, fetches covariates per site, joins
// on (site, day), and writes the compiled table. Rows missing ground truth
// or any planned column are dropped, never filled.
func (c *Compiler) Compile(ctx context.Context, cfg *config.Config) (*CompileSummary, error) {
	start := domain.Clock().Now()

	if err := cfg.RequireVariables(); err != nil {
		return nil, err
	}
	net := cfg.Network()

	sites, err := artifact.ReadSiteInfo(cfg, net)
	if err != nil {
		return nil, readerArtifactError(err)
	}
	obs, err := artifact.ReadObservations(cfg, net)
	if err != nil {
		return nil, readerArtifactError(err)
	}

	plan, err := planColumns(cfg, obs)
	if err != nil {
		return nil, err
	}

	obsBySite := make(map[string]map[time.Time]domain.Observation)
	for _, o := range obs {
		m, ok := obsBySite[o.SiteID]
		if !ok {
			m = make(map[time.Time]domain.Observation)
			obsBySite[o.SiteID] = m
		}
		m[o.Date] = o
	}

	summary := &CompileSummary{Sites: len(sites), Columns: columnNames(plan)}
	var rows []domain.TrainingRow

	for i, site := range sites {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.logger.Info("compiling site", "site", site.ID, "n", i+1, "of", len(sites))

		siteRows, dropped, warnings, err := c.compileSite(ctx, cfg, site, plan, obsBySite[site.ID])
		if err != nil {
			return nil, err
		}
		rows = append(rows, siteRows...)
		summary.RowsDropped += dropped
		summary.Warnings = append(summary.Warnings, warnings...)
	}

	if err := artifact.WriteCompiled(cfg, summary.Columns, rows); err != nil {
		return nil, err
	}

	summary.Rows = len(rows)
	summary.Duration = domain.Clock().Now().Sub(start)
	c.metrics.RowsCompiled.Add(float64(len(rows)))
	finishStep(c.metrics, summary.Duration)

	c.logger.Info("compile step complete",
		"sites", summary.Sites,
		"rows", summary.Rows,
		"rows_dropped", summary.RowsDropped,
		"columns", summary.Columns,
		"duration", summary.Duration,
	)
	for _, w := range summary.Warnings {
		c.logger.Warn("covariate warning", "site", w.SiteID, "variable", w.Variable, "error", w.Err)
	}
	return summary, nil
}

// compileSite fetches covariates for one site and joins them with its
// observations over the site's day range.
func (c *Compiler) compileSite(ctx context.Context, cfg *config.Config, site domain.Site, plan []plannedVar, siteObs map[time.Time]domain.Observation) ([]domain.TrainingRow, int, []CompileWarning, error) {
	days := domain.DayRange(site.StartDate, site.EndDate)
	if len(days) == 0 {
		return nil, 0, nil, nil
	}

	seriesByVar := make(map[string][]float64, len(plan))
	var warnings []CompileWarning

	for _, pv := range plan {
		if pv.source != fromPlatform {
			continue
		}
		values, err := c.fetchVariable(ctx, cfg, site, pv, days)
		if err != nil {
			var authErr *domain.AuthError
			if errors.As(err, &authErr) || ctx.Err() != nil {
				return nil, 0, nil, err
			}
			warnings = append(warnings, CompileWarning{SiteID: site.ID, Variable: pv.code, Err: err})
			values = nanSeries(len(days))
		}
		seriesByVar[pv.code] = values
	}

	// The dry-day streak derives from whichever precipitation the plan
	// carries; when P is neither fetched nor observed it is fetched just
	// for the derivation.
	if hasColumn(plan, platform.DerivedDryDays) {
		precip, err := c.precipSeries(ctx, cfg, site, plan, seriesByVar, siteObs, days)
		if err != nil {
			var authErr *domain.AuthError
			if errors.As(err, &authErr) || ctx.Err() != nil {
				return nil, 0, nil, err
			}
			warnings = append(warnings, CompileWarning{SiteID: site.ID, Variable: platform.DerivedDryDays, Err: err})
			precip = nanSeries(len(days))
		}
		seriesByVar[platform.DerivedDryDays] = domain.DryDayStreaks(precip)
	}

	var rows []domain.TrainingRow
	dropped := 0
	for i, day := range days {
		o, ok := siteObs[day]
		if !ok {
			c.metrics.RowsDropped.WithLabelValues("missing_ground_truth").Inc()
			dropped++
			continue
		}

		values := make(map[string]float64, len(plan))
		complete := true
		for _, pv := range plan {
			var v float64
			switch pv.source {
			case fromObservation:
				p := observedValue(o, pv.code)
				if p == nil {
					complete = false
				} else {
					v = *p
				}
			default:
				v = seriesByVar[pv.code][i]
				if math.IsNaN(v) {
					complete = false
				}
			}
			if !complete {
				break
			}
			values[pv.code] = v
		}
		if !complete {
			c.metrics.RowsDropped.WithLabelValues("missing_covariate").Inc()
			dropped++
			continue
		}

		rows = append(rows, domain.TrainingRow{
			SiteID:       site.ID,
			Date:         day,
			SoilMoisture: o.SoilMoisture,
			Values:       values,
		})
	}
	return rows, dropped, warnings, nil
}

// fetchVariable queries the platform for one covariate over the site's
// range and aligns it to the day grid, applying the variable's conversion
// and bounded interpolation.
func (c *Compiler) fetchVariable(ctx context.Context, cfg *config.Config, site domain.Site, pv plannedVar, days []time.Time) ([]float64, error) {
	series, err := c.source.FetchSeries(ctx, domain.SeriesQuery{
		Dataset:   pv.spec.Dataset,
		Bands:     pv.spec.Bands,
		Latitude:  site.Latitude,
		Longitude: site.Longitude,
		Start:     days[0],
		End:       days[len(days)-1],
	})
	if err != nil {
		c.metrics.CovariateRequests.WithLabelValues(pv.spec.Dataset, "error").Inc()
		return nil, err
	}
	if len(series) == 0 {
		c.metrics.CovariateRequests.WithLabelValues(pv.spec.Dataset, "empty").Inc()
		return nil, &domain.DataAvailabilityError{SiteID: site.ID, Variable: pv.code}
	}
	c.metrics.CovariateRequests.WithLabelValues(pv.spec.Dataset, "success").Inc()

	values := nanSeries(len(days))
	for i, d := range days {
		if bands, ok := series[d]; ok {
			values[i] = pv.spec.Convert(bands)
		}
	}

	limit := pv.spec.InterpolationLimit
	if pv.spec.IsIndex {
		limit = 0
		if cfg.InterpolateIndex {
			limit = cfg.InterpolationLimitDays
		}
	}
	return domain.InterpolateBounded(values, limit), nil
}

// precipSeries resolves the daily precipitation the dry-day derivation
// runs on: the planned P column when present, otherwise a dedicated fetch.
func (c *Compiler) precipSeries(ctx context.Context, cfg *config.Config, site domain.Site, plan []plannedVar, seriesByVar map[string][]float64, siteObs map[time.Time]domain.Observation, days []time.Time) ([]float64, error) {
	for _, pv := range plan {
		if pv.code != "P" {
			continue
		}
		if pv.source == fromPlatform {
			return seriesByVar["P"], nil
		}
		values := nanSeries(len(days))
		for i, d := range days {
			if o, ok := siteObs[d]; ok && o.Precip != nil {
				values[i] = *o.Precip
			}
		}
		return values, nil
	}
	return c.fetchVariable(ctx, cfg, site, plannedVar{
		code:   "P",
		source: fromPlatform,
		spec:   platform.Variables["P"],
	}, days)
}

// planColumns decides the compiled table's columns and their sources:
// observation-borne variables first (TS, TA, P when the network reports
// them), then the requested covariates in settings order. A requested
// variable already present in the harmonized table is not re-fetched
// unless overwrite_variables is set.
func planColumns(cfg *config.Config, obs []domain.Observation) ([]plannedVar, error) {
	observed := map[string]bool{}
	for _, o := range obs {
		if o.SoilTemp != nil {
			observed["TS"] = true
		}
		if o.AirTemp != nil {
			observed["TA"] = true
		}
		if o.Precip != nil {
			observed["P"] = true
		}
	}

	overridden := map[string]bool{}
	if cfg.OverwriteVariables {
		for _, v := range cfg.Variables {
			overridden[v] = true
		}
	}

	var plan []plannedVar
	planned := map[string]bool{}
	for _, code := range []string{"TS", "TA", "P"} {
		if observed[code] && !overridden[code] {
			plan = append(plan, plannedVar{code: code, source: fromObservation})
			planned[code] = true
		}
	}

	for _, v := range cfg.Variables {
		if planned[v] {
			continue
		}
		if v == platform.DerivedDryDays {
			plan = append(plan, plannedVar{code: v, source: derived})
			planned[v] = true
			continue
		}
		spec, ok := platform.Variables[v]
		if !ok {
			return nil, &domain.ConfigError{
				Field: "variables",
				Err:   fmt.Errorf("unknown covariate %q", v),
			}
		}
		plan = append(plan, plannedVar{code: v, source: fromPlatform, spec: spec})
		planned[v] = true
	}
	return plan, nil
}

func columnNames(plan []plannedVar) []string {
	names := make([]string, len(plan))
	for i, pv := range plan {
		names[i] = pv.code
	}
	return names
}

func hasColumn(plan []plannedVar, code string) bool {
	for _, pv := range plan {
		if pv.code == code {
			return true
		}
	}
	return false
}

func observedValue(o domain.Observation, code string) *float64 {
	switch code {
	case "TS":
		return o.SoilTemp
	case "TA":
		return o.AirTemp
	case "P":
		return o.Precip
	default:
		return nil
	}
}

func nanSeries(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return values
}

// readerArtifactError distinguishes "reader has not run yet" from a
// corrupt artifact.
func readerArtifactError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &domain.ConfigError{
			Field: "wrk_dir",
			Err:   fmt.Errorf("reader output not found, run the reader step first: %w", err),
		}
	}
	return err
}
