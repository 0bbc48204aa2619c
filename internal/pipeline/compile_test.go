package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/soil-moisture-etl/internal/artifact"
	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
	"github.com/couchcryptid/soil-moisture-etl/internal/observability"
)

// mockSource serves canned series per dataset and records every query.
type mockSource struct {
	series  map[string]domain.Series
	err     error
	queries []domain.SeriesQuery
}

func (m *mockSource) FetchSeries(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.series[q.Dataset]
	if !ok {
		return domain.Series{}, nil
	}
	return s, nil
}

func (m *mockSource) datasets() []string {
	var out []string
	for _, q := range m.queries {
		out = append(out, q.Dataset)
	}
	return out
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 { return &v }

// writeReaderArtifacts seeds the work dir with one site spanning
// 2021-05-01 through 2021-05-04 whose observations skip 2021-05-03.
func writeReaderArtifacts(t *testing.T, cfg *config.Config) {
	t.Helper()
	require.NoError(t, cfg.RequireWorkDir())

	sites := []domain.Site{{
		ID: "SE-Deg", Name: "Degero", Network: domain.NetworkICOS,
		Latitude: 64.182, Longitude: 19.557,
		StartDate: day(2021, 5, 1), EndDate: day(2021, 5, 4),
	}}
	obs := []domain.Observation{
		{SiteID: "SE-Deg", Date: day(2021, 5, 1), SoilMoisture: 42.5, SoilTemp: ptr(6.0), AirTemp: ptr(11.0), Precip: ptr(0.4)},
		{SiteID: "SE-Deg", Date: day(2021, 5, 2), SoilMoisture: 41.0, SoilTemp: ptr(6.5), AirTemp: ptr(12.0), Precip: ptr(0.0)},
		{SiteID: "SE-Deg", Date: day(2021, 5, 4), SoilMoisture: 40.2, SoilTemp: ptr(7.0), AirTemp: ptr(13.0), Precip: ptr(0.0)},
	}
	require.NoError(t, artifact.WriteSiteInfo(cfg, domain.NetworkICOS, sites))
	require.NoError(t, artifact.WriteObservations(cfg, domain.NetworkICOS, obs))
}

func compileConfig(t *testing.T, variables ...string) *config.Config {
	t.Helper()
	return &config.Config{
		ProjectName:            "degero",
		WorkDir:                t.TempDir(),
		DataSource:             "ICOS",
		Variables:              variables,
		InterpolateIndex:       true,
		InterpolationLimitDays: 30,
	}
}

func newCompiler(source domain.CovariateSource) *Compiler {
	return NewCompiler(source, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetrics())
}

func TestCompile(t *testing.T) {
	t.Run("joins observations with covariates", func(t *testing.T) {
		cfg := compileConfig(t, "NDVI", "DD")
		writeReaderArtifacts(t, cfg)

		source := &mockSource{series: map[string]domain.Series{
			"COPERNICUS/S2_SR": {
				day(2021, 5, 1): {"B8": 0.3, "B4": 0.1},
				day(2021, 5, 4): {"B8": 0.32, "B4": 0.08},
			},
		}}

		summary, err := newCompiler(source).Compile(context.Background(), cfg)

		require.NoError(t, err)
		assert.Empty(t, summary.Warnings)
		assert.Equal(t, 1, summary.Sites)
		// 2021-05-03 has no ground truth and is dropped.
		assert.Equal(t, 3, summary.Rows)
		assert.Equal(t, 1, summary.RowsDropped)
		// Observed variables lead, requested covariates follow.
		assert.Equal(t, []string{"TS", "TA", "P", "NDVI", "DD"}, summary.Columns)

		columns, rows, err := artifact.ReadCompiled(cfg)
		require.NoError(t, err)
		assert.Equal(t, summary.Columns, columns)
		require.Len(t, rows, 3)

		first := rows[0]
		assert.Equal(t, day(2021, 5, 1), first.Date)
		assert.Equal(t, 42.5, first.SoilMoisture)
		assert.Equal(t, 6.0, first.Values["TS"])
		assert.Equal(t, 11.0, first.Values["TA"])
		assert.Equal(t, 0.4, first.Values["P"])
		assert.InDelta(t, 0.5, first.Values["NDVI"], 1e-9)
		// 2021-05-01 is a wet day.
		assert.Equal(t, 0.0, first.Values["DD"])

		// The NDVI gap on 2021-05-02 is interpolated toward the 05-04 value.
		second := rows[1]
		ndvi4 := (0.32 - 0.08) / (0.32 + 0.08)
		assert.InDelta(t, 0.5+(ndvi4-0.5)/3, second.Values["NDVI"], 1e-9)
		assert.Equal(t, 1.0, second.Values["DD"])

		// Dry streak keeps counting across the missing day.
		third := rows[2]
		assert.Equal(t, day(2021, 5, 4), third.Date)
		assert.Equal(t, 3.0, third.Values["DD"])

		// One covariate fetch: DD derives from observed precipitation.
		assert.Equal(t, []string{"COPERNICUS/S2_SR"}, source.datasets())
	})

	t.Run("query bounds match the site span", func(t *testing.T) {
		cfg := compileConfig(t, "NDVI")
		writeReaderArtifacts(t, cfg)
		source := &mockSource{}

		_, err := newCompiler(source).Compile(context.Background(), cfg)
		require.NoError(t, err)

		require.Len(t, source.queries, 1)
		q := source.queries[0]
		assert.Equal(t, []string{"B8", "B4"}, q.Bands)
		assert.Equal(t, 64.182, q.Latitude)
		assert.Equal(t, 19.557, q.Longitude)
		assert.Equal(t, day(2021, 5, 1), q.Start)
		assert.Equal(t, day(2021, 5, 4), q.End)
	})

	t.Run("empty covariate drops the site's rows with a warning", func(t *testing.T) {
		cfg := compileConfig(t, "NDVI")
		writeReaderArtifacts(t, cfg)
		source := &mockSource{} // no imagery for any dataset

		summary, err := newCompiler(source).Compile(context.Background(), cfg)

		require.NoError(t, err)
		assert.Equal(t, 0, summary.Rows)
		assert.Equal(t, 4, summary.RowsDropped)
		require.Len(t, summary.Warnings, 1)
		assert.Equal(t, "NDVI", summary.Warnings[0].Variable)

		var availErr *domain.DataAvailabilityError
		require.ErrorAs(t, summary.Warnings[0].Err, &availErr)
		assert.Equal(t, "SE-Deg", availErr.SiteID)
	})

	t.Run("rows missing one covariate day are dropped", func(t *testing.T) {
		cfg := compileConfig(t, "VV")
		writeReaderArtifacts(t, cfg)

		// Backscatter only on 2021-05-02; VV is never interpolated.
		source := &mockSource{series: map[string]domain.Series{
			"COPERNICUS/S1_GRD": {
				day(2021, 5, 2): {"VV": -11.5},
			},
		}}

		summary, err := newCompiler(source).Compile(context.Background(), cfg)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Rows)
		assert.Equal(t, 3, summary.RowsDropped)

		_, rows, err := artifact.ReadCompiled(cfg)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, day(2021, 5, 2), rows[0].Date)
		assert.Equal(t, -11.5, rows[0].Values["VV"])
	})

	t.Run("overwrite refetches an observed variable", func(t *testing.T) {
		cfg := compileConfig(t, "TA")
		cfg.OverwriteVariables = true
		writeReaderArtifacts(t, cfg)

		source := &mockSource{series: map[string]domain.Series{
			"ECMWF/ERA5/DAILY": {
				day(2021, 5, 1): {"mean_2m_air_temperature": 290.15},
				day(2021, 5, 2): {"mean_2m_air_temperature": 291.15},
				day(2021, 5, 4): {"mean_2m_air_temperature": 292.15},
			},
		}}

		summary, err := newCompiler(source).Compile(context.Background(), cfg)

		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "P", "TA"}, summary.Columns)

		_, rows, err := artifact.ReadCompiled(cfg)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		// Reanalysis value, not the station's 11.0.
		assert.InDelta(t, 17.0, rows[0].Values["TA"], 1e-9)
	})

	t.Run("dry days fetch precipitation when none is observed", func(t *testing.T) {
		cfg := compileConfig(t, "DD")
		require.NoError(t, cfg.RequireWorkDir())

		sites := []domain.Site{{
			ID: "SOD041", Network: domain.NetworkICOS,
			Latitude: 67.362, Longitude: 26.638,
			StartDate: day(2021, 5, 1), EndDate: day(2021, 5, 2),
		}}
		obs := []domain.Observation{
			{SiteID: "SOD041", Date: day(2021, 5, 1), SoilMoisture: 30},
			{SiteID: "SOD041", Date: day(2021, 5, 2), SoilMoisture: 31},
		}
		require.NoError(t, artifact.WriteSiteInfo(cfg, domain.NetworkICOS, sites))
		require.NoError(t, artifact.WriteObservations(cfg, domain.NetworkICOS, obs))

		source := &mockSource{series: map[string]domain.Series{
			"ECMWF/ERA5/DAILY": {
				day(2021, 5, 1): {"total_precipitation": 0.002},
				day(2021, 5, 2): {"total_precipitation": 0.0},
			},
		}}

		summary, err := newCompiler(source).Compile(context.Background(), cfg)

		require.NoError(t, err)
		assert.Equal(t, []string{"DD"}, summary.Columns)
		assert.Equal(t, []string{"ECMWF/ERA5/DAILY"}, source.datasets())

		_, rows, err := artifact.ReadCompiled(cfg)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, 0.0, rows[0].Values["DD"])
		assert.Equal(t, 1.0, rows[1].Values["DD"])
	})

	t.Run("auth failure aborts the run", func(t *testing.T) {
		cfg := compileConfig(t, "NDVI")
		writeReaderArtifacts(t, cfg)
		source := &mockSource{err: &domain.AuthError{Status: 401}}

		_, err := newCompiler(source).Compile(context.Background(), cfg)

		var authErr *domain.AuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("unknown covariate is a config error", func(t *testing.T) {
		cfg := compileConfig(t, "ALBEDO")
		writeReaderArtifacts(t, cfg)

		_, err := newCompiler(&mockSource{}).Compile(context.Background(), cfg)

		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "variables", cfgErr.Field)
	})

	t.Run("no variables configured", func(t *testing.T) {
		cfg := compileConfig(t)
		writeReaderArtifacts(t, cfg)

		_, err := newCompiler(&mockSource{}).Compile(context.Background(), cfg)

		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "variables", cfgErr.Field)
	})

	t.Run("missing reader artifacts", func(t *testing.T) {
		cfg := compileConfig(t, "NDVI")

		_, err := newCompiler(&mockSource{}).Compile(context.Background(), cfg)

		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "wrk_dir", cfgErr.Field)
		assert.Contains(t, err.Error(), "run the reader step first")
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		cfg := compileConfig(t, "NDVI")
		writeReaderArtifacts(t, cfg)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newCompiler(&mockSource{}).Compile(ctx, cfg)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPlanColumns(t *testing.T) {
	obsAll := []domain.Observation{
		{SiteID: "X", Date: day(2021, 5, 1), SoilMoisture: 40, SoilTemp: ptr(5), AirTemp: ptr(10), Precip: ptr(0.1)},
	}
	obsBare := []domain.Observation{
		{SiteID: "X", Date: day(2021, 5, 1), SoilMoisture: 40},
	}

	t.Run("observed variables lead", func(t *testing.T) {
		cfg := &config.Config{Variables: []string{"NDVI"}}
		plan, err := planColumns(cfg, obsAll)

		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "TA", "P", "NDVI"}, columnNames(plan))
		assert.Equal(t, fromObservation, plan[0].source)
		assert.Equal(t, fromPlatform, plan[3].source)
	})

	t.Run("requested variable already observed is not refetched", func(t *testing.T) {
		cfg := &config.Config{Variables: []string{"TS", "NDVI"}}
		plan, err := planColumns(cfg, obsAll)

		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "TA", "P", "NDVI"}, columnNames(plan))
		assert.Equal(t, fromObservation, plan[0].source)
	})

	t.Run("bare network fetches everything requested", func(t *testing.T) {
		cfg := &config.Config{Variables: []string{"TS", "TA", "DD"}}
		plan, err := planColumns(cfg, obsBare)

		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "TA", "DD"}, columnNames(plan))
		assert.Equal(t, fromPlatform, plan[0].source)
		assert.Equal(t, derived, plan[2].source)
	})

	t.Run("overwrite shifts an observed variable to the platform", func(t *testing.T) {
		cfg := &config.Config{Variables: []string{"TS"}, OverwriteVariables: true}
		plan, err := planColumns(cfg, obsAll)

		require.NoError(t, err)
		assert.Equal(t, []string{"TA", "P", "TS"}, columnNames(plan))
		assert.Equal(t, fromPlatform, plan[2].source)
	})
}
