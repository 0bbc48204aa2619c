package reader

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const degeroMeteo = `TIMESTAMP_START,TIMESTAMP_END,P,SWC_1,SWC_2,TS_1,TA
202105010000,202105010030,0.2,40,42,5,10
202105011200,202105011230,0.3,44,-9999,7,12
202105020000,202105020030,0,39,41,-1,8
202105030000,202105030030,0,38,40,-9999,7
202105040000,202105040030,0,50,50,3,9
`

const degeroSiteInfo = `SITE_ID,VARIABLE,DATAVALUE
SE-Deg,LOCATION_LAT,64.182
SE-Deg,LOCATION_LONG,19.557
SE-Deg,SITE_NAME,Degero
`

func writeDegero(t *testing.T, dir string) {
	writeFile(t, filepath.Join(dir, "ICOSETC_SE-Deg_ARCHIVE", "ICOSETC_SE-Deg_METEO_01.csv"), degeroMeteo)
	writeFile(t, filepath.Join(dir, "ICOSETC_SE-Deg_ARCHIVE", "ICOSETC_SE-Deg_SITEINFO.csv"), degeroSiteInfo)
}

func TestICOSInitialize(t *testing.T) {
	t.Run("harmonizes a station", func(t *testing.T) {
		dir := t.TempDir()
		writeDegero(t, dir)
		cfg := &config.Config{DataDir: dir}

		res, err := NewICOS(testLogger()).Initialize(context.Background(), cfg)

		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		require.Len(t, res.Sites, 1)

		site := res.Sites[0]
		assert.Equal(t, "SE-Deg", site.ID)
		assert.Equal(t, "Degero", site.Name)
		assert.Equal(t, domain.NetworkICOS, site.Network)
		assert.Equal(t, 64.182, site.Latitude)
		assert.Equal(t, 19.557, site.Longitude)
		assert.Equal(t, day(2021, 5, 1), site.StartDate)
		assert.Equal(t, day(2021, 5, 4), site.EndDate)

		// 2021-05-02 has frozen soil and 2021-05-03 has no soil temperature
		// reading; both days are dropped.
		require.Len(t, res.Observations, 2)

		first := res.Observations[0]
		assert.Equal(t, day(2021, 5, 1), first.Date)
		// Probe mean of (40, 42) and (44, missing), then daily mean.
		assert.InDelta(t, 42.5, first.SoilMoisture, 1e-9)
		require.NotNil(t, first.SoilTemp)
		assert.InDelta(t, 6.0, *first.SoilTemp, 1e-9)
		require.NotNil(t, first.AirTemp)
		assert.InDelta(t, 11.0, *first.AirTemp, 1e-9)
		require.NotNil(t, first.Precip)
		assert.InDelta(t, 0.5, *first.Precip, 1e-9)

		second := res.Observations[1]
		assert.Equal(t, day(2021, 5, 4), second.Date)
		assert.InDelta(t, 50.0, second.SoilMoisture, 1e-9)
	})

	t.Run("malformed station is skipped with warning", func(t *testing.T) {
		dir := t.TempDir()
		writeDegero(t, dir)
		writeFile(t, filepath.Join(dir, "ICOSETC_XX-Bad_METEO_01.csv"),
			"TIMESTAMP_START,TIMESTAMP_END\n202105010000,202105010030\n")
		cfg := &config.Config{DataDir: dir}

		res, err := NewICOS(testLogger()).Initialize(context.Background(), cfg)

		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, "XX-Bad", res.Warnings[0].Station)

		var formatErr *domain.DataFormatError
		require.ErrorAs(t, res.Warnings[0].Err, &formatErr)

		// The good station still comes through.
		require.Len(t, res.Sites, 1)
		assert.Equal(t, "SE-Deg", res.Sites[0].ID)
	})

	t.Run("station without SITEINFO is skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "ICOSETC_SE-Deg_METEO_01.csv"), degeroMeteo)
		cfg := &config.Config{DataDir: dir}

		res, err := NewICOS(testLogger()).Initialize(context.Background(), cfg)

		require.NoError(t, err)
		assert.Empty(t, res.Sites)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0].Err.Error(), "SITEINFO")
	})

	t.Run("VARINFO files are not treated as stations", func(t *testing.T) {
		dir := t.TempDir()
		writeDegero(t, dir)
		writeFile(t, filepath.Join(dir, "ICOSETC_SE-Deg_ARCHIVE", "ICOSETC_SE-Deg_VARINFO_METEO_01.csv"),
			"VARIABLE,DESCRIPTION\nSWC_1,soil water content\n")
		cfg := &config.Config{DataDir: dir}

		res, err := NewICOS(testLogger()).Initialize(context.Background(), cfg)

		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		assert.Len(t, res.Sites, 1)
	})

	t.Run("empty archive is a config error", func(t *testing.T) {
		cfg := &config.Config{DataDir: t.TempDir()}

		_, err := NewICOS(testLogger()).Initialize(context.Background(), cfg)

		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "data_dir", cfgErr.Field)
	})

	t.Run("missing data dir is a config error", func(t *testing.T) {
		cfg := &config.Config{DataDir: filepath.Join(t.TempDir(), "absent")}

		_, err := NewICOS(testLogger()).Initialize(context.Background(), cfg)

		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		dir := t.TempDir()
		writeDegero(t, dir)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewICOS(testLogger()).Initialize(ctx, &config.Config{DataDir: dir})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestICOSStationID(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"standard export name", "/data/ICOSETC_DE-Hai_METEO_01.csv", "DE-Hai"},
		{"siteinfo name", "ICOSETC_SE-Deg_SITEINFO.csv", "SE-Deg"},
		{"no underscores", "/data/station.csv", "station"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, icosStationID(tt.path))
		})
	}
}
