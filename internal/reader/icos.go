package reader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// icosSentinel marks missing readings in ICOS METEO exports.
const icosSentinel = -9999

// icosTimestampFormat parses TIMESTAMP_START values, e.g. "202003171330".
const icosTimestampFormat = "200601021504"

// ICOS reads per-station METEO CSV exports from the ICOS carbon portal.
// Archives must be downloaded beforehand; this is not a downloader.
type ICOS struct {
	logger *slog.Logger
}

// NewICOS creates the ICOS archive reader.
func NewICOS(logger *slog.Logger) *ICOS {
	return &ICOS{logger: logger}
}

func (r *ICOS) Network() domain.Network { return domain.NetworkICOS }

// Initialize parses every *_METEO_01.csv under the data directory. Probe
// columns (SWC_n, TS_n, TA_n) are averaged per timestamp, readings are
// resampled to daily values (precipitation summed), and days with frozen
// soil are dropped. Station coordinates come from the sibling SITEINFO
// file.
func (r *ICOS) Initialize(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.RequireDataDir(); err != nil {
		return nil, err
	}

	meteoFiles, siteInfoFiles, err := findICOSFiles(cfg.DataDir)
	if err != nil {
		return nil, &domain.ConfigError{Field: "data_dir", Err: err}
	}
	if len(meteoFiles) == 0 {
		return nil, &domain.ConfigError{
			Field: "data_dir",
			Err:   fmt.Errorf("no *_METEO_01.csv files under %s", cfg.DataDir),
		}
	}

	res := &Result{}
	for _, path := range meteoFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		station := icosStationID(path)
		site, obs, err := r.parseStation(station, path, siteInfoFiles)
		if err != nil {
			r.logger.Warn("station skipped", "network", "ICOS", "station", station, "error", err)
			res.Warnings = append(res.Warnings, Warning{Station: station, Err: err})
			continue
		}
		res.Sites = append(res.Sites, site)
		res.Observations = append(res.Observations, obs...)
	}

	dedupe(res)
	return res, nil
}

// parseStation harmonizes one station's METEO file and resolves its
// coordinates. Any schema violation is a DataFormatError for this station
// only.
func (r *ICOS) parseStation(station, path string, siteInfoFiles map[string]string) (domain.Site, []domain.Observation, error) {
	swc, ts, ta, precip, err := r.readMeteo(station, path)
	if err != nil {
		return domain.Site{}, nil, err
	}

	site, err := r.readSiteInfo(station, path, siteInfoFiles)
	if err != nil {
		return domain.Site{}, nil, err
	}

	var obs []domain.Observation
	days := make([]time.Time, 0, len(swc))
	for d := range swc {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	for _, d := range days {
		soilTemp, hasTS := ts[d]
		// Frozen soil carries no usable moisture signal. Days without a
		// soil-temperature reading are dropped too, matching the
		// conservative filter the networks apply themselves.
		if !hasTS || soilTemp < 0 {
			continue
		}
		o := domain.Observation{
			SiteID:       station,
			Date:         d,
			SoilMoisture: swc[d],
			SoilTemp:     ptr(soilTemp),
		}
		if v, ok := ta[d]; ok {
			o.AirTemp = ptr(v)
		}
		if v, ok := precip[d]; ok {
			o.Precip = ptr(v)
		}
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return domain.Site{}, nil, &domain.DataFormatError{
			Station: station, Path: path,
			Err: fmt.Errorf("no usable observations"),
		}
	}

	return site, obs, nil
}

// readMeteo parses the METEO CSV into daily series per variable.
func (r *ICOS) readMeteo(station, path string) (swc, ts, ta, precip map[time.Time]float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, &domain.DataFormatError{Station: station, Path: path, Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, nil, nil, &domain.DataFormatError{Station: station, Path: path, Err: err}
	}
	if len(rows) < 2 {
		return nil, nil, nil, nil, &domain.DataFormatError{
			Station: station, Path: path, Err: fmt.Errorf("no data rows"),
		}
	}

	header := rows[0]
	tsCol := indexOf(header, "TIMESTAMP_START")
	pCol := indexOf(header, "P")
	swcCols := probeColumns(header, "SWC_")
	soilTempCols := probeColumns(header, "TS_")
	airTempCols := probeColumns(header, "TA_")
	if i := indexOf(header, "TA"); i >= 0 {
		airTempCols = append([]int{i}, airTempCols...)
	}

	if tsCol < 0 || pCol < 0 || len(swcCols) == 0 || len(soilTempCols) == 0 {
		return nil, nil, nil, nil, &domain.DataFormatError{
			Station: station, Path: path,
			Err: fmt.Errorf("missing required columns (need TIMESTAMP_START, P, SWC_n, TS_n)"),
		}
	}

	var swcSamples, soilSamples, airSamples, pSamples []domain.Sample
	for n, row := range rows[1:] {
		when, perr := time.ParseInLocation(icosTimestampFormat, strings.TrimSpace(row[tsCol]), time.UTC)
		if perr != nil {
			return nil, nil, nil, nil, &domain.DataFormatError{
				Station: station, Path: path,
				Err: fmt.Errorf("row %d: invalid TIMESTAMP_START %q", n+2, row[tsCol]),
			}
		}
		swcSamples = append(swcSamples, domain.Sample{Time: when, Value: probeMean(row, swcCols)})
		soilSamples = append(soilSamples, domain.Sample{Time: when, Value: probeMean(row, soilTempCols)})
		if len(airTempCols) > 0 {
			airSamples = append(airSamples, domain.Sample{Time: when, Value: probeMean(row, airTempCols)})
		}
		pSamples = append(pSamples, domain.Sample{Time: when, Value: icosValue(row, pCol)})
	}

	return domain.ResampleDailyMean(swcSamples),
		domain.ResampleDailyMean(soilSamples),
		domain.ResampleDailyMean(airSamples),
		domain.ResampleDailySum(pSamples),
		nil
}

// readSiteInfo resolves station coordinates from the *_SITEINFO.csv of
// VARIABLE/DATAVALUE pairs.
func (r *ICOS) readSiteInfo(station, meteoPath string, siteInfoFiles map[string]string) (domain.Site, error) {
	path, ok := siteInfoFiles[station]
	if !ok {
		return domain.Site{}, &domain.DataFormatError{
			Station: station, Path: meteoPath,
			Err: fmt.Errorf("no SITEINFO file for station"),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Site{}, &domain.DataFormatError{Station: station, Path: path, Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return domain.Site{}, &domain.DataFormatError{Station: station, Path: path, Err: err}
	}
	if len(rows) < 2 {
		return domain.Site{}, &domain.DataFormatError{
			Station: station, Path: path, Err: fmt.Errorf("no data rows"),
		}
	}

	varCol := indexOf(rows[0], "VARIABLE")
	valCol := indexOf(rows[0], "DATAVALUE")
	if varCol < 0 || valCol < 0 {
		return domain.Site{}, &domain.DataFormatError{
			Station: station, Path: path,
			Err: fmt.Errorf("missing VARIABLE/DATAVALUE columns"),
		}
	}

	values := make(map[string]string)
	for _, row := range rows[1:] {
		if varCol < len(row) && valCol < len(row) {
			values[strings.TrimSpace(row[varCol])] = strings.TrimSpace(row[valCol])
		}
	}

	lat, errLat := strconv.ParseFloat(values["LOCATION_LAT"], 64)
	lon, errLon := strconv.ParseFloat(values["LOCATION_LONG"], 64)
	if errLat != nil || errLon != nil {
		return domain.Site{}, &domain.DataFormatError{
			Station: station, Path: path,
			Err: fmt.Errorf("missing or invalid LOCATION_LAT/LOCATION_LONG"),
		}
	}

	return domain.Site{
		ID:        station,
		Name:      values["SITE_NAME"],
		Network:   domain.NetworkICOS,
		Latitude:  lat,
		Longitude: lon,
	}, nil
}

// findICOSFiles locates METEO and SITEINFO CSVs anywhere under the data
// directory. VARINFO files share the METEO suffix and are excluded.
func findICOSFiles(dataDir string) (meteo []string, siteInfo map[string]string, err error) {
	siteInfo = make(map[string]string)
	err = filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasSuffix(name, "_METEO_01.csv") && !strings.HasSuffix(name, "VARINFO_METEO_01.csv"):
			meteo = append(meteo, path)
		case strings.HasSuffix(name, "_SITEINFO.csv"):
			siteInfo[icosStationID(path)] = path
		}
		return nil
	})
	sort.Strings(meteo)
	return meteo, siteInfo, err
}

// icosStationID extracts the station code from an ICOS export filename,
// e.g. "ICOSETC_DE-Hai_METEO_01.csv" -> "DE-Hai".
func icosStationID(path string) string {
	parts := strings.Split(filepath.Base(path), "_")
	if len(parts) < 2 {
		return strings.TrimSuffix(filepath.Base(path), ".csv")
	}
	return parts[1]
}

// probeColumns returns the indexes of numbered probe columns, e.g. SWC_1,
// SWC_2 for prefix "SWC_".
func probeColumns(header []string, prefix string) []int {
	var cols []int
	for i, h := range header {
		if strings.HasPrefix(h, prefix) {
			cols = append(cols, i)
		}
	}
	return cols
}

// probeMean averages the probe readings in a row, treating the -9999
// sentinel and unparseable cells as missing.
func probeMean(row []string, cols []int) float64 {
	values := make([]float64, 0, len(cols))
	for _, c := range cols {
		values = append(values, icosValue(row, c))
	}
	return domain.MeanIgnoringNaN(values)
}

func icosValue(row []string, col int) float64 {
	if col >= len(row) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil || v == icosSentinel {
		return math.NaN()
	}
	return v
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func ptr(v float64) *float64 { return &v }
