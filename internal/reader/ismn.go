package reader

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// ismnTimestampFormat parses the date/time pair in .stm data rows.
const ismnTimestampFormat = "2006/01/02 15:04"

// ISMN reads CEOP-style .stm sensor files from an ISMN archive download.
// One file per (station, variable, depth): a header line with the station
// identity, coordinates, and sensor depth, then timestamped readings with a
// quality flag. Only "G" (good) readings are used.
type ISMN struct {
	logger *slog.Logger
}

// NewISMN creates the ISMN archive reader.
func NewISMN(logger *slog.Logger) *ISMN {
	return &ISMN{logger: logger}
}

func (r *ISMN) Network() domain.Network { return domain.NetworkISMN }

// ismnStation accumulates sensor readings for one station across files.
type ismnStation struct {
	lat, lon  float64
	smSamples []domain.Sample
	stSamples []domain.Sample
	snowDays  map[time.Time]bool
}

// Initialize parses every .stm file under the data directory (restricted
// to cfg.NetworkName when set). Soil-moisture sensors are filtered to the
// configured depth range and scaled to volumetric percent; soil
// temperature merges on (site, day); days with snow cover are discarded.
func (r *ISMN) Initialize(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.RequireDataDir(); err != nil {
		return nil, err
	}

	root := cfg.DataDir
	if cfg.NetworkName != "" {
		root = filepath.Join(cfg.DataDir, cfg.NetworkName)
		if _, err := os.Stat(root); err != nil {
			return nil, &domain.ConfigError{Field: "network_name", Err: err}
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".stm") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ConfigError{Field: "data_dir", Err: err}
	}
	if len(files) == 0 {
		return nil, &domain.ConfigError{
			Field: "data_dir",
			Err:   fmt.Errorf("no .stm files under %s", root),
		}
	}
	sort.Strings(files)

	depthFrom, depthTo := cfg.DepthRange()
	stations := make(map[string]*ismnStation)
	bad := make(map[string]error)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		station, err := r.parseSensorFile(path, depthFrom, depthTo, stations)
		if err != nil {
			if station == "" {
				station = filepath.Base(filepath.Dir(path))
			}
			// One bad sensor file poisons the whole station: a partial
			// station record would silently bias the training data.
			if _, seen := bad[station]; !seen {
				bad[station] = err
			}
		}
	}

	res := &Result{}
	names := make([]string, 0, len(stations))
	for name := range stations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err, skip := bad[name]; skip {
			r.logger.Warn("station skipped", "network", "ISMN", "station", name, "error", err)
			res.Warnings = append(res.Warnings, Warning{Station: name, Err: err})
			continue
		}
		st := stations[name]
		obs := r.stationObservations(name, st)
		if len(obs) == 0 {
			err := &domain.DataFormatError{Station: name, Err: fmt.Errorf("no usable observations")}
			r.logger.Warn("station skipped", "network", "ISMN", "station", name, "error", err)
			res.Warnings = append(res.Warnings, Warning{Station: name, Err: err})
			continue
		}
		res.Sites = append(res.Sites, domain.Site{
			ID:        name,
			Network:   domain.NetworkISMN,
			Latitude:  st.lat,
			Longitude: st.lon,
			DepthFrom: ptr(depthFrom),
			DepthTo:   ptr(depthTo),
		})
		res.Observations = append(res.Observations, obs...)
	}

	for name, err := range bad {
		if _, known := stations[name]; !known {
			r.logger.Warn("station skipped", "network", "ISMN", "station", name, "error", err)
			res.Warnings = append(res.Warnings, Warning{Station: name, Err: err})
		}
	}
	sort.Slice(res.Warnings, func(i, j int) bool { return res.Warnings[i].Station < res.Warnings[j].Station })

	dedupe(res)
	return res, nil
}

// stationObservations resamples one station's readings to daily values:
// soil moisture scaled to volumetric percent, soil temperature merged on
// day, snow-covered days discarded.
func (r *ISMN) stationObservations(name string, st *ismnStation) []domain.Observation {
	sm := domain.ResampleDailyMean(st.smSamples)
	soilTemp := domain.ResampleDailyMean(st.stSamples)

	days := make([]time.Time, 0, len(sm))
	for d := range sm {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var obs []domain.Observation
	for _, d := range days {
		if st.snowDays[d] {
			continue
		}
		o := domain.Observation{
			SiteID:       name,
			Date:         d,
			SoilMoisture: sm[d] * 100, // fractional volumetric content to percent
		}
		if v, ok := soilTemp[d]; ok {
			o.SoilTemp = ptr(v)
		}
		obs = append(obs, o)
	}
	return obs
}

// parseSensorFile reads one .stm file into the station accumulator. Returns
// the station name (when the header was readable) and any format error.
func (r *ISMN) parseSensorFile(path string, depthFrom, depthTo float64, stations map[string]*ismnStation) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &domain.DataFormatError{Path: path, Err: err}
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return "", &domain.DataFormatError{Path: path, Err: fmt.Errorf("empty file")}
	}

	h, err := parseISMNHeader(sc.Text())
	if err != nil {
		return "", &domain.DataFormatError{Path: path, Err: err}
	}

	st, ok := stations[h.station]
	if !ok {
		st = &ismnStation{lat: h.lat, lon: h.lon, snowDays: make(map[time.Time]bool)}
		stations[h.station] = st
	}

	// Sensor selection mirrors the archive conventions: soil sensors are
	// matched against the configured depth window, snow depth is a surface
	// reading.
	switch h.variable {
	case "soil_moisture", "soil_temperature":
		if h.depthFrom < depthFrom || h.depthTo > depthTo {
			return h.station, nil
		}
	case "snow_depth":
		if h.depthFrom != 0 || h.depthTo != 0 {
			return h.station, nil
		}
	default:
		return h.station, nil
	}

	lineNum := 1
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return h.station, &domain.DataFormatError{
				Station: h.station, Path: path,
				Err: fmt.Errorf("line %d: want \"date time value flag\", got %d fields", lineNum, len(fields)),
			}
		}
		when, err := time.ParseInLocation(ismnTimestampFormat, fields[0]+" "+fields[1], time.UTC)
		if err != nil {
			return h.station, &domain.DataFormatError{
				Station: h.station, Path: path,
				Err: fmt.Errorf("line %d: invalid timestamp %q", lineNum, fields[0]+" "+fields[1]),
			}
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return h.station, &domain.DataFormatError{
				Station: h.station, Path: path,
				Err: fmt.Errorf("line %d: invalid value %q", lineNum, fields[2]),
			}
		}
		if fields[3] != "G" {
			continue
		}

		switch h.variable {
		case "soil_moisture":
			st.smSamples = append(st.smSamples, domain.Sample{Time: when, Value: value})
		case "soil_temperature":
			st.stSamples = append(st.stSamples, domain.Sample{Time: when, Value: value})
		case "snow_depth":
			if value > 0 {
				st.snowDays[domain.Day(when)] = true
			}
		}
	}
	if err := sc.Err(); err != nil {
		return h.station, &domain.DataFormatError{Station: h.station, Path: path, Err: err}
	}
	return h.station, nil
}

// ismnHeader is the parsed first line of a .stm file.
type ismnHeader struct {
	network   string
	station   string
	lat, lon  float64
	elevation float64
	depthFrom float64
	depthTo   float64
	sensor    string
	variable  string
}

// parseISMNHeader parses the CEOP-style header line:
//
//	network station lat lon elevation depth_from depth_to sensor variable
func parseISMNHeader(line string) (ismnHeader, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 9 {
		return ismnHeader{}, fmt.Errorf("header: want 9 fields, got %d", len(fields))
	}

	var h ismnHeader
	h.network = fields[0]
	h.station = fields[1]

	floats := make([]float64, 5)
	for i, f := range fields[2:7] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ismnHeader{}, fmt.Errorf("header: invalid numeric field %q", f)
		}
		floats[i] = v
	}
	h.lat, h.lon, h.elevation, h.depthFrom, h.depthTo = floats[0], floats[1], floats[2], floats[3], floats[4]
	h.sensor = fields[7]
	h.variable = fields[8]
	return h, nil
}
