// Command genfixture generates synthetic raw station archives and platform
// response fixtures for the test suites and for exercising the pipeline
// end to end without network-portal downloads. It uses deterministic
// formulas (no randomness) so regenerated fixtures are byte-stable.
//
// Usage:
//
//	go run ./cmd/genfixture -out testdata/fixtures [-days 30] [-malformed]
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var baseDate = time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for fixture archives")
	days := flag.Int("days", 30, "number of days of synthetic readings")
	malformed := flag.Bool("malformed", false, "include a malformed ICOS station file")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	if err := writeICOS(filepath.Join(*out, "icos"), *days, *malformed); err != nil {
		return fmt.Errorf("writing ICOS archive: %w", err)
	}
	if err := writeISMN(filepath.Join(*out, "ismn"), *days); err != nil {
		return fmt.Errorf("writing ISMN archive: %w", err)
	}
	if err := writePlatform(filepath.Join(*out, "platform"), *days); err != nil {
		return fmt.Errorf("writing platform fixtures: %w", err)
	}

	log.Printf("fixtures written to %s", *out)
	return nil
}

// ── ICOS ──

type icosStation struct {
	id       string
	name     string
	lat, lon float64
}

var icosStations = []icosStation{
	{id: "SE-Deg", name: "Degero", lat: 64.182, lon: 19.557},
	{id: "DE-Hai", name: "Hainich", lat: 51.079, lon: 10.453},
}

func writeICOS(dir string, days int, malformed bool) error {
	for _, st := range icosStations {
		stDir := filepath.Join(dir, st.id)
		if err := os.MkdirAll(stDir, 0o755); err != nil {
			return err
		}

		rows := [][]string{{"TIMESTAMP_START", "P", "TA", "SWC_1", "SWC_2", "TS_1"}}
		for d := 0; d < days; d++ {
			day := baseDate.AddDate(0, 0, d)
			// Four readings per day so daily resampling has work to do.
			for h := 0; h < 24; h += 6 {
				when := day.Add(time.Duration(h) * time.Hour)
				swc1 := 22 + 4*math.Sin(float64(d)/5)
				swc2 := swc1 + 1.5
				ts := 6 + 5*math.Sin(float64(d)/7)
				ta := ts + 4
				p := 0.0
				if d%5 == 0 && h == 12 {
					p = 3.2
				}
				row := []string{
					when.Format("200601021504"),
					num(p), num(ta), num(swc1), num(swc2), num(ts),
				}
				// A second probe drops out occasionally; the sentinel must
				// not leak into the harmonized output.
				if d%9 == 0 && h == 0 {
					row[4] = "-9999"
				}
				rows = append(rows, row)
			}
		}
		if err := writeCSV(filepath.Join(stDir, fmt.Sprintf("ICOSETC_%s_METEO_01.csv", st.id)), rows); err != nil {
			return err
		}

		info := [][]string{
			{"VARIABLE", "DATAVALUE"},
			{"SITE_NAME", st.name},
			{"LOCATION_LAT", num(st.lat)},
			{"LOCATION_LONG", num(st.lon)},
		}
		if err := writeCSV(filepath.Join(stDir, fmt.Sprintf("ICOSETC_%s_SITEINFO.csv", st.id)), info); err != nil {
			return err
		}
	}

	if malformed {
		stDir := filepath.Join(dir, "XX-Bad")
		if err := os.MkdirAll(stDir, 0o755); err != nil {
			return err
		}
		rows := [][]string{
			{"TIMESTAMP_START", "RANDOM"},
			{baseDate.Format("200601021504"), "1"},
		}
		if err := writeCSV(filepath.Join(stDir, "ICOSETC_XX-Bad_METEO_01.csv"), rows); err != nil {
			return err
		}
	}
	return nil
}

// ── ISMN ──

type ismnStation struct {
	name     string
	lat, lon float64
}

var ismnStations = []ismnStation{
	{name: "SOD041", lat: 67.362, lon: 26.633},
	{name: "SAA111", lat: 68.333, lon: 27.552},
}

func writeISMN(dir string, days int) error {
	const network = "FMI"
	for _, st := range ismnStations {
		stDir := filepath.Join(dir, network, st.name)
		if err := os.MkdirAll(stDir, 0o755); err != nil {
			return err
		}

		header := func(depthFrom, depthTo float64, sensor, variable string) string {
			return fmt.Sprintf("%s %s %s %s 180.00 %s %s %s %s",
				network, st.name, num(st.lat), num(st.lon),
				num(depthFrom), num(depthTo), sensor, variable)
		}

		var sm, ts, snow []string
		sm = append(sm, header(0.00, 0.05, "5TE", "soil_moisture"))
		ts = append(ts, header(0.00, 0.05, "5TE", "soil_temperature"))
		snow = append(snow, header(0.00, 0.00, "SHM30", "snow_depth"))

		for d := 0; d < days; d++ {
			day := baseDate.AddDate(0, 0, d)
			for h := 0; h < 24; h += 12 {
				when := day.Add(time.Duration(h) * time.Hour)
				stamp := when.Format("2006/01/02 15:04")
				moisture := 0.18 + 0.05*math.Sin(float64(d)/6)
				temp := 4 + 6*math.Sin(float64(d)/8)
				flag := "G"
				if d%11 == 0 && h == 0 {
					flag = "M" // flagged readings must be ignored
				}
				sm = append(sm, fmt.Sprintf("%s %s %s", stamp, num(moisture), flag))
				ts = append(ts, fmt.Sprintf("%s %s G", stamp, num(temp)))
				depth := 0.0
				if d < 3 { // snow cover at the start of the range
					depth = 0.12
				}
				snow = append(snow, fmt.Sprintf("%s %s G", stamp, num(depth)))
			}
		}

		files := map[string][]string{
			fmt.Sprintf("%s_%s_sm_0.00_0.05.stm", network, st.name):   sm,
			fmt.Sprintf("%s_%s_ts_0.00_0.05.stm", network, st.name):   ts,
			fmt.Sprintf("%s_%s_snow_0.00_0.00.stm", network, st.name): snow,
		}
		for name, lines := range files {
			if err := os.WriteFile(filepath.Join(stDir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// ── Platform ──

// writePlatform emits one response JSON per dataset, shaped like the
// platform's /v1/timeseries payload, for serving from a stub server.
func writePlatform(dir string, days int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	type sample struct {
		Date   string             `json:"date"`
		Values map[string]float64 `json:"values"`
	}

	datasets := map[string]func(d int) map[string]float64{
		"MODIS_MOD11A1": func(d int) map[string]float64 {
			// Digital numbers: 0.02 scale, Kelvin.
			return map[string]float64{"LST_Day_1km": (283 + 5*math.Sin(float64(d)/7)) / 0.02}
		},
		"COPERNICUS_S1_GRD": func(d int) map[string]float64 {
			if d%6 != 0 { // 6-day revisit
				return nil
			}
			return map[string]float64{"VV": -11 - math.Sin(float64(d) / 4), "VH": -17 - math.Sin(float64(d)/4)}
		},
		"COPERNICUS_S2_SR": func(d int) map[string]float64 {
			if d%5 != 0 { // revisit plus cloud losses
				return nil
			}
			return map[string]float64{"B4": 600, "B8": 2800, "B8A": 2900, "B11": 1400}
		},
		"ECMWF_ERA5_DAILY": func(d int) map[string]float64 {
			p := 0.0
			if d%5 == 0 {
				p = 0.0032 // metres
			}
			return map[string]float64{
				"mean_2m_air_temperature": 281 + 6*math.Sin(float64(d)/9),
				"total_precipitation":     p,
			}
		},
	}

	for name, gen := range datasets {
		var samples []sample
		for d := 0; d < days; d++ {
			values := gen(d)
			if values == nil {
				continue
			}
			samples = append(samples, sample{
				Date:   baseDate.AddDate(0, 0, d).Format("2006-01-02"),
				Values: values,
			})
		}
		payload := map[string]any{"samples": samples}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ── helpers ──

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func num(v float64) string {
	return fmt.Sprintf("%g", v)
}
