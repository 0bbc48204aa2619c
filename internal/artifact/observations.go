package artifact

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// observationHeader is the shared, network-agnostic schema. Networks that
// do not report an auxiliary variable leave its cells empty.
var observationHeader = []string{"DATE", "SITE", "SWC", "TS", "TA", "P"}

// WriteObservations writes the harmonized observation table for a network,
// overwriting any previous run. Rows are sorted by (site, date) so output
// is deterministic regardless of parse order.
func WriteObservations(cfg *config.Config, net domain.Network, obs []domain.Observation) error {
	sorted := make([]domain.Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SiteID != sorted[j].SiteID {
			return sorted[i].SiteID < sorted[j].SiteID
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	path := ObservationsPath(cfg, net)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write observations: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(observationHeader); err != nil {
		return fmt.Errorf("write observations header: %w", err)
	}
	for _, o := range sorted {
		row := []string{
			o.Date.Format(DateFormat),
			o.SiteID,
			formatFloat(o.SoilMoisture),
			formatOptional(o.SoilTemp),
			formatOptional(o.AirTemp),
			formatOptional(o.Precip),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write observation row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush observations: %w", err)
	}
	return f.Close()
}

// ReadObservations loads a harmonized observation table written by a
// reader run.
func ReadObservations(cfg *config.Config, net domain.Network) ([]domain.Observation, error) {
	path := ObservationsPath(cfg, net)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read observations %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read observations %s: missing header", path)
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[h] = i
	}
	for _, col := range observationHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("read observations %s: missing column %q", path, col)
		}
	}

	obs := make([]domain.Observation, 0, len(rows)-1)
	for n, row := range rows[1:] {
		date, err := parseDay(row[idx["DATE"]])
		if err != nil {
			return nil, fmt.Errorf("read observations %s row %d: %w", path, n+2, err)
		}
		swc, err := strconv.ParseFloat(row[idx["SWC"]], 64)
		if err != nil {
			return nil, fmt.Errorf("read observations %s row %d: invalid SWC %q", path, n+2, row[idx["SWC"]])
		}
		obs = append(obs, domain.Observation{
			SiteID:       row[idx["SITE"]],
			Date:         date,
			SoilMoisture: swc,
			SoilTemp:     parseOptional(row[idx["TS"]]),
			AirTemp:      parseOptional(row[idx["TA"]]),
			Precip:       parseOptional(row[idx["P"]]),
		})
	}
	return obs, nil
}
