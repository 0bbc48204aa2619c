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

// WriteCompiled writes the compiled training table. columns lists every
// non-target column in output order; each row must carry all of them (the
// compiler drops incomplete rows before calling in here, and this guards
// the invariant a second time rather than emitting a blank cell).
func WriteCompiled(cfg *config.Config, columns []string, rows []domain.TrainingRow) error {
	sorted := make([]domain.TrainingRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SiteID != sorted[j].SiteID {
			return sorted[i].SiteID < sorted[j].SiteID
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	path := CompiledPath(cfg)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write compiled table: %w", err)
	}
	defer f.Close()

	header := append([]string{"Date", "SITE", "SWC"}, columns...)
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write compiled header: %w", err)
	}

	for _, row := range sorted {
		record := make([]string, 0, len(header))
		record = append(record, row.Date.Format(DateFormat), row.SiteID, formatFloat(row.SoilMoisture))
		for _, col := range columns {
			v, ok := row.Values[col]
			if !ok {
				return fmt.Errorf("write compiled table: row (%s, %s) missing column %q",
					row.SiteID, row.Date.Format(DateFormat), col)
			}
			record = append(record, formatFloat(v))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write compiled row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush compiled table: %w", err)
	}
	return f.Close()
}

// ReadCompiled loads the compiled training table, returning the non-target
// column names alongside the rows. Used by cmd/validate.
func ReadCompiled(cfg *config.Config) ([]string, []domain.TrainingRow, error) {
	path := CompiledPath(cfg)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read compiled table: %w", err)
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read compiled table %s: %w", path, err)
	}
	if len(all) == 0 || len(all[0]) < 3 {
		return nil, nil, fmt.Errorf("read compiled table %s: malformed header", path)
	}
	if all[0][0] != "Date" || all[0][1] != "SITE" || all[0][2] != "SWC" {
		return nil, nil, fmt.Errorf("read compiled table %s: unexpected header %v", path, all[0][:3])
	}
	columns := all[0][3:]

	rows := make([]domain.TrainingRow, 0, len(all)-1)
	for n, rec := range all[1:] {
		if len(rec) != len(all[0]) {
			return nil, nil, fmt.Errorf("read compiled table %s row %d: want %d fields, got %d",
				path, n+2, len(all[0]), len(rec))
		}
		date, err := parseDay(rec[0])
		if err != nil {
			return nil, nil, fmt.Errorf("read compiled table %s row %d: %w", path, n+2, err)
		}
		swc, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("read compiled table %s row %d: invalid SWC %q", path, n+2, rec[2])
		}
		values := make(map[string]float64, len(columns))
		for i, col := range columns {
			v, err := strconv.ParseFloat(rec[3+i], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("read compiled table %s row %d: invalid %s %q", path, n+2, col, rec[3+i])
			}
			values[col] = v
		}
		rows = append(rows, domain.TrainingRow{
			SiteID:       rec[1],
			Date:         date,
			SoilMoisture: swc,
			Values:       values,
		})
	}
	return columns, rows, nil
}
