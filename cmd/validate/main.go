// Command validate performs end-to-end integrity checks across the
// pipeline artifacts in the working directory: site metadata, the
// harmonized observation table, and the compiled training table. It
// verifies the schema contract the steps hand each other: key uniqueness,
// per-site date ordering, span consistency, and the drop-don't-fill
// invariant of the compiled table.
//
// Usage:
//
//	go run ./cmd/validate -settings settings.yml
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/soil-moisture-etl/internal/artifact"
	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	settings := flag.String("settings", "settings.yml", "path to the YAML settings file")
	flag.Parse()

	cfg, err := config.Load(*settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load settings: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	fmt.Println("=== Pipeline Artifact Validation ===")
	fmt.Println()

	net := cfg.Network()

	sites, err := artifact.ReadSiteInfo(cfg, net)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load site info: %v\n", err)
		return 1
	}
	obs, err := artifact.ReadObservations(cfg, net)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load observations: %v\n", err)
		return 1
	}
	columns, rows, err := artifact.ReadCompiled(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load compiled table: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSiteMetadata(sites, obs),
		validateObservations(obs),
		validateCompiled(cfg, columns, rows, obs),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-44s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d sites, %d observations, %d compiled rows, %d compiled columns\n",
		len(sites), len(obs), len(rows), len(columns))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// Phase 1: every observation belongs to a known site and falls within the
// site's recorded span, and every site has at least one observation.
func validateSiteMetadata(sites []domain.Site, obs []domain.Observation) *phase {
	p := &phase{name: "Phase 1: Site metadata"}

	byID := make(map[string]domain.Site, len(sites))
	for _, s := range sites {
		if _, dup := byID[s.ID]; dup {
			p.errorf("duplicate site ID %q", s.ID)
		}
		byID[s.ID] = s
		if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
			p.errorf("site %q: coordinates out of range (%g, %g)", s.ID, s.Latitude, s.Longitude)
		}
		if s.EndDate.Before(s.StartDate) {
			p.errorf("site %q: end date precedes start date", s.ID)
		}
	}

	seen := make(map[string]bool, len(byID))
	for _, o := range obs {
		s, ok := byID[o.SiteID]
		if !ok {
			p.errorf("observation for unknown site %q on %s", o.SiteID, o.Date.Format(artifact.DateFormat))
			continue
		}
		seen[o.SiteID] = true
		if o.Date.Before(s.StartDate) || o.Date.After(s.EndDate) {
			p.errorf("site %q: observation on %s outside recorded span [%s, %s]",
				o.SiteID, o.Date.Format(artifact.DateFormat),
				s.StartDate.Format(artifact.DateFormat), s.EndDate.Format(artifact.DateFormat))
		}
	}
	for id := range byID {
		if !seen[id] {
			p.errorf("site %q has no observations", id)
		}
	}
	return p
}

// Phase 2: (site, date) keys are unique, rows are sorted by site then
// date, and dates are midnight UTC.
func validateObservations(obs []domain.Observation) *phase {
	p := &phase{name: "Phase 2: Observation table"}

	seen := make(map[string]bool, len(obs))
	var prev domain.Observation
	for i, o := range obs {
		key := o.SiteID + "|" + o.Date.Format(artifact.DateFormat)
		if seen[key] {
			p.errorf("duplicate (site, date) key %s", key)
		}
		seen[key] = true

		if !o.Date.Equal(domain.Day(o.Date)) {
			p.errorf("row %d: date %s is not midnight UTC", i+2, o.Date)
		}
		if math.IsNaN(o.SoilMoisture) {
			p.errorf("row %d: soil moisture is NaN", i+2)
		}

		if i > 0 && o.SiteID == prev.SiteID && !prev.Date.Before(o.Date) {
			p.errorf("row %d: dates not strictly increasing within site %q", i+2, o.SiteID)
		}
		if i > 0 && o.SiteID < prev.SiteID {
			p.errorf("row %d: sites not sorted (%q after %q)", i+2, o.SiteID, prev.SiteID)
		}
		prev = o
	}
	return p
}

// Phase 3: every compiled row matches a harmonized observation exactly,
// carries every requested covariate column, and has no missing cells.
func validateCompiled(cfg *config.Config, columns []string, rows []domain.TrainingRow, obs []domain.Observation) *phase {
	p := &phase{name: "Phase 3: Compiled table"}

	colSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		colSet[c] = true
	}
	for _, v := range cfg.Variables {
		if !colSet[v] {
			p.errorf("requested covariate %q missing from compiled columns %v", v, columns)
		}
	}

	obsByKey := make(map[string]domain.Observation, len(obs))
	for _, o := range obs {
		obsByKey[o.SiteID+"|"+o.Date.Format(artifact.DateFormat)] = o
	}

	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		key := row.SiteID + "|" + row.Date.Format(artifact.DateFormat)
		if seen[key] {
			p.errorf("compiled row %d: duplicate key %s", i+2, key)
		}
		seen[key] = true

		o, ok := obsByKey[key]
		if !ok {
			p.errorf("compiled row %d: no matching observation for %s", i+2, key)
			continue
		}
		if math.Abs(row.SoilMoisture-o.SoilMoisture) > 1e-9 {
			p.errorf("compiled row %d: SWC %g does not match observation %g", i+2, row.SoilMoisture, o.SoilMoisture)
		}

		for _, c := range columns {
			v, ok := row.Values[c]
			if !ok || math.IsNaN(v) {
				p.errorf("compiled row %d: column %q missing or NaN", i+2, c)
			}
		}
	}
	return p
}
