package artifact

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// siteEntry is the YAML layout of a single site record, keyed by site ID in
// the siteinfo file.
type siteEntry struct {
	Name      string   `yaml:"name,omitempty"`
	Network   string   `yaml:"network"`
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
	DepthFrom *float64 `yaml:"depth_from,omitempty"`
	DepthTo   *float64 `yaml:"depth_to,omitempty"`
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
}

// WriteSiteInfo writes the site metadata artifact for a network,
// overwriting any previous run. yaml.v3 sorts map keys, which keeps the
// file deterministic.
func WriteSiteInfo(cfg *config.Config, net domain.Network, sites []domain.Site) error {
	entries := make(map[string]siteEntry, len(sites))
	for _, s := range sites {
		entries[s.ID] = siteEntry{
			Name:      s.Name,
			Network:   string(s.Network),
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			DepthFrom: s.DepthFrom,
			DepthTo:   s.DepthTo,
			StartDate: s.StartDate.Format(DateFormat),
			EndDate:   s.EndDate.Format(DateFormat),
		}
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal site info: %w", err)
	}
	if err := os.WriteFile(SiteInfoPath(cfg, net), data, 0o644); err != nil {
		return fmt.Errorf("write site info: %w", err)
	}
	return nil
}

// ReadSiteInfo loads the site metadata artifact, returning sites sorted by
// ID.
func ReadSiteInfo(cfg *config.Config, net domain.Network) ([]domain.Site, error) {
	path := SiteInfoPath(cfg, net)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site info: %w", err)
	}

	var entries map[string]siteEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("read site info %s: %w", path, err)
	}

	sites := make([]domain.Site, 0, len(entries))
	for id, e := range entries {
		start, err := parseDay(e.StartDate)
		if err != nil {
			return nil, fmt.Errorf("read site info %s: site %q: %w", path, id, err)
		}
		end, err := parseDay(e.EndDate)
		if err != nil {
			return nil, fmt.Errorf("read site info %s: site %q: %w", path, id, err)
		}
		sites = append(sites, domain.Site{
			ID:        id,
			Name:      e.Name,
			Network:   domain.Network(e.Network),
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
			DepthFrom: e.DepthFrom,
			DepthTo:   e.DepthTo,
			StartDate: start,
			EndDate:   end,
		})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })
	return sites, nil
}

// formatFloat renders a value with the shortest representation that
// round-trips, keeping artifacts stable across runs.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}
