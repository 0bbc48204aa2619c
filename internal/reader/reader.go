// Package reader converts network-specific raw station archives into the
// shared site and observation schema. Each network is one Reader
// implementation; downstream steps never see network-specific structure.
package reader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// Warning records a station that was skipped during a run. Field data
// networks routinely contain malformed per-station files, so these are
// collected and reported instead of aborting the whole run.
type Warning struct {
	Station string
	Err     error
}

// Result carries everything a reader run produces. Sites and Observations
// honor the shared schema invariants: one site per station, unique
// (site, date) pairs.
type Result struct {
	Sites        []domain.Site
	Observations []domain.Observation
	Warnings     []Warning
}

// Reader parses one network's raw archive.
type Reader interface {
	// Network identifies which network this reader handles.
	Network() domain.Network

	// Initialize parses the raw archive under cfg.DataDir and harmonizes
	// it. Fatal errors (unreadable paths, bad configuration) abort the run;
	// per-station failures are returned as Result.Warnings.
	Initialize(ctx context.Context, cfg *config.Config) (*Result, error)
}

// ForNetwork returns the reader for a configured data source.
func ForNetwork(net domain.Network, logger *slog.Logger) (Reader, error) {
	switch net {
	case domain.NetworkICOS:
		return NewICOS(logger), nil
	case domain.NetworkISMN:
		return NewISMN(logger), nil
	default:
		return nil, fmt.Errorf("no reader for network %q", net)
	}
}

// dedupe enforces the (site, date) uniqueness invariant, keeping the first
// occurrence, and recomputes each site's observation span from the rows
// that survived.
func dedupe(res *Result) {
	seen := make(map[string]bool, len(res.Observations))
	kept := res.Observations[:0]
	for _, o := range res.Observations {
		key := o.SiteID + "|" + o.Date.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, o)
	}
	res.Observations = kept

	for i := range res.Sites {
		site := &res.Sites[i]
		first := true
		for _, o := range res.Observations {
			if o.SiteID != site.ID {
				continue
			}
			if first || o.Date.Before(site.StartDate) {
				site.StartDate = o.Date
			}
			if first || o.Date.After(site.EndDate) {
				site.EndDate = o.Date
			}
			first = false
		}
	}
}
