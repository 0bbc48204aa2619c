// Package artifact implements the on-disk handoff contract between pipeline
// steps. Artifact names are fixed: the compiler locates reader output purely
// by name, so renaming an artifact breaks the pipeline. All writes are
// deterministic (sorted rows, stable float formatting) so rerunning a step
// on identical input produces byte-identical files.
package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// DateFormat is the calendar-day format used in every artifact.
const DateFormat = "2006-01-02"

// ObservationsPath returns the harmonized observation table path for a
// network: {wrk_dir}/{project}_{NET}_Dataframe.csv.
func ObservationsPath(cfg *config.Config, net domain.Network) string {
	return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s_%s_Dataframe.csv", cfg.ProjectName, net))
}

// SiteInfoPath returns the site metadata path for a network:
// {wrk_dir}/{project}_{NET}_siteinfo.yml.
func SiteInfoPath(cfg *config.Config, net domain.Network) string {
	return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s_%s_siteinfo.yml", cfg.ProjectName, net))
}

// CompiledPath returns the compiled training table path:
// {wrk_dir}/{project}_compiled_dataframe.csv.
func CompiledPath(cfg *config.Config) string {
	return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s_compiled_dataframe.csv", cfg.ProjectName))
}
