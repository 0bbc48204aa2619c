package domain

import (
	"fmt"
	"time"
)

// The pipeline's error taxonomy. Configuration and Authentication errors
// abort a step; DataFormat and DataAvailability errors are collected per
// station or per (site, day) and the run continues.

// ConfigError reports a missing or invalid settings field or path.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: field %q is required", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DataFormatError reports a raw station file that violates the expected
// schema. Recoverable: the station is skipped and the error recorded.
type DataFormatError struct {
	Station string
	Path    string
	Err     error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("data format: station %q (%s): %v", e.Station, e.Path, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// AuthError reports a credential rejection by the external platform. Fatal
// for the compile step.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication: platform rejected credentials (status %d): %s", e.Status, e.Detail)
}

// DataAvailabilityError reports a covariate that could not be resolved for
// a site and time range, typically cloud cover or sensor gaps. Recoverable:
// the affected rows are dropped.
type DataAvailabilityError struct {
	SiteID   string
	Variable string
	Day      time.Time // zero when the whole range is unavailable
}

func (e *DataAvailabilityError) Error() string {
	if e.Day.IsZero() {
		return fmt.Sprintf("data availability: %s unavailable for site %q", e.Variable, e.SiteID)
	}
	return fmt.Sprintf("data availability: %s unavailable for site %q on %s",
		e.Variable, e.SiteID, e.Day.Format("2006-01-02"))
}
