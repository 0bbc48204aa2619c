package domain

import "time"

// Network identifies the station network a site belongs to.
type Network string

const (
	NetworkICOS Network = "ICOS"
	NetworkISMN Network = "ISMN"
)

// ParseNetwork validates a network name from configuration.
// Accepts: "ICOS", "ISMN" (exact matches only).
func ParseNetwork(value string) (Network, bool) {
	switch Network(value) {
	case NetworkICOS, NetworkISMN:
		return Network(value), true
	default:
		return "", false
	}
}

// Site identifies a single measuring station. Created once per reader run
// and immutable thereafter.
type Site struct {
	ID        string
	Name      string
	Network   Network
	Latitude  float64 // WGS-84
	Longitude float64 // WGS-84

	// Sensor depth range in metres below surface. Present for ISMN sites,
	// where depth is part of the sensor identity; nil for ICOS.
	DepthFrom *float64
	DepthTo   *float64

	// Observation span, both midnight UTC. Bounds the covariate queries
	// issued for this site during compilation.
	StartDate time.Time
	EndDate   time.Time
}

// Observation is one harmonized daily record for a site. SoilMoisture is
// always present; auxiliary variables are nil when the network or station
// does not report them.
type Observation struct {
	SiteID string
	Date   time.Time // midnight UTC

	SoilMoisture float64  // SWC, volumetric %
	SoilTemp     *float64 // TS, degrees C
	AirTemp      *float64 // TA, degrees C
	Precip       *float64 // P, mm/day
}

// TrainingRow is one compiled record, keyed by (site, day). Values holds
// every non-target column by variable code; a row is only constructed when
// all requested columns are present (see pipeline).
type TrainingRow struct {
	SiteID       string
	Date         time.Time // midnight UTC
	SoilMoisture float64
	Values       map[string]float64
}

// Day truncates a timestamp to midnight UTC, the resolution every artifact
// is keyed on.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayRange returns every day from start through end inclusive, both
// truncated to midnight UTC.
func DayRange(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
