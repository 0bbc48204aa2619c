package domain

import (
	"context"
	"time"
)

// Series is a daily point time series keyed by day (midnight UTC), then by
// band name. Days the platform has no imagery for are simply absent.
type Series map[time.Time]map[string]float64

// SeriesQuery identifies one point extraction from the geospatial
// platform: a dataset's bands sampled at a coordinate over a date range.
type SeriesQuery struct {
	Dataset   string
	Bands     []string
	Latitude  float64
	Longitude float64
	Start     time.Time
	End       time.Time
}

// CovariateSource fetches daily covariate series from the external
// geospatial platform.
type CovariateSource interface {
	// FetchSeries returns the daily series for a query. An empty series
	// (not an error) means the platform holds no data for the site and
	// range; credential rejections surface as *AuthError.
	FetchSeries(ctx context.Context, q SeriesQuery) (Series, error)
}
