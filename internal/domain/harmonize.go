package domain

import (
	"math"
	"time"
)

// Sample is a single timestamped sensor reading. Missing readings are
// represented as NaN so resampling can skip them without special cases.
type Sample struct {
	Time  time.Time
	Value float64
}

// ResampleDailyMean averages samples into daily bins, ignoring NaN values.
// Days with no valid sample are absent from the result.
func ResampleDailyMean(samples []Sample) map[time.Time]float64 {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, s := range samples {
		if math.IsNaN(s.Value) {
			continue
		}
		d := Day(s.Time)
		sums[d] += s.Value
		counts[d]++
	}
	out := make(map[time.Time]float64, len(sums))
	for d, sum := range sums {
		out[d] = sum / float64(counts[d])
	}
	return out
}

// ResampleDailySum totals samples into daily bins, ignoring NaN values.
// Used for precipitation, where averaging sub-daily readings would
// understate the daily total.
func ResampleDailySum(samples []Sample) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	for _, s := range samples {
		if math.IsNaN(s.Value) {
			continue
		}
		out[Day(s.Time)] += s.Value
	}
	return out
}

// MeanIgnoringNaN averages probe readings taken at the same instant,
// skipping missing probes. Returns NaN when every probe is missing.
func MeanIgnoringNaN(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// KelvinToCelsius converts an absolute temperature to degrees Celsius.
func KelvinToCelsius(v float64) float64 { return v - 273.15 }

// LSTToCelsius converts a MODIS MOD11A1 land-surface temperature digital
// number (0.02 scale factor, Kelvin) to degrees Celsius.
func LSTToCelsius(v float64) float64 { return KelvinToCelsius(v * 0.02) }

// MetresToMillimetres converts ERA5 precipitation depth to mm.
func MetresToMillimetres(v float64) float64 { return v * 1000 }

// VegetationIndex computes a normalized difference index (a-b)/(a+b),
// e.g. NDVI from B8/B4 or NDWI from B8A/B11. Returns NaN when either band
// is missing or the denominator is zero.
func VegetationIndex(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || a+b == 0 {
		return math.NaN()
	}
	return (a - b) / (a + b)
}

// DryDayStreaks derives the consecutive dry-day counter from a daily
// precipitation series: 0 on wet days (P > 0), otherwise the count of days
// since the last wet day.
func DryDayStreaks(precip []float64) []float64 {
	streaks := make([]float64, len(precip))
	counter := 0.0
	for i, p := range precip {
		if p > 0 {
			counter = 0
		} else {
			counter++
		}
		streaks[i] = counter
	}
	return streaks
}

// InterpolateBounded fills NaN gaps in a daily series by linear
// interpolation, filling at most limit consecutive days from each side of a
// gap. Leading and trailing gaps are extended with the nearest valid value,
// again bounded by limit. A non-positive limit leaves the series untouched.
// The input is not modified.
func InterpolateBounded(series []float64, limit int) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	if limit <= 0 || len(series) == 0 {
		return out
	}

	// Index of the previous and next valid value for every position.
	prev := make([]int, len(series))
	next := make([]int, len(series))
	last := -1
	for i := range series {
		if !math.IsNaN(series[i]) {
			last = i
		}
		prev[i] = last
	}
	last = -1
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			last = i
		}
		next[i] = last
	}

	for i := range series {
		if !math.IsNaN(series[i]) {
			continue
		}
		p, n := prev[i], next[i]
		switch {
		case p >= 0 && n >= 0:
			if i-p > limit && n-i > limit {
				continue
			}
			frac := float64(i-p) / float64(n-p)
			out[i] = series[p] + frac*(series[n]-series[p])
		case p >= 0:
			if i-p <= limit {
				out[i] = series[p]
			}
		case n >= 0:
			if n-i <= limit {
				out[i] = series[n]
			}
		}
	}
	return out
}
