package platform

import (
	"math"

	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// VariableSpec describes how one covariate code maps onto a platform
// dataset: which bands to request and how to reduce a day's band values to
// the covariate value. Convert returns NaN when a required band is missing
// for the day.
type VariableSpec struct {
	Code    string
	Dataset string
	Bands   []string

	// InterpolationLimit is the default bounded-interpolation window in
	// days for this variable's daily series. Zero means gaps are never
	// filled. Vegetation indices use the configured index limit instead.
	InterpolationLimit int

	// IsIndex marks vegetation indices, whose interpolation is controlled
	// by the interpolate_index setting.
	IsIndex bool

	Convert func(values map[string]float64) float64
}

// Dataset identifiers follow the public Earth observation catalog names.
const (
	datasetMODIS = "MODIS/MOD11A1"
	datasetS1    = "COPERNICUS/S1_GRD"
	datasetS2    = "COPERNICUS/S2_SR"
	datasetERA5  = "ECMWF/ERA5/DAILY"
)

// Variables is the covariate catalog keyed by settings variable code.
var Variables = map[string]VariableSpec{
	// MODIS daytime land-surface temperature: digital numbers with a 0.02
	// scale factor in Kelvin. Daily revisit, but cloud gaps are common, so
	// a short interpolation window applies.
	"TS": {
		Code:               "TS",
		Dataset:            datasetMODIS,
		Bands:              []string{"LST_Day_1km"},
		InterpolationLimit: 5,
		Convert:            single("LST_Day_1km", domain.LSTToCelsius),
	},

	// Sentinel-1 C-band backscatter, dB, IW mode. Sparse (6-12 day
	// revisit); never interpolated.
	"VV": {
		Code:    "VV",
		Dataset: datasetS1,
		Bands:   []string{"VV"},
		Convert: single("VV", nil),
	},
	"VH": {
		Code:    "VH",
		Dataset: datasetS1,
		Bands:   []string{"VH"},
		Convert: single("VH", nil),
	},

	// Sentinel-2 surface reflectance indices, cloud-masked platform-side.
	"NDVI": {
		Code:    "NDVI",
		Dataset: datasetS2,
		Bands:   []string{"B8", "B4"},
		IsIndex: true,
		Convert: index("B8", "B4"),
	},
	"NDWI": {
		Code:    "NDWI",
		Dataset: datasetS2,
		Bands:   []string{"B8A", "B11"},
		IsIndex: true,
		Convert: index("B8A", "B11"),
	},

	// ERA5 daily aggregates: air temperature in Kelvin, precipitation in
	// metres. Reanalysis is gap-free, so no interpolation.
	"TA": {
		Code:    "TA",
		Dataset: datasetERA5,
		Bands:   []string{"mean_2m_air_temperature"},
		Convert: single("mean_2m_air_temperature", domain.KelvinToCelsius),
	},
	"P": {
		Code:    "P",
		Dataset: datasetERA5,
		Bands:   []string{"total_precipitation"},
		Convert: single("total_precipitation", domain.MetresToMillimetres),
	},
}

// DerivedDryDays is the one covariate computed locally instead of fetched:
// the consecutive dry-day streak derived from P.
const DerivedDryDays = "DD"

func single(band string, convert func(float64) float64) func(map[string]float64) float64 {
	return func(values map[string]float64) float64 {
		v, ok := values[band]
		if !ok {
			return math.NaN()
		}
		if convert != nil {
			return convert(v)
		}
		return v
	}
}

func index(a, b string) func(map[string]float64) float64 {
	return func(values map[string]float64) float64 {
		va, okA := values[a]
		vb, okB := values[b]
		if !okA || !okB {
			return math.NaN()
		}
		return domain.VegetationIndex(va, vb)
	}
}
