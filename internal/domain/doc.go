// Package domain models harmonized soil-moisture station data and the
// covariate series joined onto it.
//
// # Station networks
//
// Ground truth comes from two independent networks, each with its own raw
// archive format:
//
// ICOS (Integrated Carbon Observation System) ecosystem stations publish
// per-station METEO CSV exports with a TIMESTAMP_START column in
// YYYYMMDDhhmm notation and numbered probe columns (SWC_1, SWC_2, TS_1, ...).
// The sentinel -9999 marks missing readings. Station coordinates live in a
// separate SITEINFO CSV of VARIABLE/DATAVALUE pairs.
//
// ISMN (International Soil Moisture Network) archives ship CEOP-style .stm
// sensor files, one per (station, variable, depth): a single header line
// carrying the station identity, coordinates, and sensor depth, followed by
// timestamped readings with a quality flag. Only "G" (good) readings are
// trusted.
//
// # Harmonized schema
//
// Both networks are normalized to one observation table at daily resolution
// in UTC:
//
//	SWC  volumetric soil water content, percent (ISMN raw values are
//	     fractional and scaled x100)
//	TS   soil temperature, degrees Celsius
//	TA   air temperature, degrees Celsius
//	P    precipitation, mm/day (summed, not averaged, when resampling)
//
// Days with frozen soil (TS < 0) or snow cover carry no usable soil-moisture
// signal and are discarded during harmonization.
//
// # Covariates
//
// Remotely sensed covariates are fetched per site from a geospatial platform
// and aligned to the same daily grid:
//
//	TS    MODIS MOD11A1 daytime land-surface temperature; the platform
//	      reports raw digital numbers with a 0.02 scale factor in Kelvin
//	NDVI  Sentinel-2 (B8-B4)/(B8+B4), cloud-masked upstream
//	NDWI  Sentinel-2 (B8A-B11)/(B8A+B11)
//	VV/VH Sentinel-1 C-band backscatter in dB, IW mode
//	TA    ERA5 daily mean 2 m air temperature, Kelvin
//	P     ERA5 daily total precipitation, metres
//	DD    derived consecutive dry-day streak from P
//
// Optical and SAR series are sparse; gaps are linearly interpolated up to a
// bounded number of days in both directions. Gaps beyond the bound stay
// missing, and training rows with missing values are dropped rather than
// filled: fabricated values must never reach the model.
package domain
