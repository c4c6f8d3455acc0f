// internal/aqi/aqi.go

// Package aqi converts PM2.5 mass concentrations into the US EPA Air
// Quality Index. The conversion is the EPA piecewise-linear formula
//
//	AQI = (Ih-Il)/(BPh-BPl) * (Cp-BPl) + Il
//
// evaluated over the 24-hour PM2.5 breakpoint table and rounded to a
// whole number (ties away from zero).
package aqi

import "math"

// Concentrations above the published scale are unusable rather than
// clamped, so the converter reports them as NaN.
const maxConcentration = 1000.0

// band is one row of the EPA breakpoint table. lower is the exclusive
// lower bound used to select the band, which is the concentration top of
// the band below it.
type band struct {
	lower    float64
	concLo   float64
	concHi   float64
	indexLo  float64
	indexHi  float64
	category string
}

// bands is ordered top-down so selection walks from the most severe band
// to the least. The lowest band is selected for every non-negative
// concentration up to 12.0.
var bands = []band{
	{lower: 350.4, concLo: 350.5, concHi: 500.4, indexLo: 401, indexHi: 500, category: "Hazardous"},
	{lower: 250.4, concLo: 250.5, concHi: 350.4, indexLo: 301, indexHi: 400, category: "Hazardous"},
	{lower: 150.4, concLo: 150.5, concHi: 250.4, indexLo: 201, indexHi: 300, category: "Very Unhealthy"},
	{lower: 55.4, concLo: 55.5, concHi: 150.4, indexLo: 151, indexHi: 200, category: "Unhealthy"},
	{lower: 35.4, concLo: 35.5, concHi: 55.4, indexLo: 101, indexHi: 150, category: "Unhealthy for Sensitive Groups"},
	{lower: 12.0, concLo: 12.1, concHi: 35.4, indexLo: 51, indexHi: 100, category: "Moderate"},
	{lower: math.Inf(-1), concLo: 0, concHi: 12.0, indexLo: 0, indexHi: 50, category: "Good"},
}

// FromPM converts a PM2.5 concentration in µg/m³ to its AQI value.
//
// NaN propagates, negative concentrations are returned unchanged, and
// concentrations above the usable scale yield NaN. Within the scale the
// result is monotonically non-decreasing and exact at band boundaries:
// FromPM(12.0) == 50 and FromPM(12.1) == 51.
func FromPM(pm float64) float64 {
	if math.IsNaN(pm) {
		return math.NaN()
	}
	if pm < 0 {
		return pm
	}
	if pm > maxConcentration {
		return math.NaN()
	}
	for _, b := range bands {
		if pm > b.lower {
			return math.Round(interpolate(pm, b))
		}
	}
	return math.NaN()
}

// Category names the EPA band a computed AQI value falls in. Values that
// cannot be banded (NaN, negatives) are reported as Unknown.
func Category(aqi float64) string {
	if math.IsNaN(aqi) || aqi < 0 {
		return "Unknown"
	}
	for i := len(bands) - 1; i >= 0; i-- {
		if aqi <= bands[i].indexHi {
			return bands[i].category
		}
	}
	return "Hazardous"
}

func interpolate(pm float64, b band) float64 {
	return (b.indexHi-b.indexLo)/(b.concHi-b.concLo)*(pm-b.concLo) + b.indexLo
}
