// internal/sensor/sensor.go

// Package sensor acquires PM2.5 readings from a PurpleAir-style sensor
// API and converts them into AQI readings. Acquisition walks an ordered
// candidate list and fails over only on data-quality problems; transport
// and status failures abort the whole read.
package sensor

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Mode selects the staleness policy applied during acquisition.
type Mode string

const (
	// ModeFailover advances to the next candidate when a candidate's
	// data is stale or otherwise unusable.
	ModeFailover Mode = "failover"
	// ModeSingle reads only the first candidate and marks stale data
	// instead of failing over.
	ModeSingle Mode = "single"
)

// Valid reports whether the mode is one of the supported policies.
func (m Mode) Valid() bool {
	return m == ModeFailover || m == ModeSingle
}

// Reading is one converted observation from a sensor. AQI values are NaN
// when the upstream concentration was unusable. The raw PM pair is kept
// for diagnostics and report rendering.
type Reading struct {
	SensorID    string
	RealtimeAQI float64
	Avg10AQI    float64
	RealtimePM  float64
	Avg10PM     float64
	Timestamp   time.Time
	Stale       bool
	PlaceName   string
}

// readingJSON mirrors Reading for serialization. Float fields are
// pointers so NaN survives the JSON round trip as null.
type readingJSON struct {
	SensorID    string    `json:"sensorId"`
	RealtimeAQI *float64  `json:"realtimeAqi"`
	Avg10AQI    *float64  `json:"avg10Aqi"`
	RealtimePM  *float64  `json:"realtimePm"`
	Avg10PM     *float64  `json:"avg10Pm"`
	Timestamp   time.Time `json:"timestamp"`
	Stale       bool      `json:"stale,omitempty"`
	PlaceName   string    `json:"placeName,omitempty"`
}

// MarshalJSON encodes the reading with NaN values mapped to null.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		SensorID:    r.SensorID,
		RealtimeAQI: nullableFloat(r.RealtimeAQI),
		Avg10AQI:    nullableFloat(r.Avg10AQI),
		RealtimePM:  nullableFloat(r.RealtimePM),
		Avg10PM:     nullableFloat(r.Avg10PM),
		Timestamp:   r.Timestamp,
		Stale:       r.Stale,
		PlaceName:   r.PlaceName,
	})
}

// UnmarshalJSON decodes the reading, mapping null floats back to NaN.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Reading{
		SensorID:    raw.SensorID,
		RealtimeAQI: floatOrNaN(raw.RealtimeAQI),
		Avg10AQI:    floatOrNaN(raw.Avg10AQI),
		RealtimePM:  floatOrNaN(raw.RealtimePM),
		Avg10PM:     floatOrNaN(raw.Avg10PM),
		Timestamp:   raw.Timestamp,
		Stale:       raw.Stale,
		PlaceName:   raw.PlaceName,
	}
	return nil
}

func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// AcquisitionError reports that no candidate produced a usable reading.
type AcquisitionError struct {
	Candidates int
	Err        error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("all sensors returned unusable results (candidates: %d): %v", e.Candidates, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// errUnusable marks per-candidate data-quality failures. The reader
// fails over on these and only on these.
var errUnusable = errors.New("unusable sensor data")

// mean returns the arithmetic mean of values, NaN for empty input.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
