// internal/sensor/sensor_test.go
package sensor

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	require.Equal(t, 15.0, mean([]float64{10, 20}))
	require.Equal(t, 7.5, mean([]float64{7.5}))
	require.True(t, math.IsNaN(mean(nil)), "mean of empty input must be NaN")
}

func TestReadingJSONRoundTrip(t *testing.T) {
	in := Reading{
		SensorID:    "12345",
		RealtimeAQI: 57,
		Avg10AQI:    61,
		RealtimePM:  15,
		Avg10PM:     17,
		Timestamp:   time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC),
		Stale:       true,
		PlaceName:   "Testville",
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Reading
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestReadingJSONRoundTripNaN(t *testing.T) {
	in := Reading{SensorID: "12345", RealtimeAQI: math.NaN(), Avg10AQI: math.NaN(), RealtimePM: math.NaN(), Avg10PM: math.NaN()}
	data, err := json.Marshal(in)
	require.NoError(t, err, "NaN values must be encodable")

	var out Reading
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, math.IsNaN(out.RealtimeAQI))
	require.True(t, math.IsNaN(out.Avg10AQI))
	require.True(t, math.IsNaN(out.RealtimePM))
	require.True(t, math.IsNaN(out.Avg10PM))
}
