// internal/sensor/reader_test.go
package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aqsentry/internal/aqi"
	"aqsentry/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSensorAPI serves canned payloads per sensor id and counts hits.
type fakeSensorAPI struct {
	mu        sync.Mutex
	responses map[string]apiResponse
	statuses  map[string]int
	rawBodies map[string]string
	hits      map[string]int
}

func newFakeSensorAPI() *fakeSensorAPI {
	return &fakeSensorAPI{
		responses: make(map[string]apiResponse),
		statuses:  make(map[string]int),
		rawBodies: make(map[string]string),
		hits:      make(map[string]int),
	}
}

func (f *fakeSensorAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("show")
		f.mu.Lock()
		f.hits[id]++
		status, hasStatus := f.statuses[id]
		raw, hasRaw := f.rawBodies[id]
		payload := f.responses[id]
		f.mu.Unlock()

		if hasStatus {
			w.WriteHeader(status)
			return
		}
		if hasRaw {
			_, _ = io.WriteString(w, raw)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
}

func (f *fakeSensorAPI) hitCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[id]
}

func result(label string, lastSeen time.Time, v, v1 float64) apiResult {
	return apiResult{
		Label:    label,
		Lat:      37.77,
		Lon:      -122.41,
		LastSeen: lastSeen.Unix(),
		Stats:    fmt.Sprintf(`{"v":%g,"v1":%g}`, v, v1),
	}
}

func newTestReader(t *testing.T, baseURL string, cfg ReaderConfig, places PlaceResolver) *Reader {
	t.Helper()
	rc := transport.NewClient(transport.Options{RetryMax: 1}, nil)
	client, err := NewClient(baseURL, "aqsentry-test", rc, testLogger())
	require.NoError(t, err)
	reader, err := NewReader(cfg, client, places, testLogger())
	require.NoError(t, err)
	return reader
}

type stubPlaces struct {
	name string
}

func (s stubPlaces) PlaceName(ctx context.Context, lat, lon float64) (string, error) {
	return s.name, nil
}

func TestReadAveragesSubsensors(t *testing.T) {
	api := newFakeSensorAPI()
	now := time.Now()
	api.responses["100"] = apiResponse{Results: []apiResult{
		result("A", now.Add(-time.Minute), 10, 12),
		result("B", now, 20, 22),
	}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"100"}}, stubPlaces{name: "Testville"})
	reading, err := reader.Read(context.Background())
	require.NoError(t, err)

	require.Equal(t, "100", reading.SensorID)
	require.Equal(t, 15.0, reading.RealtimePM)
	require.Equal(t, 17.0, reading.Avg10PM)
	require.Equal(t, aqi.FromPM(15), reading.RealtimeAQI)
	require.Equal(t, aqi.FromPM(17), reading.Avg10AQI)
	require.Equal(t, now.Unix(), reading.Timestamp.Unix(), "timestamp must be the newest sub-sensor")
	require.False(t, reading.Stale)
	require.Equal(t, "Testville", reading.PlaceName)
}

func TestReadFailsOverOnZeroSubsensors(t *testing.T) {
	api := newFakeSensorAPI()
	api.responses["A"] = apiResponse{}
	api.responses["B"] = apiResponse{Results: []apiResult{result("ok", time.Now(), 8, 9)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"A", "B"}}, nil)
	reading, err := reader.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "B", reading.SensorID)
	require.Equal(t, 1, api.hitCount("A"))
	require.Equal(t, 1, api.hitCount("B"))
}

func TestReadFailsOverOnStaleData(t *testing.T) {
	api := newFakeSensorAPI()
	api.responses["A"] = apiResponse{Results: []apiResult{result("old", time.Now().Add(-time.Hour), 8, 9)}}
	api.responses["B"] = apiResponse{Results: []apiResult{result("ok", time.Now(), 8, 9)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"A", "B"}}, nil)
	reading, err := reader.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "B", reading.SensorID)
}

func TestReadFailsOverOnBadPayload(t *testing.T) {
	api := newFakeSensorAPI()
	api.rawBodies["A"] = `{"results": not json`
	api.responses["B"] = apiResponse{Results: []apiResult{result("ok", time.Now(), 8, 9)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"A", "B"}}, nil)
	reading, err := reader.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "B", reading.SensorID)
}

func TestReadExhaustedCandidatesIsAcquisitionError(t *testing.T) {
	api := newFakeSensorAPI()
	api.responses["A"] = apiResponse{Results: []apiResult{result("old", time.Now().Add(-time.Hour), 8, 9)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"A"}}, nil)
	_, err := reader.Read(context.Background())
	require.Error(t, err)

	var acqErr *AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	require.Equal(t, 1, acqErr.Candidates)
}

func TestReadStatusFailureDoesNotFailOver(t *testing.T) {
	api := newFakeSensorAPI()
	api.statuses["A"] = http.StatusInternalServerError
	api.responses["B"] = apiResponse{Results: []apiResult{result("ok", time.Now(), 8, 9)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"A", "B"}}, nil)
	_, err := reader.Read(context.Background())
	require.Error(t, err)

	var acqErr *AcquisitionError
	require.False(t, errors.As(err, &acqErr), "status failures must not be masked as exhaustion")
	require.Equal(t, 1, api.hitCount("A"), "status failures must not be retried")
	require.Equal(t, 0, api.hitCount("B"), "backup must not be contacted on a transport-level failure")
}

func TestSingleModeMarksStaleInsteadOfFailingOver(t *testing.T) {
	api := newFakeSensorAPI()
	api.responses["A"] = apiResponse{Results: []apiResult{result("old", time.Now().Add(-time.Hour), 8, 9)}}
	api.responses["B"] = apiResponse{Results: []apiResult{result("ok", time.Now(), 8, 9)}}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	reader := newTestReader(t, srv.URL, ReaderConfig{Candidates: []string{"A", "B"}, Mode: ModeSingle}, nil)
	reading, err := reader.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A", reading.SensorID)
	require.True(t, reading.Stale)
	require.Equal(t, 0, api.hitCount("B"), "single mode must not consult backups")
}

func TestNewReaderValidation(t *testing.T) {
	rc := transport.NewClient(transport.Options{}, nil)
	client, err := NewClient("http://localhost", "test", rc, testLogger())
	require.NoError(t, err)

	_, err = NewReader(ReaderConfig{}, client, nil, testLogger())
	require.Error(t, err, "empty candidate list must be rejected")

	_, err = NewReader(ReaderConfig{Candidates: []string{"1"}, Mode: Mode("bogus")}, client, nil, testLogger())
	require.Error(t, err, "unknown mode must be rejected")
}
