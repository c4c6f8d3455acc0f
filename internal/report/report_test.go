// internal/report/report_test.go

package report

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"aqsentry/internal/sensor"
	"aqsentry/internal/store"
)

type stubAcquirer struct {
	reading sensor.Reading
	err     error
	calls   int
}

func (a *stubAcquirer) Read(_ context.Context) (sensor.Reading, error) {
	a.calls++
	if a.err != nil {
		return sensor.Reading{}, a.err
	}
	return a.reading, nil
}

type stubStore struct {
	adhoc     *store.Record
	latestErr error
	putErr    error
	puts      []store.Kind
}

func (s *stubStore) Put(_ context.Context, kind store.Kind, reading sensor.Reading) (store.Record, error) {
	s.puts = append(s.puts, kind)
	if s.putErr != nil {
		return store.Record{}, s.putErr
	}
	return store.Record{Kind: kind, StoredAt: time.Now(), Reading: reading}, nil
}

func (s *stubStore) Latest(_ context.Context, kind store.Kind, _ time.Duration) (store.Record, bool, error) {
	if s.latestErr != nil {
		return store.Record{}, false, s.latestErr
	}
	if kind == store.KindAdhoc && s.adhoc != nil {
		return *s.adhoc, true, nil
	}
	return store.Record{}, false, nil
}

func (s *stubStore) ExpireOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *stubStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReading() sensor.Reading {
	return sensor.Reading{
		SensorID:    "12345",
		RealtimeAQI: 57,
		Avg10AQI:    61,
		RealtimePM:  15,
		Avg10PM:     16.8,
		Timestamp:   time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC),
		PlaceName:   "Shoreline",
	}
}

func newTestScheduler(t *testing.T, reader Acquirer, st store.Store) *Scheduler {
	t.Helper()
	s, err := NewScheduler(Config{}, reader, st, testLogger())
	require.NoError(t, err)
	return s
}

func TestDueDailyGate(t *testing.T) {
	s := newTestScheduler(t, &stubAcquirer{}, &stubStore{})

	day := func(hour, min int) time.Time {
		return time.Date(2024, 3, 9, hour, min, 0, 0, time.UTC)
	}

	cases := []struct {
		name     string
		now      time.Time
		lastSent time.Time
		want     bool
	}{
		{"before cutoff never due", day(7, 59), time.Time{}, false},
		{"at cutoff with no prior send", day(8, 0), time.Time{}, true},
		{"gap below minimum", day(9, 0), day(9, 0).Add(-22 * time.Hour), false},
		{"gap at minimum", day(9, 0), day(9, 0).Add(-23 * time.Hour), true},
		{"gap above minimum", day(9, 0), day(9, 0).Add(-25 * time.Hour), true},
		{"before cutoff even when gap passed", day(6, 0), day(6, 0).Add(-48 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, s.DueDaily(tc.now, tc.lastSent))
		})
	}
}

func TestReportServesCacheWithinDebounce(t *testing.T) {
	reader := &stubAcquirer{reading: testReading()}
	cached := store.Record{
		Kind:     store.KindAdhoc,
		StoredAt: time.Now().Add(-5 * time.Minute),
		Reading:  testReading(),
	}
	st := &stubStore{adhoc: &cached}
	s := newTestScheduler(t, reader, st)

	rep, err := s.Report(context.Background())
	require.NoError(t, err)
	require.True(t, rep.Cached)
	require.Equal(t, cached.StoredAt, rep.GeneratedAt)
	require.Equal(t, 0, reader.calls)
	require.Empty(t, st.puts)
}

func TestReportAcquiresWhenCacheEmpty(t *testing.T) {
	reader := &stubAcquirer{reading: testReading()}
	st := &stubStore{}
	s := newTestScheduler(t, reader, st)

	rep, err := s.Report(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Cached)
	require.Equal(t, 1, reader.calls)
	require.Equal(t, []store.Kind{store.KindAdhoc}, st.puts)
	require.Equal(t, "12345", rep.Reading.SensorID)
	require.Equal(t, "Moderate", rep.RealtimeCategory)
}

func TestRefreshBypassesCache(t *testing.T) {
	reader := &stubAcquirer{reading: testReading()}
	cached := store.Record{Kind: store.KindAdhoc, StoredAt: time.Now(), Reading: testReading()}
	st := &stubStore{adhoc: &cached}
	s := newTestScheduler(t, reader, st)

	rep, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Cached)
	require.Equal(t, 1, reader.calls)
	require.Equal(t, []store.Kind{store.KindAdhoc}, st.puts)
}

func TestRefreshServesDespiteCacheWriteFailure(t *testing.T) {
	reader := &stubAcquirer{reading: testReading()}
	st := &stubStore{putErr: errors.New("disk full")}
	s := newTestScheduler(t, reader, st)

	rep, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "12345", rep.Reading.SensorID)
}

func TestReportPropagatesReadError(t *testing.T) {
	reader := &stubAcquirer{err: errors.New("sensor offline")}
	s := newTestScheduler(t, reader, &stubStore{})

	_, err := s.Report(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sensor offline")
}

func TestTextRendering(t *testing.T) {
	s := newTestScheduler(t, &stubAcquirer{}, &stubStore{})
	rep := s.render(testReading(), time.Date(2024, 3, 9, 12, 31, 0, 0, time.UTC), false)

	text := rep.Text()
	require.Contains(t, text, "Air quality report for Shoreline")
	require.Contains(t, text, "Realtime AQI: 57 (Moderate)")
	require.Contains(t, text, "10-minute average AQI: 61 (Moderate)")
	require.Contains(t, text, "Sensor 12345")
	require.NotContains(t, text, "stale")
}

func TestTextRenderingStaleAndCached(t *testing.T) {
	s := newTestScheduler(t, &stubAcquirer{}, &stubStore{})
	reading := testReading()
	reading.Stale = true
	rep := s.render(reading, time.Date(2024, 3, 9, 12, 31, 0, 0, time.UTC), true)

	text := rep.Text()
	require.Contains(t, text, "stale")
	require.Contains(t, text, "Served from cache")
}

func TestTextRenderingUnusableValues(t *testing.T) {
	s := newTestScheduler(t, &stubAcquirer{}, &stubStore{})
	reading := testReading()
	reading.RealtimeAQI = math.NaN()
	reading.PlaceName = ""
	rep := s.render(reading, time.Now(), false)

	text := rep.Text()
	require.Contains(t, text, "Realtime AQI: n/a")
	require.True(t, strings.HasPrefix(text, "Air quality report\n"))
}

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(Config{}, nil, &stubStore{}, testLogger())
	require.Error(t, err)

	_, err = NewScheduler(Config{}, &stubAcquirer{}, nil, testLogger())
	require.Error(t, err)

	_, err = NewScheduler(Config{}, &stubAcquirer{}, &stubStore{}, nil)
	require.Error(t, err)

	_, err = NewScheduler(Config{CutoffHour: 24}, &stubAcquirer{}, &stubStore{}, testLogger())
	require.Error(t, err)

	s, err := NewScheduler(Config{}, &stubAcquirer{}, &stubStore{}, testLogger())
	require.NoError(t, err)
	require.False(t, s.DueDaily(time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC), time.Time{}))
	require.True(t, s.DueDaily(time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC), time.Time{}))
}
