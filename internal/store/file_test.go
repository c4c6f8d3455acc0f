// internal/store/file_test.go
package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aqsentry/internal/sensor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReading(id string, rt float64) sensor.Reading {
	return sensor.Reading{
		SensorID:    id,
		RealtimeAQI: rt,
		Avg10AQI:    rt,
		RealtimePM:  rt,
		Avg10PM:     rt,
		Timestamp:   time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileStorePutAndLatestPerKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	s, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	ctx := context.Background()
	_, err = s.Put(ctx, KindInterval, testReading("primary", 40))
	require.NoError(t, err)
	_, err = s.Put(ctx, KindAdhoc, testReading("primary", 70))
	require.NoError(t, err)
	_, err = s.Put(ctx, KindInterval, testReading("primary", 55))
	require.NoError(t, err)

	rec, ok, err := s.Latest(ctx, KindInterval, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 55.0, rec.Reading.RealtimeAQI, "interval chain must not be shadowed by adhoc puts")

	rec, ok, err = s.Latest(ctx, KindAdhoc, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 70.0, rec.Reading.RealtimeAQI)

	_, ok, err = s.Latest(ctx, KindDaily, 0)
	require.NoError(t, err)
	require.False(t, ok, "kinds with no records report absence")
}

func TestFileStoreLatestHonorsMaxAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	s, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ctx := context.Background()
	_, err = s.Put(ctx, KindInterval, testReading("primary", 40))
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok, err := s.Latest(ctx, KindInterval, time.Hour)
	require.NoError(t, err)
	require.False(t, ok, "records beyond maxAge must not qualify")

	rec, ok, err := s.Latest(ctx, KindInterval, 0)
	require.NoError(t, err)
	require.True(t, ok, "maxAge <= 0 disables the recency filter")
	require.Equal(t, base, rec.StoredAt)
}

func TestFileStoreRejectsInvalidKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	s, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	_, err = s.Put(context.Background(), Kind("hourly"), testReading("primary", 40))
	require.Error(t, err)
}

func TestFileStoreReloadsIndexFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	s, err := NewFileStore(path, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Put(ctx, KindInterval, testReading("primary", 40))
	require.NoError(t, err)
	_, err = s.Put(ctx, KindInterval, testReading("backup", 60))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	rec, ok, err := reopened.Latest(ctx, KindInterval, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "backup", rec.Reading.SensorID)
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	s, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	_, err = s.Put(context.Background(), KindInterval, testReading("primary", 40))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{torn write\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	_, ok, err := reopened.Latest(context.Background(), KindInterval, 0)
	require.NoError(t, err)
	require.True(t, ok, "valid records must survive a torn trailing write")
}

func TestFileStoreExpireOlderThanCompacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	s, err := NewFileStore(path, testLogger())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	s.now = func() time.Time { return base }
	_, err = s.Put(ctx, KindInterval, testReading("old", 40))
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(7 * 24 * time.Hour) }
	_, err = s.Put(ctx, KindInterval, testReading("new", 50))
	require.NoError(t, err)

	removed, err := s.ExpireOlderThan(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	rec, ok, err := s.Latest(ctx, KindInterval, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", rec.Reading.SensorID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, bytes.Count(data, []byte("\n")), "compaction must rewrite the file")

	removed, err = s.ExpireOlderThan(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed, "second pass has nothing left to remove")

	// The store must still accept writes through the reopened handle.
	_, err = s.Put(ctx, KindInterval, testReading("after", 60))
	require.NoError(t, err)
}

func TestMemoryStoreBasics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	_, err := s.Put(ctx, KindInterval, testReading("primary", 40))
	require.NoError(t, err)

	rec, ok, err := s.Latest(ctx, KindInterval, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "primary", rec.Reading.SensorID)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok, err = s.Latest(ctx, KindInterval, time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	removed, err := s.ExpireOlderThan(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoError(t, s.Close())
}
