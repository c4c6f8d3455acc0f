// internal/geo/geo_test.go
package geo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aqsentry/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlaceNameResolvesAndCaches(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/reverse", r.URL.Path)
		require.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"display_name":"long name","address":{"suburb":"Sunset District","city":"San Francisco"}}`)
	}))
	defer srv.Close()

	g, err := New(Config{BaseURL: srv.URL, UserAgent: "aqsentry-test"}, transport.NewClient(transport.Options{RetryMax: 1}, nil), testLogger())
	require.NoError(t, err)

	name, err := g.PlaceName(context.Background(), 37.76, -122.49)
	require.NoError(t, err)
	require.Equal(t, "Sunset District", name, "most local component wins")

	name, err = g.PlaceName(context.Background(), 37.76, -122.49)
	require.NoError(t, err)
	require.Equal(t, "Sunset District", name)
	require.Equal(t, int64(1), hits.Load(), "repeat lookups must be served from cache")
}

func TestPlaceNameCacheExpires(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"address":{"city":"San Francisco"}}`)
	}))
	defer srv.Close()

	g, err := New(Config{BaseURL: srv.URL, UserAgent: "aqsentry-test", CacheTTL: time.Hour}, transport.NewClient(transport.Options{RetryMax: 1}, nil), testLogger())
	require.NoError(t, err)

	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }
	_, err = g.PlaceName(context.Background(), 37.76, -122.49)
	require.NoError(t, err)

	g.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = g.PlaceName(context.Background(), 37.76, -122.49)
	require.NoError(t, err)
	require.Equal(t, int64(2), hits.Load(), "expired entries must be refreshed")
}

func TestPlaceNameErrorPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, err := New(Config{BaseURL: srv.URL, UserAgent: "aqsentry-test"}, transport.NewClient(transport.Options{RetryMax: 1}, nil), testLogger())
	require.NoError(t, err)

	_, err = g.PlaceName(context.Background(), 0, 0)
	require.Error(t, err)
}
