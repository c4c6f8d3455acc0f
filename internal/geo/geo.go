// internal/geo/geo.go

// Package geo resolves sensor coordinates to a human-readable place
// name through a Nominatim-style reverse geocoding endpoint. Sensors do
// not move, so results are cached with a long TTL and a failed lookup
// only costs the report its place line.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// DefaultBaseURL points at the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const defaultCacheTTL = 24 * time.Hour

// Config carries the geocoder settings.
type Config struct {
	// BaseURL overrides the endpoint, mainly for tests.
	BaseURL string
	// UserAgent identifies this service; the public endpoint requires
	// one.
	UserAgent string
	// CacheTTL bounds how long a resolved name is reused.
	CacheTTL time.Duration
}

type cacheEntry struct {
	name string
	exp  time.Time
}

// Geocoder is a caching reverse-geocoding client.
type Geocoder struct {
	cfg  Config
	http *retryablehttp.Client
	log  *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// New builds a geocoder on top of the supplied retrying transport.
func New(cfg Config, rc *retryablehttp.Client, logger *slog.Logger) (*Geocoder, error) {
	if rc == nil {
		return nil, errors.New("geocoder requires a transport")
	}
	if logger == nil {
		return nil, errors.New("geocoder requires a logger")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Geocoder{
		cfg:   cfg,
		http:  rc,
		log:   logger,
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}, nil
}

// reverseResponse is the subset of the jsonv2 reverse payload used to
// pick a display name, from the most local component outward.
type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Suburb  string `json:"suburb"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// PlaceName resolves the coordinates, serving from cache when possible.
func (g *Geocoder) PlaceName(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if name, ok := g.lookup(key); ok {
		return name, nil
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("format", "jsonv2")
	q.Set("zoom", "14")
	endpoint := g.cfg.BaseURL + "/reverse?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", errors.Wrap(err, "build reverse geocode request")
	}
	req.Header.Set("Accept", "application/json")
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "reverse geocode")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "decode reverse geocode response")
	}
	name := firstNonEmpty(
		payload.Address.Suburb,
		payload.Address.City,
		payload.Address.Town,
		payload.Address.Village,
		payload.Address.County,
		payload.Address.State,
		payload.DisplayName,
	)
	if name == "" {
		return "", errors.New("reverse geocode response carried no usable name")
	}

	g.store(key, name)
	g.log.Debug("place_resolved", slog.String("key", key), slog.String("name", name))
	return name, nil
}

func (g *Geocoder) lookup(key string) (string, bool) {
	g.mu.RLock()
	e, ok := g.cache[key]
	g.mu.RUnlock()
	if !ok || g.now().After(e.exp) {
		return "", false
	}
	return e.name, true
}

func (g *Geocoder) store(key, name string) {
	g.mu.Lock()
	g.cache[key] = cacheEntry{name: name, exp: g.now().Add(g.cfg.CacheTTL)}
	g.mu.Unlock()
}

// cacheKey quantizes coordinates to ~100m so numeric jitter in the
// sensor payload cannot defeat the cache.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f,%.3f", lat, lon)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
