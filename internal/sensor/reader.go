// internal/sensor/reader.go
package sensor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"aqsentry/internal/aqi"
	"aqsentry/internal/metrics"
)

const (
	// DefaultStaleAfter is how old sub-sensor data may be before the
	// whole candidate counts as stale.
	DefaultStaleAfter = 10 * time.Minute
	// DefaultFetchTimeout bounds one candidate acquisition end to end,
	// including transport retries.
	DefaultFetchTimeout = 30 * time.Second
	// placeLookupTimeout bounds the optional reverse-geocoding call.
	placeLookupTimeout = 5 * time.Second
)

// PlaceResolver turns coordinates into a human-readable place name.
type PlaceResolver interface {
	PlaceName(ctx context.Context, lat, lon float64) (string, error)
}

// ReaderConfig carries the acquisition policy.
type ReaderConfig struct {
	// Candidates is the ordered sensor id list; the first entry is the
	// primary and the rest are fallbacks.
	Candidates []string
	// Mode selects the staleness policy (failover or single).
	Mode Mode
	// StaleAfter is the sub-sensor freshness horizon.
	StaleAfter time.Duration
	// FetchTimeout bounds one candidate acquisition.
	FetchTimeout time.Duration
}

// Reader produces AQI readings by walking the candidate list in order.
// Failover happens only on data-quality failures: undecodable payloads,
// empty responses, and stale data. Transport failures that survive the
// retry layer and non-success statuses abort the read so that network
// trouble is never masked by a backup sensor.
type Reader struct {
	cfg    ReaderConfig
	client *Client
	places PlaceResolver
	log    *slog.Logger
	now    func() time.Time
}

// NewReader validates the policy and builds a Reader. The place resolver
// is optional.
func NewReader(cfg ReaderConfig, client *Client, places PlaceResolver, logger *slog.Logger) (*Reader, error) {
	if client == nil {
		return nil, errors.New("reader requires a client")
	}
	if logger == nil {
		return nil, errors.New("reader requires a logger")
	}
	if len(cfg.Candidates) == 0 {
		return nil, errors.New("reader requires at least one sensor id")
	}
	for _, id := range cfg.Candidates {
		if strings.TrimSpace(id) == "" {
			return nil, errors.New("sensor ids cannot be blank")
		}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFailover
	}
	if !cfg.Mode.Valid() {
		return nil, errors.Errorf("unsupported sensor mode %q", cfg.Mode)
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Reader{
		cfg:    cfg,
		client: client,
		places: places,
		log:    logger,
		now:    time.Now,
	}, nil
}

// Read acquires one reading. In failover mode every candidate is tried
// in order; in single mode only the first candidate is consulted and
// stale data is marked rather than rejected.
func (r *Reader) Read(ctx context.Context) (Reading, error) {
	candidates := r.cfg.Candidates
	if r.cfg.Mode == ModeSingle {
		candidates = candidates[:1]
	}

	var failures []string
	for i, id := range candidates {
		if i > 0 {
			metrics.IncSensorFailover()
			r.log.Info("sensor_failover",
				slog.String("from", candidates[i-1]),
				slog.String("to", id),
			)
		}
		reading, err := r.readCandidate(ctx, id)
		if err == nil {
			return reading, nil
		}
		if !errors.Is(err, errUnusable) {
			return Reading{}, err
		}
		r.log.Warn("sensor_candidate_unusable",
			slog.String("sensor_id", id),
			slog.Any("err", err),
		)
		failures = append(failures, id+": "+err.Error())
	}
	return Reading{}, &AcquisitionError{
		Candidates: len(candidates),
		Err:        errors.New(strings.Join(failures, "; ")),
	}
}

func (r *Reader) readCandidate(ctx context.Context, id string) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	start := r.now()
	subs, err := r.client.Fetch(ctx, id)
	metrics.ObserveSensorFetch(time.Since(start), err == nil)
	if err != nil {
		return Reading{}, err
	}
	if len(subs) == 0 {
		return Reading{}, errors.Wrapf(errUnusable, "sensor %s returned zero sub-sensors", id)
	}

	stale := false
	horizon := r.now().Add(-r.cfg.StaleAfter)
	newest := subs[0].LastSeen
	realtime := make([]float64, 0, len(subs))
	tenMinute := make([]float64, 0, len(subs))
	for _, sub := range subs {
		if sub.LastSeen.Before(horizon) {
			if r.cfg.Mode == ModeFailover {
				return Reading{}, errors.Wrapf(errUnusable,
					"sub-sensor %q last seen %s", sub.Label, sub.LastSeen.Format(time.RFC3339))
			}
			stale = true
		}
		if sub.LastSeen.After(newest) {
			newest = sub.LastSeen
		}
		realtime = append(realtime, sub.RealtimePM)
		tenMinute = append(tenMinute, sub.Avg10PM)
	}

	reading := Reading{
		SensorID:   id,
		RealtimePM: mean(realtime),
		Avg10PM:    mean(tenMinute),
		Timestamp:  newest,
		Stale:      stale,
		PlaceName:  r.resolvePlace(ctx, subs[0]),
	}
	reading.RealtimeAQI = aqi.FromPM(reading.RealtimePM)
	reading.Avg10AQI = aqi.FromPM(reading.Avg10PM)
	if reading.Timestamp.IsZero() {
		reading.Timestamp = r.now()
	}
	return reading, nil
}

// resolvePlace is best effort; a missing place never blocks a reading.
func (r *Reader) resolvePlace(ctx context.Context, sub subsensor) string {
	if r.places == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, placeLookupTimeout)
	defer cancel()
	name, err := r.places.PlaceName(ctx, sub.Lat, sub.Lon)
	if err != nil {
		r.log.Debug("place_lookup_failed", slog.Any("err", err))
		return ""
	}
	return name
}
