// internal/report/report.go

// Package report turns readings into human-facing summaries and owns
// the two pieces of send/serve policy around them: the daily digest
// gate and the ad-hoc debounce.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"aqsentry/internal/aqi"
	"aqsentry/internal/sensor"
	"aqsentry/internal/store"
)

const (
	// DefaultCutoffHour is the earliest local hour a digest may go out.
	DefaultCutoffHour = 8
	// DefaultMinGap keeps digests roughly daily while letting the send
	// hour drift earlier as schedules shift.
	DefaultMinGap = 23 * time.Hour
	// DefaultDebounce is how long an ad-hoc reading is served from
	// cache before a new acquisition is worth the sensor round trip.
	DefaultDebounce = 30 * time.Minute

	timeLayout = "2006-01-02 15:04 MST"
)

// Acquirer produces a fresh reading.
type Acquirer interface {
	Read(ctx context.Context) (sensor.Reading, error)
}

// Config carries the scheduling policy.
type Config struct {
	// CutoffHour is the earliest local hour for the daily digest.
	CutoffHour int
	// MinGap is the minimum spacing between digests.
	MinGap time.Duration
	// Debounce is the ad-hoc cache window.
	Debounce time.Duration
}

// Scheduler serves debounced on-demand reports and decides when the
// daily digest is due.
type Scheduler struct {
	cfg    Config
	reader Acquirer
	store  store.Store
	log    *slog.Logger
	now    func() time.Time
}

// NewScheduler validates the policy and builds a scheduler.
func NewScheduler(cfg Config, reader Acquirer, st store.Store, logger *slog.Logger) (*Scheduler, error) {
	if reader == nil {
		return nil, errors.New("report scheduler requires a reader")
	}
	if st == nil {
		return nil, errors.New("report scheduler requires a store")
	}
	if logger == nil {
		return nil, errors.New("report scheduler requires a logger")
	}
	if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		return nil, errors.Errorf("cutoff hour %d out of range", cfg.CutoffHour)
	}
	if cfg.CutoffHour == 0 {
		cfg.CutoffHour = DefaultCutoffHour
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = DefaultMinGap
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Scheduler{
		cfg:    cfg,
		reader: reader,
		store:  st,
		log:    logger,
		now:    time.Now,
	}, nil
}

// DueDaily applies the digest gate: never before the cutoff hour of the
// given clock's day, then due once the minimum gap since the last
// confirmed send has passed. A zero lastSent means no digest was ever
// delivered and one is due immediately after the cutoff.
func (s *Scheduler) DueDaily(now, lastSent time.Time) bool {
	if now.Hour() < s.cfg.CutoffHour {
		return false
	}
	if lastSent.IsZero() {
		return true
	}
	return now.Sub(lastSent) >= s.cfg.MinGap
}

// Report serves the on-demand report, preferring a cached ad-hoc
// reading younger than the debounce window.
func (s *Scheduler) Report(ctx context.Context) (Report, error) {
	rec, ok, err := s.store.Latest(ctx, store.KindAdhoc, s.cfg.Debounce)
	if err != nil {
		return Report{}, errors.Wrap(err, "load cached reading")
	}
	if ok {
		s.log.Debug("report_served_from_cache", slog.Time("stored_at", rec.StoredAt))
		return s.render(rec.Reading, rec.StoredAt, true), nil
	}
	return s.Refresh(ctx)
}

// Refresh acquires a fresh reading regardless of the debounce window
// and stores it as the new ad-hoc cache entry. A reading that cannot be
// cached is still served; the debounce just will not apply to it.
func (s *Scheduler) Refresh(ctx context.Context) (Report, error) {
	reading, err := s.reader.Read(ctx)
	if err != nil {
		return Report{}, err
	}
	at := s.now()
	if rec, err := s.store.Put(ctx, store.KindAdhoc, reading); err != nil {
		s.log.Warn("adhoc_cache_write_failed", slog.Any("err", err))
	} else {
		at = rec.StoredAt
	}
	return s.render(reading, at, false), nil
}

func (s *Scheduler) render(reading sensor.Reading, at time.Time, cached bool) Report {
	return Report{
		Reading:          reading,
		GeneratedAt:      at,
		Cached:           cached,
		RealtimeCategory: aqi.Category(reading.RealtimeAQI),
		Avg10Category:    aqi.Category(reading.Avg10AQI),
	}
}

// Report is one rendered summary in both machine and human form.
type Report struct {
	Reading          sensor.Reading `json:"reading"`
	GeneratedAt      time.Time      `json:"generatedAt"`
	Cached           bool           `json:"cached"`
	RealtimeCategory string         `json:"realtimeCategory"`
	Avg10Category    string         `json:"avg10Category"`
}

// Text renders the multi-line human-readable form.
func (r Report) Text() string {
	var b strings.Builder
	title := "Air quality report"
	if strings.TrimSpace(r.Reading.PlaceName) != "" {
		title += " for " + r.Reading.PlaceName
	}
	b.WriteString(title + "\n")
	fmt.Fprintf(&b, "Realtime AQI: %s (%s)\n", formatAQI(r.Reading.RealtimeAQI), r.RealtimeCategory)
	fmt.Fprintf(&b, "10-minute average AQI: %s (%s)\n", formatAQI(r.Reading.Avg10AQI), r.Avg10Category)
	fmt.Fprintf(&b, "Sensor %s, observed %s\n", r.Reading.SensorID, r.Reading.Timestamp.Format(timeLayout))
	if r.Reading.Stale {
		b.WriteString("Warning: sensor data is stale and may not reflect current conditions.\n")
	}
	if r.Cached {
		fmt.Fprintf(&b, "Served from cache, stored %s.\n", r.GeneratedAt.Format(timeLayout))
	}
	return b.String()
}

func formatAQI(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.0f", v)
}
