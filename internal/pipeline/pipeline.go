// internal/pipeline/pipeline.go

// Package pipeline orchestrates the scheduled jobs: the interval check
// that feeds the threshold detector, the daily digest, and retention
// housekeeping. Jobs run sequentially under the scheduler; nothing in
// here assumes concurrent invocations of the same job.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"aqsentry/internal/detect"
	"aqsentry/internal/metrics"
	"aqsentry/internal/notify"
	"aqsentry/internal/report"
	"aqsentry/internal/sensor"
	"aqsentry/internal/store"
)

const (
	// DefaultBaselineMaxAge bounds how old the previous interval reading
	// may be to serve as the crossing baseline. A gap in the chain means
	// the next tick establishes a fresh baseline instead of alerting on
	// a comparison across the gap.
	DefaultBaselineMaxAge = time.Hour

	heartbeatTimeout = 10 * time.Second

	// Job names used in logs and the checks_total metric.
	jobInterval     = "interval"
	jobDaily        = "daily"
	jobHousekeeping = "housekeeping"
)

// Acquirer produces a fresh reading.
type Acquirer interface {
	Read(ctx context.Context) (sensor.Reading, error)
}

// EventSink receives pipeline outcomes for downstream consumers. All
// methods are best effort from the pipeline's point of view.
type EventSink interface {
	PublishReading(ctx context.Context, reading sensor.Reading) error
	PublishThreshold(ctx context.Context, event detect.Event, reading sensor.Reading) error
	PublishDigest(ctx context.Context, reading sensor.Reading) error
}

// Config carries the pipeline policy.
type Config struct {
	// BaselineMaxAge is the recency filter applied to the previous
	// interval reading.
	BaselineMaxAge time.Duration
	// Retention is how long stored readings are kept.
	Retention time.Duration
	// HeartbeatURL, when set, is fetched after every fully successful
	// interval check.
	HeartbeatURL string
	// Location is the timezone the daily digest gate evaluates in.
	Location *time.Location
}

// Status is a point-in-time snapshot of pipeline health for the HTTP
// surface.
type Status struct {
	StartedAt    time.Time       `json:"startedAt"`
	Threshold    float64         `json:"threshold"`
	LastCheckAt  time.Time       `json:"lastCheckAt"`
	LastCheckOK  bool            `json:"lastCheckOk"`
	LastCheckErr string          `json:"lastCheckErr,omitempty"`
	LastEvent    string          `json:"lastEvent,omitempty"`
	LastReading  *sensor.Reading `json:"lastReading,omitempty"`
	LastDigestAt time.Time       `json:"lastDigestAt"`
}

// Pipeline wires acquisition, persistence, detection, notification, and
// event publishing together.
type Pipeline struct {
	cfg       Config
	reader    Acquirer
	store     store.Store
	detector  detect.Detector
	notifier  notify.Notifier
	reports   *report.Scheduler
	sink      EventSink
	heartbeat *retryablehttp.Client
	log       *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	status Status
}

// New validates the wiring and builds a pipeline. The sink and the
// heartbeat client are optional; everything else is required.
func New(cfg Config, reader Acquirer, st store.Store, detector detect.Detector, notifier notify.Notifier, reports *report.Scheduler, sink EventSink, heartbeat *retryablehttp.Client, logger *slog.Logger) (*Pipeline, error) {
	if reader == nil {
		return nil, errors.New("pipeline requires a reader")
	}
	if st == nil {
		return nil, errors.New("pipeline requires a store")
	}
	if notifier == nil {
		return nil, errors.New("pipeline requires a notifier")
	}
	if reports == nil {
		return nil, errors.New("pipeline requires a report scheduler")
	}
	if logger == nil {
		return nil, errors.New("pipeline requires a logger")
	}
	if strings.TrimSpace(cfg.HeartbeatURL) != "" && heartbeat == nil {
		return nil, errors.New("heartbeat url set but no heartbeat client")
	}
	if cfg.BaselineMaxAge <= 0 {
		cfg.BaselineMaxAge = DefaultBaselineMaxAge
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := &Pipeline{
		cfg:       cfg,
		reader:    reader,
		store:     st,
		detector:  detector,
		notifier:  notifier,
		reports:   reports,
		sink:      sink,
		heartbeat: heartbeat,
		log:       logger,
		now:       time.Now,
	}
	p.status = Status{
		StartedAt: p.now(),
		Threshold: detector.Threshold(),
	}
	return p, nil
}

// Status returns a snapshot for the HTTP surface.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// CheckInterval runs one scheduled poll: acquire, load the baseline,
// persist, evaluate the crossing, notify, publish, heartbeat. The
// baseline is loaded before the new reading is stored so the comparison
// is always against the previous tick. A failed store write aborts the
// tick; a failed notification is surfaced but the stored baseline
// stands, so the same crossing is not re-alerted next tick.
func (p *Pipeline) CheckInterval(ctx context.Context) error {
	reading, err := p.reader.Read(ctx)
	if err != nil {
		p.finishCheck(Status{}, err)
		p.log.Error("interval_check_read_failed", slog.Any("err", err))
		metrics.IncCheck(jobInterval, metrics.OutcomeFail)
		return err
	}

	prev, hasPrev, err := p.store.Latest(ctx, store.KindInterval, p.cfg.BaselineMaxAge)
	if err != nil {
		p.finishCheck(Status{LastReading: &reading}, err)
		metrics.IncCheck(jobInterval, metrics.OutcomeFail)
		return errors.Wrap(err, "load baseline")
	}

	if _, err := p.store.Put(ctx, store.KindInterval, reading); err != nil {
		p.finishCheck(Status{LastReading: &reading}, err)
		metrics.IncCheck(jobInterval, metrics.OutcomeFail)
		return errors.Wrap(err, "store reading")
	}

	p.recordGauges(reading)

	event := detect.EventNone
	if hasPrev {
		event = p.detector.Evaluate(prev.Reading.Avg10AQI, reading.Avg10AQI)
	} else {
		p.log.Info("baseline_established",
			slog.String("sensor_id", reading.SensorID),
			slog.Float64("avg10_aqi", reading.Avg10AQI))
	}

	var notifyErr error
	if event != detect.EventNone {
		metrics.IncThresholdEvent(string(event))
		p.log.Info("threshold_crossing",
			slog.String("event", string(event)),
			slog.Float64("previous", prev.Reading.Avg10AQI),
			slog.Float64("current", reading.Avg10AQI),
			slog.Float64("threshold", p.detector.Threshold()))
		notifyErr = p.notifier.Notify(ctx, event, reading)
		outcome := metrics.OutcomeOK
		if notifyErr != nil {
			outcome = metrics.OutcomeFail
			p.log.Error("notification_failed",
				slog.String("channel", p.notifier.Name()),
				slog.String("event", string(event)),
				slog.Any("err", notifyErr))
		}
		metrics.IncNotification(p.notifier.Name(), string(event), outcome)
	}

	p.publishReading(ctx, event, reading)

	status := Status{LastReading: &reading}
	if event != detect.EventNone {
		status.LastEvent = string(event)
	}
	p.finishCheck(status, notifyErr)

	if notifyErr != nil {
		metrics.IncCheck(jobInterval, metrics.OutcomeFail)
		return notifyErr
	}

	p.beatHeart(ctx)
	metrics.IncCheck(jobInterval, metrics.OutcomeOK)
	return nil
}

// RunDaily sends the digest when the gate allows it. The daily record is
// written only after the notifier confirms delivery, so a failed send is
// retried on the next scheduler pass.
func (p *Pipeline) RunDaily(ctx context.Context) error {
	last, hasLast, err := p.store.Latest(ctx, store.KindDaily, 0)
	if err != nil {
		metrics.IncCheck(jobDaily, metrics.OutcomeFail)
		return errors.Wrap(err, "load digest marker")
	}
	lastSent := time.Time{}
	if hasLast {
		lastSent = last.StoredAt
	}

	now := p.now().In(p.cfg.Location)
	if !p.reports.DueDaily(now, lastSent) {
		p.log.Debug("daily_digest_not_due",
			slog.Time("now", now),
			slog.Time("last_sent", lastSent))
		return nil
	}

	reading, err := p.reader.Read(ctx)
	if err != nil {
		p.log.Error("daily_digest_read_failed", slog.Any("err", err))
		metrics.IncCheck(jobDaily, metrics.OutcomeFail)
		return err
	}

	if err := p.notifier.Notify(ctx, notify.EventDailyReport, reading); err != nil {
		metrics.IncNotification(p.notifier.Name(), string(notify.EventDailyReport), metrics.OutcomeFail)
		metrics.IncCheck(jobDaily, metrics.OutcomeFail)
		p.log.Error("daily_digest_send_failed",
			slog.String("channel", p.notifier.Name()),
			slog.Any("err", err))
		return err
	}
	metrics.IncNotification(p.notifier.Name(), string(notify.EventDailyReport), metrics.OutcomeOK)

	if _, err := p.store.Put(ctx, store.KindDaily, reading); err != nil {
		metrics.IncCheck(jobDaily, metrics.OutcomeFail)
		return errors.Wrap(err, "record digest marker")
	}

	if p.sink != nil {
		if err := p.sink.PublishDigest(ctx, reading); err != nil {
			p.log.Warn("digest_publish_failed", slog.Any("err", err))
		}
	}

	p.mu.Lock()
	p.status.LastDigestAt = p.now()
	p.mu.Unlock()

	p.log.Info("daily_digest_sent",
		slog.String("channel", p.notifier.Name()),
		slog.Float64("avg10_aqi", reading.Avg10AQI))
	metrics.IncCheck(jobDaily, metrics.OutcomeOK)
	return nil
}

// Housekeeping trims stored readings past the retention horizon.
func (p *Pipeline) Housekeeping(ctx context.Context) error {
	cutoff := p.now().Add(-p.cfg.Retention)
	removed, err := p.store.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		metrics.IncCheck(jobHousekeeping, metrics.OutcomeFail)
		return errors.Wrap(err, "expire stored readings")
	}
	metrics.AddExpiredRecords(removed)
	if removed > 0 {
		p.log.Info("retention_sweep",
			slog.Int("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	metrics.IncCheck(jobHousekeeping, metrics.OutcomeOK)
	return nil
}

func (p *Pipeline) recordGauges(reading sensor.Reading) {
	if !math.IsNaN(reading.RealtimeAQI) {
		metrics.SetCurrentAQI("realtime", reading.RealtimeAQI)
	}
	if !math.IsNaN(reading.Avg10AQI) {
		metrics.SetCurrentAQI("avg10", reading.Avg10AQI)
	}
}

func (p *Pipeline) publishReading(ctx context.Context, event detect.Event, reading sensor.Reading) {
	if p.sink == nil {
		return
	}
	if err := p.sink.PublishReading(ctx, reading); err != nil {
		p.log.Warn("reading_publish_failed", slog.Any("err", err))
	}
	if event == detect.EventNone {
		return
	}
	if err := p.sink.PublishThreshold(ctx, event, reading); err != nil {
		p.log.Warn("threshold_publish_failed", slog.Any("err", err))
	}
}

// beatHeart pings the dead-man's-switch. Failures are logged and never
// fail the check; the switch exists to catch silence, not to gate it.
func (p *Pipeline) beatHeart(ctx context.Context) {
	url := strings.TrimSpace(p.cfg.HeartbeatURL)
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.Warn("heartbeat_request_failed", slog.Any("err", err))
		return
	}
	resp, err := p.heartbeat.Do(req)
	if err != nil {
		p.log.Warn("heartbeat_failed", slog.Any("err", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Warn("heartbeat_rejected", slog.Int("status", resp.StatusCode))
		return
	}
	p.log.Debug("heartbeat_sent")
}

// finishCheck merges the tick outcome into the status snapshot.
func (p *Pipeline) finishCheck(update Status, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastCheckAt = p.now()
	p.status.LastCheckOK = err == nil
	p.status.LastCheckErr = ""
	if err != nil {
		p.status.LastCheckErr = err.Error()
	}
	if update.LastReading != nil {
		p.status.LastReading = update.LastReading
	}
	if update.LastEvent != "" {
		p.status.LastEvent = update.LastEvent
	}
}
