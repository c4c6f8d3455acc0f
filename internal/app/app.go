// internal/app/app.go

// Package app wires configuration, logging, the acquisition pipeline,
// the cron schedule, and the HTTP surface into one runnable service.
package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"aqsentry/internal/config"
	"aqsentry/internal/detect"
	"aqsentry/internal/events"
	"aqsentry/internal/geo"
	"aqsentry/internal/httpapi"
	"aqsentry/internal/logging"
	"aqsentry/internal/notify"
	"aqsentry/internal/pipeline"
	"aqsentry/internal/report"
	"aqsentry/internal/sensor"
	"aqsentry/internal/store"
	"aqsentry/internal/transport"
)

// scheduledJobTimeout bounds one cron-triggered job end to end. The
// budget covers a full failover walk plus one notification dispatch.
const scheduledJobTimeout = 2 * time.Minute

// Application owns every long-lived component and their shutdown order.
type Application struct {
	cfg       config.Config
	log       *slog.Logger
	logClose  io.Closer
	store     store.Store
	reports   *report.Scheduler
	pipeline  *pipeline.Pipeline
	publisher *events.Publisher
	cron      *cron.Cron
	server    *http.Server
	health    *httpapi.HealthState
}

// New validates the configuration and builds a fully wired service
// instance. Nothing starts running until Run.
func New(cfg config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	for _, spec := range []string{cfg.CheckSchedule, cfg.DigestSchedule, cfg.HousekeepingSchedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, errors.Wrapf(err, "invalid cron expression %q", spec)
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.Wrap(err, "resolve timezone")
	}

	logger, logCloser, err := logging.Setup(logging.Options{
		FilePath: cfg.LogFilePath,
		Level:    cfg.LogLevel,
		Pretty:   cfg.LogPretty,
	})
	if err != nil {
		return nil, errors.Wrap(err, "logging init")
	}

	rc := transport.NewClient(transport.Options{}, logger.With(slog.String("component", "transport")))

	client, err := sensor.NewClient(cfg.SensorAPIBase, cfg.ServiceName, rc, logger.With(slog.String("component", "sensor_client")))
	if err != nil {
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "sensor client init")
	}

	var places sensor.PlaceResolver
	if cfg.GeocoderEnabled {
		g, err := geo.New(geo.Config{
			BaseURL:   cfg.GeocoderBaseURL,
			UserAgent: cfg.ServiceName,
			CacheTTL:  cfg.GeocoderTTL,
		}, rc, logger.With(slog.String("component", "geocoder")))
		if err != nil {
			_ = logCloser.Close()
			return nil, errors.Wrap(err, "geocoder init")
		}
		places = g
	}

	candidates := append([]string{cfg.SensorID}, cfg.BackupSensorIDs...)
	reader, err := sensor.NewReader(sensor.ReaderConfig{
		Candidates:   candidates,
		Mode:         sensor.Mode(cfg.SensorMode),
		StaleAfter:   cfg.StaleAfter,
		FetchTimeout: cfg.FetchTimeout,
	}, client, places, logger.With(slog.String("component", "sensor_reader")))
	if err != nil {
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "sensor reader init")
	}

	st, err := newStore(cfg, logger.With(slog.String("component", "store")))
	if err != nil {
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "store init")
	}

	notifier, err := notify.FromConfig(notify.Config{
		Webhook: notify.WebhookConfig{
			Key:         cfg.IFTTTKey,
			ServiceName: cfg.ServiceName,
		},
		SMS: notify.SMSConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.SMSFrom,
			Recipients: cfg.SMSRecipients,
		},
		Push: notify.PushConfig{
			Token:   cfg.PushoverToken,
			UserKey: cfg.PushoverUser,
		},
	}, rc, logger.With(slog.String("component", "notifier")))
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "notifier init")
	}

	reports, err := report.NewScheduler(report.Config{
		CutoffHour: cfg.DailyCutoffHour,
		MinGap:     cfg.DailyMinGap,
		Debounce:   cfg.AdhocDebounce,
	}, reader, st, logger.With(slog.String("component", "report")))
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "report scheduler init")
	}

	publisher, err := events.New(events.Config{
		Enabled:     cfg.EventsEnabled,
		Topic:       cfg.EventsTopic,
		Brokers:     cfg.KafkaBrokers,
		Acks:        cfg.EventsAcks,
		Partitioner: events.Partitioner(cfg.EventsPartitioner),
	}, logger)
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "event publisher init")
	}

	var heartbeat *retryablehttp.Client
	if strings.TrimSpace(cfg.HeartbeatURL) != "" {
		heartbeat = rc
	}

	pipe, err := pipeline.New(pipeline.Config{
		Retention:    cfg.Retention,
		HeartbeatURL: cfg.HeartbeatURL,
		Location:     loc,
	}, reader, st, detect.New(cfg.Threshold), notifier, reports, publisher, heartbeat, logger.With(slog.String("component", "pipeline")))
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "pipeline init")
	}

	health := httpapi.NewHealthState()
	router := httpapi.NewRouter(logger, health, reports, pipe)
	handler := httpapi.WrapWithRecovery(logger, httpapi.WrapWithLogging(logger, router))
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPWriteTimeout,
	}

	cronLog := cronLogger{log: logger.With(slog.String("component", "cron"))}
	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	logger.Info("service_configured",
		slog.String("sensor_id", cfg.SensorID),
		slog.Int("backup_sensors", len(cfg.BackupSensorIDs)),
		slog.String("mode", cfg.SensorMode),
		slog.Float64("threshold", cfg.Threshold),
		slog.String("channel", notifier.Name()),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("store_path", cfg.StorePath),
		slog.String("listen_address", cfg.ListenAddress),
		slog.Bool("events_enabled", cfg.EventsEnabled),
		slog.String("timezone", loc.String()),
	)

	return &Application{
		cfg:       cfg,
		log:       logger,
		logClose:  logCloser,
		store:     st,
		reports:   reports,
		pipeline:  pipe,
		publisher: publisher,
		cron:      scheduler,
		server:    server,
		health:    health,
	}, nil
}

// Logger exposes the configured slog logger so main can emit structured
// logs after initialization.
func (a *Application) Logger() *slog.Logger {
	return a.log
}

// Run blocks until the context is cancelled or the HTTP server
// terminates unexpectedly. The first interval check runs immediately so
// a restart re-establishes the baseline without waiting for the
// schedule.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.publisher.Start(ctx); err != nil {
		return errors.Wrap(err, "start event publisher")
	}

	a.runJob(ctx, "interval", a.pipeline.CheckInterval)

	if err := a.scheduleJobs(ctx); err != nil {
		return err
	}
	a.cron.Start()

	httpCh := make(chan error, 1)
	go func() {
		a.health.SetReady(true)
		a.log.Info("http_server_listen", slog.String("address", a.cfg.ListenAddress))
		httpCh <- a.server.ListenAndServe()
	}()

	var httpErr error
	for {
		select {
		case err := <-httpCh:
			httpErr = err
			httpCh = nil
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http_server_error", slog.Any("err", err))
			} else {
				a.log.Info("server_closed")
			}
			cancel()
		case <-ctx.Done():
			a.log.Info("shutdown_signal")
			a.health.SetReady(false)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("server_shutdown_failed", slog.Any("err", err))
				if httpErr == nil {
					httpErr = errors.Wrap(err, "shutdown")
				}
			}
			if httpCh != nil {
				if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("server_shutdown_error", slog.Any("err", err))
					if httpErr == nil {
						httpErr = err
					}
				}
			}

			<-a.cron.Stop().Done()
			if err := a.publisher.Stop(shutdownCtx); err != nil {
				a.log.Error("event_publisher_stop_err", slog.Any("err", err))
			}
			shutdownCancel()

			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				return httpErr
			}
			a.log.Info("shutdown_complete")
			return nil
		}
	}
}

// newStore builds the persistence driver the configuration selects. The
// memory driver satisfies the same contract but loses all baselines on
// restart, so running it is worth a warning.
func newStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("store_non_durable", slog.String("driver", cfg.StoreDriver))
		return store.NewMemoryStore(), nil
	}
	return store.NewFileStore(cfg.StorePath, log)
}

// scheduleJobs registers the three background jobs. The cron chain
// skips a firing while the previous run of the same job is still going,
// so ticks never overlap.
func (a *Application) scheduleJobs(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"interval", a.cfg.CheckSchedule, a.pipeline.CheckInterval},
		{"daily", a.cfg.DigestSchedule, a.pipeline.RunDaily},
		{"housekeeping", a.cfg.HousekeepingSchedule, a.pipeline.Housekeeping},
	}
	for _, job := range jobs {
		job := job
		if _, err := a.cron.AddFunc(job.spec, func() {
			a.runJob(ctx, job.name, job.fn)
		}); err != nil {
			return errors.Wrapf(err, "schedule %s job", job.name)
		}
		a.log.Info("job_scheduled",
			slog.String("job", job.name),
			slog.String("schedule", job.spec))
	}
	return nil
}

// runJob executes one job under the shared timeout. Failures are logged
// here; the jobs record their own metrics.
func (a *Application) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	jobCtx, cancel := context.WithTimeout(ctx, scheduledJobTimeout)
	defer cancel()
	if err := fn(jobCtx); err != nil {
		a.log.Error("scheduled_job_failed",
			slog.String("job", name),
			slog.Any("err", err))
	}
}

// Close releases resources owned by the application instance.
func (a *Application) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
		a.store = nil
	}
	if a.logClose != nil {
		if err := a.logClose.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.logClose = nil
	}
	return firstErr
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, slog.Any("err", err))...)
}
