// internal/events/events.go

// Package events publishes pipeline outcomes to a Kafka topic so other
// systems can consume readings and crossings without polling the HTTP
// surface. Publishing is asynchronous: Publish enqueues and a single
// background loop delivers, guarded by a circuit breaker. A full queue
// sheds events rather than stall the caller, and a disabled publisher
// accepts every call and does nothing.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"aqsentry/internal/breaker"
	"aqsentry/internal/detect"
	"aqsentry/internal/metrics"
	"aqsentry/internal/sensor"
)

// SchemaVersion tags every envelope so consumers can evolve safely.
const SchemaVersion = "v1"

// Envelope types.
const (
	TypeReading   = "aq.reading"
	TypeThreshold = "aq.threshold"
	TypeDigest    = "aq.digest"
)

// Partitioner enumerates the supported Kafka partition strategies.
type Partitioner string

const (
	// PartitionerHash keys messages by sensor so one sensor's events
	// stay ordered within a partition.
	PartitionerHash Partitioner = "hash"
	// PartitionerRoundRobin spreads messages evenly regardless of key.
	PartitionerRoundRobin Partitioner = "roundrobin"
)

// Envelope is the wire form of one published event.
type Envelope struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	SchemaVersion string         `json:"schemaVersion"`
	SensorID      string         `json:"sensorId"`
	Event         string         `json:"event,omitempty"`
	Reading       sensor.Reading `json:"reading"`
	EmittedAt     time.Time      `json:"emittedAt"`
}

// Config carries the publisher's runtime options.
type Config struct {
	Enabled     bool
	Topic       string
	Brokers     []string
	Acks        int
	Partitioner Partitioner
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaWriteCloser interface {
	Close() error
}

type publishRequest struct {
	key   []byte
	value []byte
	typ   string
}

const (
	publisherQueueSize = 256
	busBreakerName     = "events-writer"
)

var (
	errNilLogger  = errors.New("publisher requires a logger")
	errNilWriter  = errors.New("publisher requires a writer")
	errNotStarted = errors.New("event publisher not started")
)

// Publisher delivers envelopes to the configured topic in the
// background.
type Publisher struct {
	cfg       Config
	log       *slog.Logger
	writer    kafkaMessageWriter
	closer    kafkaWriteCloser
	brk       *breaker.Breaker
	enabled   bool
	queue     chan publishRequest
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// New builds a publisher backed by a Kafka writer. The breaker tunables
// come from the environment so deployments can flip protection on
// without a config rollout.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		return nil, errNilLogger
	}
	if !cfg.Enabled {
		log.Info("event_publisher_disabled")
		return &Publisher{cfg: cfg, log: log, enabled: false}, nil
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("event topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	balancer, err := resolveBalancer(cfg.Partitioner)
	if err != nil {
		return nil, err
	}
	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		AllowAutoTopicCreation: false,
		Balancer:               balancer,
	}

	var brk *breaker.Breaker
	bcfg, err := breaker.ConfigFromEnv()
	if err != nil {
		log.Error("event_publisher_breaker_config_err", slog.Any("err", err))
	} else if bcfg.Enabled {
		brk = breaker.New(busBreakerName, bcfg, log)
	} else {
		log.Info("event_publisher_breaker_disabled", slog.String("name", busBreakerName))
	}

	return newPublisherWithWriter(cfg, log, baseWriter, baseWriter, brk)
}

// newPublisherWithWriter wires the provided writer into the publisher.
// Tests use it to substitute a recording writer.
func newPublisherWithWriter(cfg Config, log *slog.Logger, writer kafkaMessageWriter, closer kafkaWriteCloser, brk *breaker.Breaker) (*Publisher, error) {
	if log == nil {
		return nil, errNilLogger
	}
	if writer == nil {
		return nil, errNilWriter
	}
	p := &Publisher{
		cfg:     cfg,
		log:     log.With(slog.String("component", "event_publisher")),
		writer:  writer,
		closer:  closer,
		brk:     brk,
		enabled: cfg.Enabled,
	}
	if p.enabled {
		p.queue = make(chan publishRequest, publisherQueueSize)
		metrics.SetBusQueueDepth(0)
	}
	return p, nil
}

// Start launches the background delivery loop.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	p.startOnce.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.log.Info("event_publisher_started", slog.String("topic", p.cfg.Topic))
	})
	if !p.started.Load() {
		return errNotStarted
	}
	return nil
}

// Stop shuts the loop down and waits for queued events to drain, bounded
// by ctx.
func (p *Publisher) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	var stopErr error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if p.closer != nil {
			if err := p.closer.Close(); err != nil {
				p.log.Error("event_publisher_close_err", slog.Any("err", err))
			}
		}
		metrics.SetBusQueueDepth(0)
		p.log.Info("event_publisher_stopped")
	})
	return stopErr
}

// PublishReading queues the outcome of a scheduled poll.
func (p *Publisher) PublishReading(ctx context.Context, reading sensor.Reading) error {
	return p.publish(ctx, Envelope{Type: TypeReading, SensorID: reading.SensorID, Reading: reading})
}

// PublishThreshold queues a detected crossing.
func (p *Publisher) PublishThreshold(ctx context.Context, event detect.Event, reading sensor.Reading) error {
	return p.publish(ctx, Envelope{Type: TypeThreshold, SensorID: reading.SensorID, Event: string(event), Reading: reading})
}

// PublishDigest queues a delivered daily digest.
func (p *Publisher) PublishDigest(ctx context.Context, reading sensor.Reading) error {
	return p.publish(ctx, Envelope{Type: TypeDigest, SensorID: reading.SensorID, Reading: reading})
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	if !p.enabled {
		return nil
	}
	if !p.started.Load() {
		p.log.Error("event_publish_not_started", slog.String("type", env.Type))
		return errNotStarted
	}
	env.ID = uuid.NewString()
	env.SchemaVersion = SchemaVersion
	env.EmittedAt = time.Now().UTC()

	value, err := json.Marshal(env)
	if err != nil {
		metrics.IncBusPublish(metrics.OutcomeFail)
		p.log.Error("event_publish_encode_err", slog.Any("err", err), slog.String("type", env.Type))
		return err
	}
	if err := ctx.Err(); err != nil {
		metrics.IncBusPublish(metrics.OutcomeFail)
		return err
	}
	req := publishRequest{key: []byte(env.SensorID), value: value, typ: env.Type}
	select {
	case p.queue <- req:
		metrics.SetBusQueueDepth(len(p.queue))
		p.log.Debug("event_publish_enqueued", slog.String("type", env.Type), slog.String("id", env.ID))
	default:
		// The pipeline must never stall behind a slow broker, so a full
		// queue sheds the event instead of blocking.
		metrics.IncBusDropped()
		p.log.Warn("event_publish_dropped",
			slog.String("type", env.Type),
			slog.Int("queue_depth", len(p.queue)))
	}
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			p.started.Store(false)
			p.log.Info("event_publisher_loop_exit")
			return
		case req := <-p.queue:
			metrics.SetBusQueueDepth(len(p.queue))
			p.deliver(req)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case req := <-p.queue:
			metrics.SetBusQueueDepth(len(p.queue))
			p.deliver(req)
		default:
			return
		}
	}
}

// deliver uses a background context so draining after shutdown still
// writes; the writer's own timeouts bound the attempt.
func (p *Publisher) deliver(req publishRequest) {
	err := p.brk.Execute(context.Background(), func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, kafka.Message{Key: req.key, Value: req.value})
	})
	if err != nil {
		metrics.IncBusPublish(metrics.OutcomeFail)
		p.log.Error("event_publish_err", slog.Any("err", err), slog.String("type", req.typ))
		return
	}
	metrics.IncBusPublish(metrics.OutcomeOK)
	p.log.Debug("event_publish_success", slog.String("type", req.typ))
}

func resolveBalancer(partitioner Partitioner) (kafka.Balancer, error) {
	switch partitioner {
	case PartitionerHash, "":
		return &kafka.Hash{}, nil
	case PartitionerRoundRobin:
		return &kafka.RoundRobin{}, nil
	default:
		return nil, errors.Errorf("unsupported partitioner: %s", partitioner)
	}
}
