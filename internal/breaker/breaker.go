// internal/breaker/breaker.go

// Package breaker implements a three-state circuit breaker used to
// guard the event bus publisher. Closed passes operations through and
// counts consecutive failures; Open fast-fails until the reset timeout
// has elapsed; HalfOpen lets probes through and closes again after
// enough consecutive successes.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrOpen is returned without invoking the operation while the breaker
// is open and the reset timeout has not yet elapsed.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds the breaker tunables.
type Config struct {
	// Enabled gates whether the application wires a breaker at all.
	Enabled bool
	// MaxFailures is the consecutive-failure count that opens the
	// breaker.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// SuccessesToClose is the consecutive half-open successes required
	// to close again.
	SuccessesToClose int
}

// ConfigFromEnv reads the breaker tunables from the environment.
//
//   - CB_ENABLED (default false)
//   - CB_FAILURE_THRESHOLD (default 5)
//   - CB_SUCCESS_THRESHOLD (default 2)
//   - CB_OPEN_SECONDS (default 30)
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Enabled:          parseEnvBool("CB_ENABLED"),
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		SuccessesToClose: 2,
	}

	failures, err := parseEnvInt("CB_FAILURE_THRESHOLD", cfg.MaxFailures)
	if err != nil {
		return Config{}, err
	}
	successes, err := parseEnvInt("CB_SUCCESS_THRESHOLD", cfg.SuccessesToClose)
	if err != nil {
		return Config{}, err
	}
	openSeconds, err := parseEnvFloat("CB_OPEN_SECONDS", cfg.ResetTimeout.Seconds())
	if err != nil {
		return Config{}, err
	}

	if failures < 1 {
		return Config{}, errors.New("CB_FAILURE_THRESHOLD must be >= 1")
	}
	if successes < 1 {
		return Config{}, errors.New("CB_SUCCESS_THRESHOLD must be >= 1")
	}
	if openSeconds <= 0 {
		return Config{}, errors.New("CB_OPEN_SECONDS must be > 0")
	}

	cfg.MaxFailures = failures
	cfg.SuccessesToClose = successes
	cfg.ResetTimeout = time.Duration(openSeconds * float64(time.Second))
	return cfg, nil
}

// Breaker guards one named operation. A nil *Breaker passes every
// operation through, so callers can wire it conditionally.
type Breaker struct {
	name string
	cfg  Config
	log  *slog.Logger

	mu         sync.Mutex
	state      State
	fails      int
	halfOpenOK int
	openedAt   time.Time

	now func() time.Time
}

// New builds a breaker with the given tunables. Zero or negative config
// fields fall back to the ConfigFromEnv defaults.
func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.SuccessesToClose < 1 {
		cfg.SuccessesToClose = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		log:   logger,
		state: Closed,
		now:   time.Now,
	}
	b.log.Info("breaker_created",
		slog.String("name", name),
		slog.Int("max_failures", cfg.MaxFailures),
		slog.Duration("reset_timeout", cfg.ResetTimeout),
		slog.Int("successes_to_close", cfg.SuccessesToClose))
	return b
}

// Execute runs op under the breaker policy. While open it returns
// ErrOpen without invoking op; otherwise op's own error is returned and
// counted.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if b == nil {
		return op(ctx)
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// State reports the current position.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		since := b.now().Sub(b.openedAt)
		if since < b.cfg.ResetTimeout {
			b.log.Warn("breaker_fast_fail",
				slog.String("name", b.name),
				slog.Duration("since_open", since))
			return ErrOpen
		}
		b.state = HalfOpen
		b.halfOpenOK = 0
		b.log.Info("breaker_half_open", slog.String("name", b.name))
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		switch b.state {
		case HalfOpen:
			b.halfOpenOK++
			if b.halfOpenOK >= b.cfg.SuccessesToClose {
				b.state = Closed
				b.fails = 0
				b.log.Info("breaker_closed", slog.String("name", b.name))
			}
		case Closed:
			b.fails = 0
		}
		return
	}

	switch b.state {
	case HalfOpen:
		b.open("probe failed")
	case Closed:
		b.fails++
		b.log.Warn("breaker_operation_failed",
			slog.String("name", b.name),
			slog.Int("consecutive_failures", b.fails),
			slog.Any("err", err))
		if b.fails >= b.cfg.MaxFailures {
			b.open("failure threshold reached")
		}
	}
}

// open must be called with b.mu held.
func (b *Breaker) open(reason string) {
	b.state = Open
	b.openedAt = b.now()
	b.log.Error("breaker_opened",
		slog.String("name", b.name),
		slog.String("reason", reason))
}

func parseEnvInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

func parseEnvFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

func parseEnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
