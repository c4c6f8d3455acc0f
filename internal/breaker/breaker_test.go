// internal/breaker/breaker_test.go

package breaker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var errSynthetic = errors.New("synthetic failure")

func newTestBreaker(cfg Config) *Breaker {
	return New("test", cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func failingOp(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return errSynthetic
	}
}

func succeedingOp(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return nil
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	var calls int
	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failingOp(&calls)); !errors.Is(err, errSynthetic) {
			t.Fatalf("attempt %d: expected op error, got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("expected open after 3 failures, got %v", b.State())
	}

	err := b.Execute(ctx, failingOp(&calls))
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("fast-fail must not invoke the op; got %d calls", calls)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	var calls int
	_ = b.Execute(ctx, failingOp(&calls))
	_ = b.Execute(ctx, failingOp(&calls))
	if err := b.Execute(ctx, succeedingOp(&calls)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = b.Execute(ctx, failingOp(&calls))
	_ = b.Execute(ctx, failingOp(&calls))

	if b.State() != Closed {
		t.Fatalf("expected closed after interleaved success, got %v", b.State())
	}
}

func TestHalfOpenClosesAfterEnoughSuccesses(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Minute, SuccessesToClose: 2})
	ctx := context.Background()

	var calls int
	_ = b.Execute(ctx, failingOp(&calls))
	if b.State() != Open {
		t.Fatalf("expected open, got %v", b.State())
	}

	// Move the clock past the reset timeout so the next call probes.
	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if err := b.Execute(ctx, succeedingOp(&calls)); err != nil {
		t.Fatalf("probe should pass through, got %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("one success of two should stay half-open, got %v", b.State())
	}

	if err := b.Execute(ctx, succeedingOp(&calls)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after second success, got %v", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Minute, SuccessesToClose: 1})
	ctx := context.Background()

	var calls int
	_ = b.Execute(ctx, failingOp(&calls))

	probeTime := time.Now().Add(2 * time.Minute)
	b.now = func() time.Time { return probeTime }

	if err := b.Execute(ctx, failingOp(&calls)); !errors.Is(err, errSynthetic) {
		t.Fatalf("expected probe to run and fail, got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected reopened after failed probe, got %v", b.State())
	}

	// Still inside the new open window: fast fail.
	if err := b.Execute(ctx, failingOp(&calls)); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestNilBreakerPassesThrough(t *testing.T) {
	var b *Breaker
	var calls int
	if err := b.Execute(context.Background(), succeedingOp(&calls)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected op invoked once, got %d", calls)
	}
	if b.State() != Closed {
		t.Fatalf("nil breaker reports closed, got %v", b.State())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CB_ENABLED", "true")
	t.Setenv("CB_FAILURE_THRESHOLD", "4")
	t.Setenv("CB_SUCCESS_THRESHOLD", "3")
	t.Setenv("CB_OPEN_SECONDS", "0.5")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled {
		t.Fatalf("expected enabled")
	}
	if cfg.MaxFailures != 4 {
		t.Fatalf("expected max failures 4, got %d", cfg.MaxFailures)
	}
	if cfg.SuccessesToClose != 3 {
		t.Fatalf("expected successes 3, got %d", cfg.SuccessesToClose)
	}
	if cfg.ResetTimeout != 500*time.Millisecond {
		t.Fatalf("expected reset 500ms, got %s", cfg.ResetTimeout)
	}
}

func TestConfigFromEnvDefaultsAndValidation(t *testing.T) {
	t.Setenv("CB_ENABLED", "")
	t.Setenv("CB_FAILURE_THRESHOLD", "")
	t.Setenv("CB_SUCCESS_THRESHOLD", "")
	t.Setenv("CB_OPEN_SECONDS", "")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Enabled {
		t.Fatalf("expected disabled by default")
	}
	if cfg.MaxFailures != 5 || cfg.SuccessesToClose != 2 || cfg.ResetTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	t.Setenv("CB_FAILURE_THRESHOLD", "0")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for zero failure threshold")
	}

	t.Setenv("CB_FAILURE_THRESHOLD", "nope")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unparseable threshold")
	}
}
