// internal/transport/transport.go

// Package transport builds the retrying HTTP client shared by every
// outbound integration. Retries cover connection-level failures only;
// a response is always final and its status is the caller's to judge.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultPerTryTimeout = 5 * time.Second
	defaultRetryMax      = 3
	defaultRetryWaitMin  = 500 * time.Millisecond
	defaultRetryWaitMax  = 4 * time.Second
)

// Options tunes the retrying client. Zero values fall back to defaults.
type Options struct {
	// PerTryTimeout bounds each individual HTTP attempt.
	PerTryTimeout time.Duration
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
}

// NewClient returns a retryablehttp client with bounded exponential
// backoff and a retry policy that never retries on HTTP status codes.
func NewClient(opts Options, logger *slog.Logger) *retryablehttp.Client {
	if opts.PerTryTimeout <= 0 {
		opts.PerTryTimeout = defaultPerTryTimeout
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.PerTryTimeout
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = defaultRetryWaitMin
	rc.RetryWaitMax = defaultRetryWaitMax
	rc.CheckRetry = retryOnConnectionFailure
	if logger != nil {
		rc.Logger = leveledLogger{log: logger}
	} else {
		rc.Logger = nil
	}
	return rc
}

// retryOnConnectionFailure retries requests that never produced a
// response. Non-success statuses are surfaced to the caller untouched.
func retryOnConnectionFailure(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return false, nil
}

// leveledLogger adapts slog to the retryablehttp logging interface.
type leveledLogger struct {
	log *slog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, keysAndValues...)
}
