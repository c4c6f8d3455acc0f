// internal/transport/transport_test.go

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	retry, err := retryOnConnectionFailure(ctx, nil, errors.New("connection refused"))
	if err != nil || !retry {
		t.Fatalf("connection failures must retry, got retry=%v err=%v", retry, err)
	}

	resp := &http.Response{StatusCode: http.StatusBadGateway}
	retry, err = retryOnConnectionFailure(ctx, resp, nil)
	if err != nil || retry {
		t.Fatalf("responses are final regardless of status, got retry=%v err=%v", retry, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	retry, err = retryOnConnectionFailure(cancelled, nil, errors.New("connection refused"))
	if retry || err == nil {
		t.Fatalf("cancelled context must stop retries, got retry=%v err=%v", retry, err)
	}
}

func TestClientDoesNotRetryOnStatus(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rc := NewClient(Options{RetryMax: 3}, nil)
	resp, err := rc.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected the status to pass through, got %d", resp.StatusCode)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
}

func TestNewClientDefaults(t *testing.T) {
	rc := NewClient(Options{}, nil)
	if rc.RetryMax != defaultRetryMax {
		t.Fatalf("expected default RetryMax %d, got %d", defaultRetryMax, rc.RetryMax)
	}
	if rc.HTTPClient.Timeout != defaultPerTryTimeout {
		t.Fatalf("expected per-try timeout %s, got %s", defaultPerTryTimeout, rc.HTTPClient.Timeout)
	}
}
