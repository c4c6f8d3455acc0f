// internal/httpapi/middleware.go

package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"aqsentry/internal/metrics"
)

// WrapWithLogging decorates the handler chain with structured access
// logs and per-route metrics. The metric label collapses unknown paths
// so probes against random URLs cannot grow the series.
func WrapWithLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		logger.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.String("duration", duration.String()),
		)
		metrics.ObserveHTTPRequest(routeLabel(r), rw.status, duration)
	})
}

// WrapWithRecovery turns handler panics into 500 responses and logs the
// stack instead of killing the process.
func WrapWithRecovery(logger *slog.Logger, next http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: logger}),
		handlers.PrintRecoveryStack(true),
	)(next)
}

func routeLabel(r *http.Request) string {
	switch r.URL.Path {
	case "/report", "/refresh", "/status", "/healthz", "/readyz", "/metrics":
		return r.URL.Path
	default:
		return "other"
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader stores the status code so the middleware can log it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryLogger adapts slog to the gorilla recovery logging interface.
type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("http_panic", slog.String("detail", fmt.Sprint(v...)))
}
