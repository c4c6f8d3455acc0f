// internal/httpapi/router.go

// Package httpapi exposes the service's HTTP surface: the on-demand
// report, a forced refresh, pipeline status, health probes, and the
// Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aqsentry/internal/pipeline"
	"aqsentry/internal/report"
)

// ReportSource exposes the subset of the report scheduler the handlers
// need. A small interface keeps the router testable without a sensor.
type ReportSource interface {
	Report(ctx context.Context) (report.Report, error)
	Refresh(ctx context.Context) (report.Report, error)
}

// StatusSource provides the pipeline snapshot for the status endpoint.
type StatusSource interface {
	Status() pipeline.Status
}

// NewRouter wires all HTTP routes exposed by the service.
func NewRouter(logger *slog.Logger, health *HealthState, reports ReportSource, status StatusSource) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/report", reportHandler(logger, reports)).Methods("GET")
	r.Handle("/refresh", refreshHandler(logger, reports)).Methods("POST")
	r.Handle("/status", statusHandler(logger, status)).Methods("GET")
	r.Handle("/healthz", healthLiveHandler()).Methods("GET")
	r.Handle("/readyz", healthReadyHandler(health)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if _, err := w.Write([]byte("not found")); err != nil {
			logger.Error("write_response_failed", slog.Any("err", err))
		}
	})

	return r
}

// reportHandler serves the debounced report in the negotiated format.
func reportHandler(logger *slog.Logger, reports ReportSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep, err := reports.Report(r.Context())
		if err != nil {
			logger.Error("report_failed", slog.Any("err", err))
			writeUpstreamError(w)
			return
		}
		writeReport(logger, w, r, rep)
	})
}

// refreshHandler forces a fresh acquisition, bypassing the debounce.
func refreshHandler(logger *slog.Logger, reports ReportSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep, err := reports.Refresh(r.Context())
		if err != nil {
			logger.Error("refresh_failed", slog.Any("err", err))
			writeUpstreamError(w)
			return
		}
		logger.Info("report_refreshed",
			slog.String("sensor_id", rep.Reading.SensorID),
			slog.Float64("avg10_aqi", rep.Reading.Avg10AQI))
		writeReport(logger, w, r, rep)
	})
}

func statusHandler(logger *slog.Logger, status StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(status.Status()); err != nil {
			logger.Error("status_encode_failed", slog.Any("err", err))
		}
	})
}

func healthLiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func healthReadyHandler(health *HealthState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !health.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// writeReport renders text by default and JSON when the client asks via
// ?format=json or an Accept header.
func writeReport(logger *slog.Logger, w http.ResponseWriter, r *http.Request, rep report.Report) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			logger.Error("report_encode_failed", slog.Any("err", err))
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(rep.Text())); err != nil {
		logger.Error("write_response_failed", slog.Any("err", err))
	}
}

func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "json") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeUpstreamError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte("sensor acquisition failed"))
}
