// internal/metrics/metrics.go

// Package metrics registers the service's Prometheus collectors and
// exposes small helpers so callers never touch label plumbing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the counters below.
const (
	OutcomeOK   = "ok"
	OutcomeFail = "fail"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "checks_total",
		Help:      "Scheduled pipeline runs by kind and outcome.",
	}, []string{"kind", "outcome"})

	sensorFailoversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "sensor_failovers_total",
		Help:      "Times acquisition advanced to a backup sensor.",
	})

	sensorFetchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aqsentry",
		Name:      "sensor_fetch_seconds",
		Help:      "Sensor API fetch latency per candidate attempt.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "notifications_total",
		Help:      "Notification dispatches by channel, event, and outcome.",
	}, []string{"channel", "event", "outcome"})

	thresholdEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "threshold_events_total",
		Help:      "Detected threshold crossings by direction.",
	}, []string{"event"})

	currentAQI = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aqsentry",
		Name:      "current_aqi",
		Help:      "Most recently observed AQI by series (realtime, avg10).",
	}, []string{"series"})

	expiredRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "store_expired_records_total",
		Help:      "Stored readings removed by retention housekeeping.",
	})

	busPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "bus_publishes_total",
		Help:      "Event bus publish attempts by outcome.",
	}, []string{"outcome"})

	busQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aqsentry",
		Name:      "bus_queue_depth",
		Help:      "Events waiting in the bus publish queue.",
	})

	busDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "bus_dropped_total",
		Help:      "Events dropped because the publish queue was full.",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqsentry",
		Name:      "http_requests_total",
		Help:      "HTTP requests served by route and status.",
	}, []string{"route", "status"})

	httpRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aqsentry",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// IncCheck counts one scheduled run of the named job.
func IncCheck(kind, outcome string) {
	checksTotal.WithLabelValues(kind, outcome).Inc()
}

// IncSensorFailover counts one advance to a backup sensor.
func IncSensorFailover() {
	sensorFailoversTotal.Inc()
}

// ObserveSensorFetch records the latency of one candidate fetch.
func ObserveSensorFetch(d time.Duration, ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFail
	}
	sensorFetchSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncNotification counts one dispatch attempt.
func IncNotification(channel, event, outcome string) {
	notificationsTotal.WithLabelValues(channel, event, outcome).Inc()
}

// IncThresholdEvent counts one detected crossing.
func IncThresholdEvent(event string) {
	thresholdEventsTotal.WithLabelValues(event).Inc()
}

// SetCurrentAQI records the latest converted values for dashboards.
func SetCurrentAQI(series string, value float64) {
	currentAQI.WithLabelValues(series).Set(value)
}

// AddExpiredRecords counts readings removed by housekeeping.
func AddExpiredRecords(n int) {
	if n > 0 {
		expiredRecordsTotal.Add(float64(n))
	}
}

// IncBusPublish counts one event bus publish attempt.
func IncBusPublish(outcome string) {
	busPublishesTotal.WithLabelValues(outcome).Inc()
}

// SetBusQueueDepth records the publish queue backlog.
func SetBusQueueDepth(n int) {
	busQueueDepth.Set(float64(n))
}

// IncBusDropped counts one event discarded on a full queue.
func IncBusDropped() {
	busDroppedTotal.Inc()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpRequestSeconds.WithLabelValues(route).Observe(d.Seconds())
}
