// internal/notify/notify.go

// Package notify delivers threshold events and daily digests to a human
// through exactly one configured channel. Channel selection happens once
// at startup; the rest of the service only sees the Notifier interface.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"aqsentry/internal/aqi"
	"aqsentry/internal/detect"
	"aqsentry/internal/sensor"
)

// EventDailyReport is the digest dispatch. It shares the event namespace
// with the detector's crossings so webhook channels can route on it.
const EventDailyReport detect.Event = "air_quality_daily_report"

// Notifier sends one message describing the event. Implementations are
// best effort: a failed delivery is surfaced, never retried beyond the
// transport layer, and never blocks the stored baseline.
type Notifier interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	// Notify builds and delivers the message for the event.
	Notify(ctx context.Context, event detect.Event, reading sensor.Reading) error
}

// DeliveryError reports a failed dispatch. Status is zero when the
// failure happened below the HTTP layer.
type DeliveryError struct {
	Channel string
	Status  int
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s delivery failed (status %d): %v", e.Channel, e.Status, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Config carries the credential sets for every supported channel.
// A channel is eligible only when its set is complete.
type Config struct {
	Webhook WebhookConfig
	SMS     SMSConfig
	Push    PushConfig
}

// FromConfig picks the active channel: the first complete credential set
// in the order webhook, sms, push. Zero complete sets is a configuration
// error.
func FromConfig(cfg Config, rc *retryablehttp.Client, logger *slog.Logger) (Notifier, error) {
	if rc == nil {
		return nil, errors.New("notifier requires a transport")
	}
	if logger == nil {
		return nil, errors.New("notifier requires a logger")
	}
	switch {
	case cfg.Webhook.complete():
		return newWebhookNotifier(cfg.Webhook, rc, logger), nil
	case cfg.SMS.complete():
		return newSMSNotifier(cfg.SMS, rc, logger), nil
	case cfg.Push.complete():
		return newPushNotifier(cfg.Push, rc, logger), nil
	}
	return nil, errors.New("improper notification configuration: no channel has a complete credential set")
}

// MessageFor renders the human-readable text for an event. The value
// suffix always reports whole-number AQI for both series, and stale
// readings carry an explicit caveat.
func MessageFor(event detect.Event, reading sensor.Reading) (string, error) {
	values := fmt.Sprintf("(avg10_aqi: %.0f, rt_aqi: %.0f)", reading.Avg10AQI, reading.RealtimeAQI)
	var msg string
	switch event {
	case detect.EventGood:
		msg = "📉👍 Nearby air quality seems to be getting better. Open windows for fresh air. " + values
	case detect.EventBad:
		msg = "📈👎 Nearby air quality is getting bad. Close any open windows. " + values
	case EventDailyReport:
		place := strings.TrimSpace(reading.PlaceName)
		if place == "" {
			place = "your area"
		}
		msg = fmt.Sprintf("🌤 Daily air report for %s: %s %s", place, aqi.Category(reading.Avg10AQI), values)
	default:
		return "", errors.Errorf("unknown notification event %q", event)
	}
	if reading.Stale {
		msg += " ⚠️ Sensor data is stale and may not reflect current conditions."
	}
	return msg, nil
}
