// internal/notify/webhook.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"aqsentry/internal/detect"
	"aqsentry/internal/sensor"
)

// DefaultWebhookBaseURL points at the public IFTTT maker endpoint.
const DefaultWebhookBaseURL = "https://maker.ifttt.com"

const dispatchTimeout = 30 * time.Second

// WebhookConfig is the credential set for the IFTTT-style channel.
type WebhookConfig struct {
	// Key is the maker webhook key.
	Key string
	// BaseURL overrides the endpoint, mainly for tests.
	BaseURL string
	// ServiceName is sent as value2 so recipes can tell installations
	// apart.
	ServiceName string
}

func (c WebhookConfig) complete() bool {
	return strings.TrimSpace(c.Key) != ""
}

type webhookPayload struct {
	Value1 string `json:"value1"`
	Value2 string `json:"value2"`
}

type webhookNotifier struct {
	cfg  WebhookConfig
	http *retryablehttp.Client
	log  *slog.Logger
}

func newWebhookNotifier(cfg WebhookConfig, rc *retryablehttp.Client, logger *slog.Logger) *webhookNotifier {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultWebhookBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &webhookNotifier{cfg: cfg, http: rc, log: logger}
}

func (n *webhookNotifier) Name() string {
	return "webhook"
}

// Notify triggers the maker event named after the threshold event. The
// endpoint answers 200 on success; anything else is a DeliveryError.
func (n *webhookNotifier) Notify(ctx context.Context, event detect.Event, reading sensor.Reading) error {
	msg, err := MessageFor(event, reading)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	payload := webhookPayload{Value1: msg, Value2: n.cfg.ServiceName}
	if n.log.Enabled(ctx, slog.LevelDebug) {
		n.log.Debug("webhook_payload", slog.String("dump", spew.Sdump(payload)))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: n.Name(), Err: errors.Wrap(err, "encode webhook payload")}
	}
	endpoint := fmt.Sprintf("%s/trigger/%s/with/key/%s",
		n.cfg.BaseURL, url.PathEscape(string(event)), url.PathEscape(n.cfg.Key))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return &DeliveryError{Channel: n.Name(), Err: errors.Wrap(err, "build webhook request")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return &DeliveryError{Channel: n.Name(), Err: errors.Wrap(err, "send webhook")}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{
			Channel: n.Name(),
			Status:  resp.StatusCode,
			Err:     errors.Errorf("non-ok status from webhook endpoint"),
		}
	}
	n.log.Info("webhook_delivered", slog.String("event", string(event)))
	return nil
}
