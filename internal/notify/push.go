// internal/notify/push.go
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"aqsentry/internal/detect"
	"aqsentry/internal/sensor"
)

// DefaultPushBaseURL points at the public Pushover endpoint.
const DefaultPushBaseURL = "https://api.pushover.net"

// PushConfig is the credential set for the push channel.
type PushConfig struct {
	// Token is the application token.
	Token string
	// UserKey identifies the receiving user or group.
	UserKey string
	// BaseURL overrides the endpoint, mainly for tests.
	BaseURL string
}

func (c PushConfig) complete() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.UserKey) != ""
}

type pushNotifier struct {
	cfg  PushConfig
	http *retryablehttp.Client
	log  *slog.Logger
}

func newPushNotifier(cfg PushConfig, rc *retryablehttp.Client, logger *slog.Logger) *pushNotifier {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultPushBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &pushNotifier{cfg: cfg, http: rc, log: logger}
}

func (n *pushNotifier) Name() string {
	return "push"
}

// Notify posts one push message. The endpoint answers 200 on success.
func (n *pushNotifier) Notify(ctx context.Context, event detect.Event, reading sensor.Reading) error {
	msg, err := MessageFor(event, reading)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", n.cfg.Token)
	form.Set("user", n.cfg.UserKey)
	form.Set("title", "Air quality")
	form.Set("message", msg)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		n.cfg.BaseURL+"/1/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return &DeliveryError{Channel: n.Name(), Err: errors.Wrap(err, "build push request")}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.http.Do(req)
	if err != nil {
		return &DeliveryError{Channel: n.Name(), Err: errors.Wrap(err, "send push")}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{
			Channel: n.Name(),
			Status:  resp.StatusCode,
			Err:     errors.Errorf("non-ok status from push endpoint"),
		}
	}
	n.log.Info("push_delivered", slog.String("event", string(event)))
	return nil
}
