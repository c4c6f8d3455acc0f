// internal/notify/sms.go
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"aqsentry/internal/detect"
	"aqsentry/internal/sensor"
)

// DefaultSMSBaseURL points at the public Twilio REST endpoint.
const DefaultSMSBaseURL = "https://api.twilio.com"

// SMSConfig is the credential set for the Twilio-style channel.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sending number in E.164 form.
	From string
	// Recipients are the destination numbers; every one of them gets
	// its own message.
	Recipients []string
	// BaseURL overrides the endpoint, mainly for tests.
	BaseURL string
}

func (c SMSConfig) complete() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.From) != "" &&
		len(c.Recipients) > 0
}

type smsNotifier struct {
	cfg  SMSConfig
	http *retryablehttp.Client
	log  *slog.Logger
}

func newSMSNotifier(cfg SMSConfig, rc *retryablehttp.Client, logger *slog.Logger) *smsNotifier {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultSMSBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &smsNotifier{cfg: cfg, http: rc, log: logger}
}

func (n *smsNotifier) Name() string {
	return "sms"
}

// Notify sends the message to every recipient. A failed recipient does
// not stop the remaining sends; the aggregate failure is reported as one
// DeliveryError so a transient carrier error cannot silently drop later
// recipients.
func (n *smsNotifier) Notify(ctx context.Context, event detect.Event, reading sensor.Reading) error {
	msg, err := MessageFor(event, reading)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	var failed []string
	for _, to := range n.cfg.Recipients {
		if err := n.send(ctx, to, msg); err != nil {
			n.log.Error("sms_send_failed", slog.String("to", to), slog.Any("err", err))
			failed = append(failed, fmt.Sprintf("%s: %v", to, err))
			continue
		}
		n.log.Info("sms_delivered", slog.String("to", to), slog.String("event", string(event)))
	}
	if len(failed) > 0 {
		return &DeliveryError{
			Channel: n.Name(),
			Err: errors.Errorf("%d of %d recipients failed: %s",
				len(failed), len(n.cfg.Recipients), strings.Join(failed, "; ")),
		}
	}
	return nil
}

// send posts one message. The endpoint answers 201 Created on success;
// anything else fails the recipient.
func (n *smsNotifier) send(ctx context.Context, to, msg string) error {
	form := url.Values{}
	form.Set("Body", msg)
	form.Set("From", n.cfg.From)
	form.Set("To", to)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		n.cfg.BaseURL, url.PathEscape(n.cfg.AccountSID))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.cfg.AccountSID, n.cfg.AuthToken)

	resp, err := n.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send sms")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusCreated {
		return errors.Errorf("sms endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
