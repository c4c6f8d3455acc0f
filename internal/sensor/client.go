// internal/sensor/client.go
package sensor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// DefaultBaseURL points at the public sensor API.
const DefaultBaseURL = "https://www.purpleair.com"

// apiResponse is the sensor API envelope. Each result is one sub-sensor
// of the requested station; Stats is a JSON-encoded blob nested inside
// the outer document.
type apiResponse struct {
	Results []apiResult `json:"results"`
}

type apiResult struct {
	ID       int     `json:"ID"`
	Label    string  `json:"Label"`
	Lat      float64 `json:"Lat"`
	Lon      float64 `json:"Lon"`
	LastSeen int64   `json:"LastSeen"`
	Stats    string  `json:"Stats"`
}

// subsensorStats is the portion of the nested stats blob this service
// consumes: v is the realtime PM2.5 and v1 the 10-minute average.
type subsensorStats struct {
	V  float64 `json:"v"`
	V1 float64 `json:"v1"`
}

// subsensor is one decoded sub-sensor observation.
type subsensor struct {
	Label      string
	Lat        float64
	Lon        float64
	LastSeen   time.Time
	RealtimePM float64
	Avg10PM    float64
}

// Client fetches and decodes sub-sensor observations for one station id.
type Client struct {
	baseURL   string
	userAgent string
	http      *retryablehttp.Client
	log       *slog.Logger
}

// NewClient builds a sensor API client on top of the supplied retrying
// transport.
func NewClient(baseURL, userAgent string, rc *retryablehttp.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if rc == nil {
		return nil, errors.New("sensor client requires a transport")
	}
	if logger == nil {
		return nil, errors.New("sensor client requires a logger")
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      rc,
		log:       logger,
	}, nil
}

// Fetch retrieves the sub-sensors for the given station id. Transport
// failures and non-success statuses are hard errors; undecodable
// payloads are data-quality errors the reader may fail over on.
func (c *Client) Fetch(ctx context.Context, id string) ([]subsensor, error) {
	endpoint := c.baseURL + "/json?show=" + url.QueryEscape(id)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build sensor request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch sensor %s", id)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("sensor api returned status %d for sensor %s", resp.StatusCode, id)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(errUnusable, "decode response for sensor %s: %v", id, err)
	}

	subs := make([]subsensor, 0, len(payload.Results))
	for _, res := range payload.Results {
		var stats subsensorStats
		if err := json.Unmarshal([]byte(res.Stats), &stats); err != nil {
			return nil, errors.Wrapf(errUnusable, "decode stats blob for sub-sensor %q: %v", res.Label, err)
		}
		var lastSeen time.Time
		if res.LastSeen > 0 {
			lastSeen = time.Unix(res.LastSeen, 0)
		}
		subs = append(subs, subsensor{
			Label:      res.Label,
			Lat:        res.Lat,
			Lon:        res.Lon,
			LastSeen:   lastSeen,
			RealtimePM: stats.V,
			Avg10PM:    stats.V1,
		})
	}
	c.log.Debug("sensor_fetch_decoded",
		slog.String("sensor_id", id),
		slog.Int("sub_sensors", len(subs)),
	)
	return subs, nil
}
