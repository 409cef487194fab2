// Package analytics provides an HTTP client for the analytics collector.
// Each tracked event is a POST of a trigger classification plus a structured
// context entity; the collector ingests these into the analytics pipeline.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/curation-tools/corpus-platform/pkg/config"
	"github.com/curation-tools/corpus-platform/pkg/resilience"
)

// Client posts tracked events to the analytics collector endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	appID      string
	timeout    time.Duration
	logger     *slog.Logger
}

// trackRequest is the JSON body accepted by the collector.
type trackRequest struct {
	AppID     string `json:"app_id"`
	Event     string `json:"event"`
	Context   any    `json:"context"`
	TrackedAt int64  `json:"tracked_at"`
}

// NewClient creates a collector client from config.
func NewClient(cfg config.AnalyticsConfig) *Client {
	return &Client{
		httpClient: &http.Client{},
		endpoint:   cfg.CollectorURL,
		appID:      cfg.AppID,
		timeout:    cfg.Timeout,
		logger:     slog.Default().With("component", "analytics-client"),
	}
}

// Track submits one (trigger, context) pair to the collector. The call is
// bounded by the configured timeout; any non-2xx response is an error.
func (c *Client) Track(ctx context.Context, trigger string, entity any) error {
	return resilience.WithTimeout(ctx, c.timeout, "analytics-track", func(ctx context.Context) error {
		body, err := json.Marshal(trackRequest{
			AppID:     c.appID,
			Event:     trigger,
			Context:   entity,
			TrackedAt: time.Now().Unix(),
		})
		if err != nil {
			return fmt.Errorf("marshaling track request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building track request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("posting to collector: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("collector returned status %d for event %s", resp.StatusCode, trigger)
		}
		c.logger.Debug("event tracked", "event", trigger)
		return nil
	})
}
