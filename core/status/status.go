// Package status fetches the transcription server's status document. The
// contents are surfaced to callers verbatim; nothing in the session layer
// acts on them.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

// ModuleStatus reports the slot accounting of one server module.
type ModuleStatus struct {
	TotalSlots     int `json:"total_slots"`
	UsedSlots      int `json:"used_slots"`
	AvailableSlots int `json:"available_slots"`
}

// Status is the server's status document.
type Status struct {
	Status        string                  `json:"status"`
	UptimeSeconds float64                 `json:"uptime_seconds"`
	Modules       map[string]ModuleStatus `json:"modules"`
}

// Available reports whether any module has a free session slot.
func (s *Status) Available() bool {
	for _, module := range s.Modules {
		if module.AvailableSlots > 0 {
			return true
		}
	}
	return false
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type ClientOption func(*Client)

// WithAuthToken attaches a bearer credential to status requests.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient substitutes the underlying HTTP client, mostly for tests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.http = client }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the current status document.
func (c *Client) Fetch(ctx context.Context) (*Status, error) {
	ctx, span := tracer.Start(ctx, "status.fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch server status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status endpoint returned %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode status document: %w", err)
	}

	logger.Debug("Fetched server status", "status", status.Status, "modules", len(status.Modules))
	return &status, nil
}
