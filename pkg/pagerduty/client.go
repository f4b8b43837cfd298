// Package pagerduty is a minimal client for the two PagerDuty APIs the
// agent uses: the REST API for annotating existing incidents, and the
// Events API v2 for creating new ones.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	apiBaseURL   = "https://api.pagerduty.com"
	eventsV2URL  = "https://events.pagerduty.com/v2/enqueue"
	probeTimeout = 5 * time.Second
)

// Client talks to PagerDuty. The API token authorizes REST calls; the
// routing key authorizes Events API v2 triggers. Either may be empty, in
// which case the corresponding calls report a configuration error.
type Client struct {
	apiToken   string
	routingKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client with a 30 second request timeout.
func NewClient(apiToken, routingKey string) *Client {
	return &Client{
		apiToken:   apiToken,
		routingKey: routingKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.With("logger", "pagerduty"),
	}
}

// OverrideHTTPClientForTest replaces the internal HTTP client.
// For testing only.
func (c *Client) OverrideHTTPClientForTest(httpClient *http.Client) {
	c.httpClient = httpClient
}

// RoutingKeyConfigured reports whether Events API triggers are possible.
func (c *Client) RoutingKeyConfigured() bool {
	return c.routingKey != ""
}

// AddNote posts a note onto an existing incident and returns the HTTP
// status code PagerDuty answered with.
func (c *Client) AddNote(ctx context.Context, incidentID, content, traceID string) (int, error) {
	payload := map[string]any{
		"note": map[string]any{"content": content},
	}
	return c.restCall(ctx, http.MethodPost,
		fmt.Sprintf("%s/incidents/%s/notes", apiBaseURL, incidentID), payload, traceID)
}

// SetEscalationLevel bumps the incident to the given escalation level.
func (c *Client) SetEscalationLevel(ctx context.Context, incidentID string, level int, traceID string) (int, error) {
	payload := map[string]any{
		"incident": map[string]any{
			"type":             "incident_reference",
			"escalation_level": level,
		},
	}
	return c.restCall(ctx, http.MethodPut,
		fmt.Sprintf("%s/incidents/%s", apiBaseURL, incidentID), payload, traceID)
}

// Acknowledge marks the incident acknowledged.
func (c *Client) Acknowledge(ctx context.Context, incidentID, traceID string) (int, error) {
	payload := map[string]any{
		"incident": map[string]any{
			"type":   "incident_reference",
			"status": "acknowledged",
		},
	}
	return c.restCall(ctx, http.MethodPut,
		fmt.Sprintf("%s/incidents/%s", apiBaseURL, incidentID), payload, traceID)
}

// TriggerResult is the Events API v2 response for a trigger event.
type TriggerResult struct {
	DedupKey string
	Message  string
}

// Trigger creates a new incident via the Events API v2. The dedup key is
// derived from the trace id so retried triggers collapse into one incident.
func (c *Client) Trigger(ctx context.Context, summary, severity, details, traceID string) (*TriggerResult, error) {
	if c.routingKey == "" {
		return nil, fmt.Errorf("PAGERDUTY_ROUTING_KEY not configured")
	}

	payload := map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  summary,
			"severity": severity,
			"source":   "sre-agent",
			"custom_details": map[string]any{
				"agent_trace_id":     traceID,
				"diagnostic_details": details,
			},
		},
	}
	if traceID != "" {
		payload["dedup_key"] = "sre-agent-" + traceID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eventsV2URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("events API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		c.logger.Error("Failed to create PagerDuty incident",
			"status", resp.StatusCode, "body", string(respBody), "trace_id", traceID)
		return nil, fmt.Errorf("PagerDuty Events API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		DedupKey string `json:"dedup_key"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decoding events API response: %w", err)
	}

	c.logger.Info("PagerDuty incident created",
		"dedup_key", decoded.DedupKey, "trace_id", traceID)
	return &TriggerResult{DedupKey: decoded.DedupKey, Message: decoded.Message}, nil
}

// Probe checks REST API connectivity with a short timeout. Used by the
// dependency health check.
func (c *Client) Probe(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+"/abilities", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Token token="+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) restCall(ctx context.Context, method, url string, payload any, traceID string) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	if traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("PagerDuty API call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
