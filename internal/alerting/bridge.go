// Package alerting bridges finished remediation runs back to the incident
// management system: acknowledge, annotate, resolve or escalate the incident
// the run was started for.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BridgeClient drives incident lifecycle transitions over the alerting
// system's REST API. An empty base URL turns every call into a no-op so the
// engine keeps working without a configured backend.
type BridgeClient struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBridgeClient constructs a lifecycle bridge. actor names the engine in
// incident audit trails.
func NewBridgeClient(baseURL, token, actor string, timeout time.Duration, logger *slog.Logger) *BridgeClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if actor == "" {
		actor = "oncall-engine"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BridgeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		actor:      actor,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Acknowledge marks the incident as being worked on.
func (c *BridgeClient) Acknowledge(ctx context.Context, incidentID string) error {
	return c.post(ctx, incidentID, "acknowledge", map[string]string{
		"actor": c.actor,
	})
}

// AddNote appends a progress note without changing incident state.
func (c *BridgeClient) AddNote(ctx context.Context, incidentID, note string) error {
	return c.post(ctx, incidentID, "notes", map[string]string{
		"actor": c.actor,
		"note":  note,
	})
}

// Resolve closes the incident with a resolution note.
func (c *BridgeClient) Resolve(ctx context.Context, incidentID, note string) error {
	return c.post(ctx, incidentID, "resolve", map[string]string{
		"actor": c.actor,
		"note":  note,
	})
}

// Escalate hands the incident to a human with the reason automation gave up.
func (c *BridgeClient) Escalate(ctx context.Context, incidentID, reason string) error {
	return c.post(ctx, incidentID, "escalate", map[string]string{
		"actor":  c.actor,
		"reason": reason,
	})
}

func (c *BridgeClient) post(ctx context.Context, incidentID, operation string, payload map[string]string) error {
	if c == nil {
		return fmt.Errorf("alerting bridge not initialised")
	}
	if incidentID == "" {
		return fmt.Errorf("incident id required")
	}
	if c.baseURL == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v1/incidents/%s/%s", c.baseURL, url.PathEscape(incidentID), operation)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("incident %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("incident %s failed (%d): %s", operation, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.logger.Debug("incident lifecycle call",
		slog.String("incident_id", incidentID), slog.String("operation", operation))
	return nil
}
