// Package push delivers breach notifications over JSON webhooks: one
// endpoint for user-facing pushes, one for operator escalations.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/safespotlabs/geowatch/internal/breach"
)

const httpTimeout = 10 * time.Second

// Channel posts breach notifications to the configured webhooks. An empty
// URL disables that target: its sends return nil immediately.
type Channel struct {
	userWebhookURL     string
	operatorWebhookURL string
	client             *http.Client
}

// New creates a webhook Channel.
func New(userWebhookURL, operatorWebhookURL string) *Channel {
	return &Channel{
		userWebhookURL:     userWebhookURL,
		operatorWebhookURL: operatorWebhookURL,
		client:             &http.Client{Timeout: httpTimeout},
	}
}

// SendToUser posts the user notification, addressed by user ID.
func (c *Channel) SendToUser(ctx context.Context, userID int64, n *breach.UserNotification) error {
	if c.userWebhookURL == "" {
		return nil
	}

	payload := map[string]any{
		"user_id":         userID,
		"type":            "geofence_breach",
		"geofence_name":   n.GeofenceName,
		"risk_tier":       n.Tier,
		"priority":        n.Priority,
		"location":        n.Location,
		"recommendations": n.Recommendations,
		"message":         n.Message,
	}
	return c.post(ctx, c.userWebhookURL, payload)
}

// SendToOperators posts the operator escalation.
func (c *Channel) SendToOperators(ctx context.Context, e *breach.OperatorEscalation) error {
	if c.operatorWebhookURL == "" {
		return nil
	}

	payload := map[string]any{
		"type":                "breach_escalation",
		"user_id":             e.UserID,
		"geofence_name":       e.GeofenceName,
		"risk_tier":           e.Tier,
		"immediate_attention": e.ImmediateAttention,
		"user_context":        e.UserContext,
		"breach_detail":       e.Detail,
	}
	return c.post(ctx, c.operatorWebhookURL, payload)
}

func (c *Channel) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("push: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // G704: webhook URLs are from trusted config, not user input
	if err != nil {
		return fmt.Errorf("push: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
