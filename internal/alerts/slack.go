package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mediaheat/heatwatch/internal/govern"
)

// SlackSender delivers alert messages to a Slack incoming webhook, guarded
// by an in-process circuit breaker so a dead webhook fails fast instead of
// stalling every dispatch.
type SlackSender struct {
	webhookURL string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewSlackSender creates a webhook sender. An empty URL yields a sender
// that reports every send as failed configuration.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 20 * time.Second},
		breaker:    govern.NewDeliveryBreaker("slack"),
	}
}

// Send posts the message as Slack block kit. Returns an error on non-2xx
// responses, transport failures, and while the breaker is open.
func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack webhook url not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{"blocks": buildBlocks(msg)})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("slack delivery failed: %w", err)
	}
	return nil
}

func buildBlocks(msg Message) []map[string]interface{} {
	header := map[string]interface{}{
		"type": "header",
		"text": map[string]interface{}{"type": "plain_text", "text": msg.Header},
	}

	why := ""
	for i, reason := range msg.Reasons {
		if i > 0 {
			why += " | "
		}
		why += reason
	}
	section := map[string]interface{}{
		"type": "section",
		"text": map[string]interface{}{"type": "mrkdwn", "text": why},
	}

	elements := make([]map[string]interface{}, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		elements = append(elements, map[string]interface{}{
			"type":      "button",
			"text":      map[string]interface{}{"type": "plain_text", "text": b.Label},
			"action_id": b.ActionID,
			"value":     b.Value,
		})
	}
	actions := map[string]interface{}{"type": "actions", "elements": elements}

	return []map[string]interface{}{header, section, actions}
}
