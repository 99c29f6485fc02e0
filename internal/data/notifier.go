package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

const defaultNotifyTimeout = 10 * time.Second

// WebhookNotifier implements biz.Notifier by POSTing escalation events as
// JSON to the configured webhook. Delivery is best-effort; the monitor loop
// must keep running whether or not anyone is listening. With no webhook URL
// configured every event is silently dropped.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *log.Helper
}

// NewWebhookNotifier builds the notifier from config.
func NewWebhookNotifier(c *conf.Notify, logger log.Logger) *WebhookNotifier {
	helper := log.NewHelper(logger)

	url := ""
	timeout := defaultNotifyTimeout
	if c != nil {
		url = c.WebhookUrl
		if c.Timeout != nil {
			timeout = c.Timeout.AsDuration()
		}
	}
	if url == "" {
		helper.Info("no escalation webhook configured, notifications disabled")
	}

	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: helper,
	}
}

// NotifyEscalation posts one escalation event to the webhook.
func (n *WebhookNotifier) NotifyEscalation(ctx context.Context, event *model.EscalationEvent) error {
	if err := n.post(ctx, "escalation", event); err != nil {
		return err
	}

	n.logger.Infow("escalation delivered",
		"action", event.Action,
		"provider", event.Provider,
		"severity", event.Severity)
	return nil
}

// NotifyCircuitBroken posts a breaker-opened event to the webhook.
func (n *WebhookNotifier) NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error {
	return n.post(ctx, "circuit_broken", event)
}

// NotifyCircuitRecovered posts a breaker-recovered event to the webhook.
func (n *WebhookNotifier) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	return n.post(ctx, "circuit_recovered", event)
}

func (n *WebhookNotifier) post(ctx context.Context, kind string, event interface{}) error {
	if n.url == "" {
		n.logger.Debugw("notification dropped, no webhook configured", "kind", kind)
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"kind":  kind,
		"event": event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver %s notification: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s webhook returned status %d", kind, resp.StatusCode)
	}

	return nil
}

// NoopNotifier drops every event. Used in tests that don't care about
// notification delivery.
type NoopNotifier struct{}

// NotifyEscalation discards the event.
func (n *NoopNotifier) NotifyEscalation(ctx context.Context, event *model.EscalationEvent) error {
	return nil
}

// NotifyCircuitBroken discards the event.
func (n *NoopNotifier) NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error {
	return nil
}

// NotifyCircuitRecovered discards the event.
func (n *NoopNotifier) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	return nil
}
