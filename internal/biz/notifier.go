package biz

import (
	"context"

	"TripWatch/internal/model"
)

// Notifier defines the interface for escalation and breaker notifications.
// The monitor loop never talks to a notification channel directly; it hands
// events to this port and keeps going whether delivery works or not.
type Notifier interface {
	// NotifyEscalation reports an action that needs a human decision.
	NotifyEscalation(ctx context.Context, event *model.EscalationEvent) error

	// NotifyCircuitBroken sends notification when a provider's breaker opens.
	NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error

	// NotifyCircuitRecovered sends notification when a provider's breaker closes again.
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error
}
