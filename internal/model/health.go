// Package model holds the shared domain types of the TripWatch service.
package model

import "time"

// HealthStatus classifies one provider integration.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// BreakerState is the circuit breaker state of a provider quota.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerHalfOpen BreakerState = "half_open"
	BreakerOpen     BreakerState = "open"
)

// ProviderHealth is one probe outcome for a provider, as persisted and as
// served to the admin dashboard.
type ProviderHealth struct {
	Provider     string       `json:"provider"`
	Status       HealthStatus `json:"status"`
	ResponseTime int64        `json:"response_time"` // milliseconds
	ErrorCount   int32        `json:"error_count"`
	LastChecked  time.Time    `json:"last_checked"`
}

// ProviderQuota tracks consumption against a provider's usage allowance.
type ProviderQuota struct {
	Provider       string       `json:"provider"`
	PercentageUsed float64      `json:"percentage_used"` // clamped to 0..100
	Status         BreakerState `json:"status"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CircuitBrokenEvent is emitted when a provider's breaker opens.
type CircuitBrokenEvent struct {
	Provider       string
	PercentageUsed float64
	ErrorCount     int32
	BrokenAt       time.Time
}

// CircuitRecoveredEvent is emitted when a provider's breaker closes again.
type CircuitRecoveredEvent struct {
	Provider    string
	RecoverTime time.Duration
	ProbeCount  int
}
