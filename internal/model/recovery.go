package model

import "time"

// ActionName identifies one remediation procedure from the closed catalog.
type ActionName string

const (
	ActionTestConnection         ActionName = "test_connection"
	ActionClearCache             ActionName = "clear_cache"
	ActionRefreshCache           ActionName = "refresh_cache"
	ActionRestartService         ActionName = "restart_service"
	ActionResetDegradedProviders ActionName = "reset_degraded_providers"
	ActionOptimizeRotationOrder  ActionName = "optimize_rotation_order"
	ActionFixStuckBookings       ActionName = "fix_stuck_bookings"
	ActionOptimizeDatabase       ActionName = "optimize_database"
	ActionComprehensiveHealth    ActionName = "comprehensive_health_check"
	ActionCircuitBreak           ActionName = "circuit_break"
	ActionFailover               ActionName = "failover"
)

// Severity ranks an emitted recovery action.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryRequest carries the parameters of one action execution.
type RecoveryRequest struct {
	Action     ActionName     `json:"action"`
	StepID     string         `json:"stepId"`
	PlanID     string         `json:"planId"`
	Provider   string         `json:"provider,omitempty"`
	Timeout    time.Duration  `json:"-"`
	Context    map[string]any `json:"context,omitempty"`
	IsRollback bool           `json:"isRollback,omitempty"`
}

// RecoveryResult is the outcome of one action execution. Duration is always
// populated, success or not.
type RecoveryResult struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Duration int64          `json:"duration,omitempty"` // milliseconds
	TimedOut bool           `json:"timedOut,omitempty"`
}

// EmittedAction is a remediation decision made by the monitor loop.
// Automated actions execute immediately; the rest are queued for a human.
type EmittedAction struct {
	ID        int64      `json:"id"`
	Action    ActionName `json:"action"`
	Provider  string     `json:"provider,omitempty"` // empty = system-wide
	Severity  Severity   `json:"severity"`
	Automated bool       `json:"automated"`
	Reason    string     `json:"reason"`
	Executed  bool       `json:"executed"`
	CreatedAt time.Time  `json:"created_at"`
}

// Booking statuses touched by the fix_stuck_bookings action.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingFailed    = "failed"
	BookingExpired   = "expired"
)

// Recovery log event types.
const (
	RecoveryEventExecuted  = "ACTION_EXECUTED"
	RecoveryEventQueued    = "ACTION_QUEUED"
	RecoveryEventEscalated = "ACTION_ESCALATED"
)

// RecoveryLogEntry is one immutable audit record. Entries are append-only;
// nothing in the service mutates them after creation.
type RecoveryLogEntry struct {
	CorrelationID string         `json:"correlation_id"`
	ServiceName   string         `json:"service_name"`
	LogLevel      string         `json:"log_level"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EscalationEvent is handed to the notification port when an action needs a
// human decision.
type EscalationEvent struct {
	Action    ActionName `json:"action"`
	Provider  string     `json:"provider,omitempty"`
	Severity  Severity   `json:"severity"`
	Reason    string     `json:"reason"`
	QueuedID  int64      `json:"queued_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
