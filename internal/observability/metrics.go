// Package observability exposes the Prometheus metrics of the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbeDuration tracks provider health probe roundtrip time.
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripwatch_probe_duration_seconds",
		Help:    "Provider health probe roundtrip time",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"provider"})

	// ProviderHealthStatus tracks the classified provider state.
	ProviderHealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripwatch_provider_health",
		Help: "Provider health classification (0=healthy, 1=degraded, 2=unhealthy)",
	}, []string{"provider"})

	// ProbeErrors tracks failed probes per provider.
	ProbeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripwatch_probe_errors_total",
		Help: "Total failed provider probes",
	}, []string{"provider"})

	// QuotaUsedPercent tracks quota consumption per provider.
	QuotaUsedPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripwatch_quota_used_percent",
		Help: "Provider quota consumption in the current window (0-100)",
	}, []string{"provider"})

	// BreakerState tracks the circuit breaker state per provider.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripwatch_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"provider"})

	// RecoveryActions tracks executed recovery actions by outcome.
	RecoveryActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripwatch_recovery_actions_total",
		Help: "Total recovery action executions",
	}, []string{"action", "outcome"}) // outcome: success, failure, timeout

	// RecoveryActionDuration tracks recovery action execution time.
	RecoveryActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripwatch_recovery_action_duration_seconds",
		Help:    "Recovery action execution time",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"action"})

	// ActionsEmitted tracks remediation decisions made by the monitor loop.
	ActionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripwatch_actions_emitted_total",
		Help: "Total remediation actions emitted by the monitor loop",
	}, []string{"action", "severity", "automated"})

	// Escalations tracks actions handed to a human.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripwatch_escalations_total",
		Help: "Total actions escalated for human confirmation",
	}, []string{"severity"})

	// MonitorCycleDuration tracks one full monitoring cycle.
	MonitorCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripwatch_monitor_cycle_duration_seconds",
		Help:    "Duration of one full monitoring cycle",
		Buckets: prometheus.DefBuckets,
	})

	// FleetAvailability tracks the fraction of providers answering probes.
	FleetAvailability = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tripwatch_fleet_availability",
		Help: "Fraction of providers answering probes (0.0-1.0)",
	})

	// StuckBookingsExpired tracks bookings swept out of pending.
	StuckBookingsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripwatch_stuck_bookings_expired_total",
		Help: "Total bookings expired by the stuck booking sweep",
	})

	// AuditEntriesDropped tracks audit entries lost to a full write buffer.
	AuditEntriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripwatch_audit_entries_dropped_total",
		Help: "Audit entries dropped because the async write buffer was full",
	})
)

// HealthGaugeValue maps a health status string to its gauge encoding.
func HealthGaugeValue(status string) float64 {
	switch status {
	case "healthy":
		return 0
	case "degraded":
		return 1
	default:
		return 2
	}
}

// BreakerGaugeValue maps a breaker state string to its gauge encoding.
func BreakerGaugeValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 1
	default:
		return 2
	}
}
