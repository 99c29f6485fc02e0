package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with domain-flavored convenience
// methods. Each method tags the entry with a "type" field, which also drives
// the emoji mapping of the console encoder.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates an enhanced log helper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// Probe logs a provider probe outcome.
func (h *LogHelper) Probe(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "probe")
	h.Infow(allKvs...)
}

// Recovery logs a recovery action execution.
func (h *LogHelper) Recovery(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "recovery")
	h.Infow(allKvs...)
}

// Monitor logs a coordinator loop event.
func (h *LogHelper) Monitor(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "monitor")
	h.Infow(allKvs...)
}

// Quota logs quota tracking events at warn level; a quota log line almost
// always means someone is close to a limit.
func (h *LogHelper) Quota(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "quota")
	h.Warnw(allKvs...)
}

// Breaker logs circuit breaker transitions.
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "breaker")
	h.Warnw(allKvs...)
}

// Booking logs booking maintenance events.
func (h *LogHelper) Booking(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "booking")
	h.Infow(allKvs...)
}

// Escalation logs a human-attention escalation.
func (h *LogHelper) Escalation(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "escalation")
	h.Warnw(allKvs...)
}

// Database logs database operations.
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "database")
	h.Debugw(allKvs...)
}

// Redis logs Redis operations.
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "redis")
	h.Debugw(allKvs...)
}

// Startup logs service startup events.
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "startup")
	h.Infow(allKvs...)
}

// Audit logs recovery log persistence events.
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "audit")
	h.Infow(allKvs...)
}

// CycleCompleted logs the summary of one monitoring cycle.
func (h *LogHelper) CycleCompleted(cycle int64, providers, emitted, executed int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("Monitoring cycle %d completed - %d providers, %d actions emitted, %d executed (%dms)",
		cycle, providers, emitted, executed, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"cycle", cycle,
		"providers", providers,
		"actions_emitted", emitted,
		"actions_executed", executed,
		"duration_ms", durationMs,
		"type", "monitor",
	)
	h.Infow(allKvs...)
}

// SlowRequest logs a slow request warning.
// threshold: the slow request threshold in milliseconds.
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
		"type", "slow_request",
	)
	h.Warnw(allKvs...)
}

// RequestWithContext logs an HTTP request with context tracing and flags
// slow requests automatically (threshold 1000ms).
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s",
		method, url, status, durationMs, reqCtx.RequestID)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	if durationMs > 1000 {
		h.SlowRequest(ctx, method, url, durationMs, 1000)
	}
}

// RecoveryWithContext logs a recovery action outcome with context tracing.
func (h *LogHelper) RecoveryWithContext(ctx context.Context, action string, success bool, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Recovery action %s - success=%t (%dms)",
		reqCtx.RequestID, action, success, durationMs)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"plan_id", reqCtx.PlanID,
		"action", action,
		"success", success,
		"duration_ms", durationMs,
		"type", "recovery",
	)
	if success {
		h.Infow(allKvs...)
	} else {
		h.Warnw(allKvs...)
	}
}
