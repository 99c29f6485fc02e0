package biz

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"
	"TripWatch/internal/observability"
	pkglog "TripWatch/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const defaultActionTimeout = 30 * time.Second

// serviceName tags every audit entry this service writes.
const serviceName = "tripwatch"

// ExecutorUsecase runs recovery actions under the execution contract: every
// call returns a result, no call panics out, every execution is bounded by a
// timeout and leaves exactly one audit entry behind.
type ExecutorUsecase struct {
	catalog     *ActionCatalog
	recoveryLog RecoveryLogRepo
	timeout     time.Duration
	logger      *pkglog.LogHelper
}

// NewExecutorUsecase creates a new executor use case.
func NewExecutorUsecase(catalog *ActionCatalog, recoveryLog RecoveryLogRepo, mc *conf.Monitor, logger log.Logger) *ExecutorUsecase {
	timeout := defaultActionTimeout
	if mc != nil && mc.ActionTimeout != nil {
		timeout = mc.ActionTimeout.AsDuration()
	}

	return &ExecutorUsecase{
		catalog:     catalog,
		recoveryLog: recoveryLog,
		timeout:     timeout,
		logger:      pkglog.NewLogHelper(logger),
	}
}

// Actions lists the names of every registered recovery action.
func (uc *ExecutorUsecase) Actions() []model.ActionName {
	return uc.catalog.List()
}

// RecentLog returns the newest audit entries.
func (uc *ExecutorUsecase) RecentLog(ctx context.Context, limit int) ([]*model.RecoveryLogEntry, error) {
	return uc.recoveryLog.ListRecent(ctx, limit)
}

// Execute runs one recovery action and returns its result. It never returns
// an error: an unknown action, a panic, a timeout, and an action failure all
// come back as a failed result. Duration is populated on every path.
func (uc *ExecutorUsecase) Execute(ctx context.Context, req *model.RecoveryRequest) *model.RecoveryResult {
	correlationID := uuid.New().String()
	ctx = pkglog.WithRequestContext(ctx, correlationID, req.PlanID, req.Provider)
	start := time.Now()

	result := uc.run(ctx, req)
	result.Duration = time.Since(start).Milliseconds()

	outcome := "success"
	switch {
	case result.TimedOut:
		outcome = "timeout"
	case !result.Success:
		outcome = "failure"
	}
	observability.RecoveryActions.WithLabelValues(string(req.Action), outcome).Inc()
	observability.RecoveryActionDuration.WithLabelValues(string(req.Action)).Observe(float64(result.Duration) / 1000)

	uc.logger.RecoveryWithContext(ctx, string(req.Action), result.Success, result.Duration,
		"provider", req.Provider,
		"rollback", req.IsRollback,
		"timed_out", result.TimedOut)

	uc.audit(ctx, correlationID, req, result)
	return result
}

// run dispatches to the catalog with timeout and panic containment.
func (uc *ExecutorUsecase) run(ctx context.Context, req *model.RecoveryRequest) *model.RecoveryResult {
	action, ok := uc.catalog.Get(req.Action)
	if !ok {
		return &model.RecoveryResult{
			Success: false,
			Message: fmt.Sprintf("Unknown recovery action: %s", req.Action),
		}
	}

	timeout := uc.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *model.RecoveryResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("action panicked: %v", r)}
			}
		}()

		if req.IsRollback {
			ra, ok := action.(RollbackableAction)
			if !ok {
				// No inverse exists; record the rollback as a no-op rather
				// than failing the plan that asked for it.
				done <- outcome{result: &model.RecoveryResult{
					Success: true,
					Message: fmt.Sprintf("Rollback is a no-op for %s", req.Action),
				}}
				return
			}
			result, err := ra.Rollback(ctx, req)
			done <- outcome{result: result, err: err}
			return
		}

		result, err := action.Execute(ctx, req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return &model.RecoveryResult{
			Success:  false,
			Message:  fmt.Sprintf("Action %s timed out after %s", req.Action, timeout),
			TimedOut: true,
		}
	case o := <-done:
		if o.err != nil {
			return &model.RecoveryResult{
				Success: false,
				Message: fmt.Sprintf("Action %s failed: %v", req.Action, o.err),
			}
		}
		return o.result
	}
}

// audit appends exactly one entry for this execution. Persistence is
// best-effort; the result already went back to the caller either way.
func (uc *ExecutorUsecase) audit(ctx context.Context, correlationID string, req *model.RecoveryRequest, result *model.RecoveryResult) {
	level := "info"
	if !result.Success {
		level = "warn"
	}

	verb := "executed"
	if req.IsRollback {
		verb = "rolled back"
	}

	uc.recoveryLog.Append(ctx, &model.RecoveryLogEntry{
		CorrelationID: correlationID,
		ServiceName:   serviceName,
		LogLevel:      level,
		Message:       fmt.Sprintf("%s: %s %s", model.RecoveryEventExecuted, req.Action, verb),
		Metadata: map[string]any{
			"action":      req.Action,
			"step_id":     req.StepID,
			"plan_id":     req.PlanID,
			"provider":    req.Provider,
			"rollback":    req.IsRollback,
			"success":     result.Success,
			"message":     result.Message,
			"duration_ms": result.Duration,
			"timed_out":   result.TimedOut,
		},
	})
}
