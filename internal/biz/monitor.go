package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"
	"TripWatch/internal/observability"
	pkglog "TripWatch/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultMonitorInterval = 30 * time.Second
	defaultErrorRate       = 0.5
	defaultAvailability    = 0.8

	// errorWindowSize is how many recent probe outcomes feed the per-provider
	// error rate.
	errorWindowSize = 10
)

// MonitorStatus is a snapshot of the coordinator loop.
type MonitorStatus struct {
	Running          bool      `json:"running"`
	Interval         string    `json:"interval"`
	Cycles           int64     `json:"cycles"`
	LastCycleAt      time.Time `json:"last_cycle_at,omitempty"`
	LastCycleMs      int64     `json:"last_cycle_ms"`
	LastEmitted      int       `json:"last_emitted"`
	LastExecuted     int       `json:"last_executed"`
	TrackedProviders int       `json:"tracked_providers"`
}

// Observation is one provider's view for a single evaluation pass.
type Observation struct {
	Health    *model.ProviderHealth
	Quota     *model.ProviderQuota
	ErrorRate float64
}

// MonitorUsecase is the coordinator loop. Each cycle it probes the fleet,
// steps the quota breakers, evaluates the remediation rules and either
// executes the resulting actions or queues them for a human. Cycles never
// overlap; a slow cycle delays the next tick instead of stacking.
type MonitorUsecase struct {
	prober      *ProberUsecase
	quota       *QuotaUsecase
	executor    *ExecutorUsecase
	queue       ActionQueueRepo
	recoveryLog RecoveryLogRepo
	notifier    Notifier

	interval      time.Duration
	errorRate     float64
	availability  float64
	quotaWarning  float64
	quotaCritical float64

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	stopped      chan struct{}
	cycles       int64
	lastCycleAt  time.Time
	lastCycleMs  int64
	lastEmitted  int
	lastExecuted int

	// errorWindows holds the last errorWindowSize probe outcomes per
	// provider, true meaning the probe came back unhealthy. Guarded by mu;
	// Status reads it from request goroutines while the loop advances it.
	errorWindows map[string][]bool

	logger *pkglog.LogHelper
}

// NewMonitorUsecase creates a new monitor use case.
func NewMonitorUsecase(
	prober *ProberUsecase,
	quota *QuotaUsecase,
	executor *ExecutorUsecase,
	queue ActionQueueRepo,
	recoveryLog RecoveryLogRepo,
	notifier Notifier,
	mc *conf.Monitor,
	logger log.Logger,
) *MonitorUsecase {
	interval := defaultMonitorInterval
	errorRate := defaultErrorRate
	availability := defaultAvailability
	quotaWarning := defaultQuotaWarning
	quotaCritical := defaultQuotaCritical
	if mc != nil {
		if mc.Interval != nil {
			interval = mc.Interval.AsDuration()
		}
		if mc.ErrorRateThreshold > 0 {
			errorRate = mc.ErrorRateThreshold
		}
		if mc.AvailabilityFloor > 0 {
			availability = mc.AvailabilityFloor
		}
		if mc.QuotaWarningPercent > 0 {
			quotaWarning = mc.QuotaWarningPercent
		}
		if mc.QuotaCriticalPercent > 0 {
			quotaCritical = mc.QuotaCriticalPercent
		}
	}

	return &MonitorUsecase{
		prober:        prober,
		quota:         quota,
		executor:      executor,
		queue:         queue,
		recoveryLog:   recoveryLog,
		notifier:      notifier,
		interval:      interval,
		errorRate:     errorRate,
		availability:  availability,
		quotaWarning:  quotaWarning,
		quotaCritical: quotaCritical,
		errorWindows:  make(map[string][]bool),
		logger:        pkglog.NewLogHelper(logger),
	}
}

// Start launches the loop. Starting an already-running monitor is an error.
func (uc *MonitorUsecase) Start(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.running {
		return fmt.Errorf("monitor already running")
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	uc.cancel = cancel
	uc.stopped = make(chan struct{})
	uc.running = true

	go uc.loop(loopCtx)

	uc.logger.Monitor("monitor started", "interval", uc.interval)
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
// Stopping a stopped monitor is an error.
func (uc *MonitorUsecase) Stop() error {
	uc.mu.Lock()
	if !uc.running {
		uc.mu.Unlock()
		return fmt.Errorf("monitor not running")
	}
	cancel := uc.cancel
	stopped := uc.stopped
	uc.mu.Unlock()

	cancel()
	<-stopped

	uc.mu.Lock()
	uc.running = false
	uc.mu.Unlock()

	uc.logger.Monitor("monitor stopped")
	return nil
}

// Status returns a snapshot of the loop.
func (uc *MonitorUsecase) Status() *MonitorStatus {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	return &MonitorStatus{
		Running:          uc.running,
		Interval:         uc.interval.String(),
		Cycles:           uc.cycles,
		LastCycleAt:      uc.lastCycleAt,
		LastCycleMs:      uc.lastCycleMs,
		LastEmitted:      uc.lastEmitted,
		LastExecuted:     uc.lastExecuted,
		TrackedProviders: len(uc.errorWindows),
	}
}

// loop runs cycles until the context is cancelled. RunCycle executes inside
// the loop goroutine, so cycles are serialized by construction.
func (uc *MonitorUsecase) loop(ctx context.Context) {
	defer close(uc.stopped)

	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	// First cycle runs immediately rather than one interval in.
	uc.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uc.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full monitoring pass: probe, evaluate, remediate.
func (uc *MonitorUsecase) RunCycle(ctx context.Context) {
	start := time.Now()

	uc.mu.Lock()
	uc.cycles++
	cycle := uc.cycles
	uc.mu.Unlock()

	healths, err := uc.prober.ProbeAll(ctx)
	if err != nil {
		uc.logger.Warnw("probe pass failed", "error", err)
		return
	}
	quotas, err := uc.quota.EvaluateAll(ctx)
	if err != nil {
		uc.logger.Warnw("quota pass failed", "error", err)
		return
	}

	observations := uc.observe(healths, quotas)
	availability := Availability(healths)
	actions := uc.Plan(observations, availability)

	observability.FleetAvailability.Set(availability)

	executed := 0
	for _, action := range actions {
		observability.ActionsEmitted.WithLabelValues(
			string(action.Action), string(action.Severity), fmt.Sprintf("%t", action.Automated)).Inc()
		if uc.dispatch(ctx, cycle, action) {
			executed++
		}
	}

	uc.mu.Lock()
	uc.lastCycleAt = time.Now()
	uc.lastCycleMs = time.Since(start).Milliseconds()
	uc.lastEmitted = len(actions)
	uc.lastExecuted = executed
	uc.mu.Unlock()

	observability.MonitorCycleDuration.Observe(time.Since(start).Seconds())

	uc.logger.CycleCompleted(cycle, len(healths), len(actions), executed, time.Since(start).Milliseconds(),
		"availability", availability)
}

// observe merges the probe and quota passes into per-provider observations
// and advances the rolling error windows.
func (uc *MonitorUsecase) observe(healths []*model.ProviderHealth, quotas []*model.ProviderQuota) []Observation {
	quotaBy := make(map[string]*model.ProviderQuota, len(quotas))
	for _, q := range quotas {
		quotaBy[q.Provider] = q
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	observations := make([]Observation, 0, len(healths))
	for _, h := range healths {
		window := append(uc.errorWindows[h.Provider], h.Status == model.HealthUnhealthy)
		if len(window) > errorWindowSize {
			window = window[len(window)-errorWindowSize:]
		}
		uc.errorWindows[h.Provider] = window

		failures := 0
		for _, failed := range window {
			if failed {
				failures++
			}
		}

		observations = append(observations, Observation{
			Health:    h,
			Quota:     quotaBy[h.Provider],
			ErrorRate: float64(failures) / float64(len(window)),
		})
	}
	return observations
}

// Availability is the fraction of providers answering probes, degraded ones
// included. Only an unhealthy provider counts against the fleet.
func Availability(healths []*model.ProviderHealth) float64 {
	if len(healths) == 0 {
		return 1
	}
	up := 0
	for _, h := range healths {
		if h.Status != model.HealthUnhealthy {
			up++
		}
	}
	return float64(up) / float64(len(healths))
}

// Plan applies the remediation rules to one evaluation pass. The rules are
// ordered: a provider tripping the breaker rule does not also emit a
// failover for the same cycle, and the availability rule fires at most once.
func (uc *MonitorUsecase) Plan(observations []Observation, availability float64) []*model.EmittedAction {
	actions := make([]*model.EmittedAction, 0)

	for _, obs := range observations {
		provider := obs.Health.Provider

		if obs.Quota != nil && obs.Quota.Status == model.BreakerOpen && obs.ErrorRate > uc.errorRate {
			actions = append(actions, &model.EmittedAction{
				Action:    model.ActionCircuitBreak,
				Provider:  provider,
				Severity:  model.SeverityHigh,
				Automated: true,
				Reason: fmt.Sprintf("breaker open with error rate %.0f%% above %.0f%%",
					obs.ErrorRate*100, uc.errorRate*100),
			})
			continue
		}

		if obs.Quota != nil && obs.Quota.PercentageUsed > uc.quotaWarning {
			severity := model.SeverityHigh
			if obs.Quota.PercentageUsed > uc.quotaCritical {
				severity = model.SeverityCritical
			}
			actions = append(actions, &model.EmittedAction{
				Action:    model.ActionFailover,
				Provider:  provider,
				Severity:  severity,
				Automated: true,
				Reason: fmt.Sprintf("quota at %.1f%% above warning %.1f%%",
					obs.Quota.PercentageUsed, uc.quotaWarning),
			})
		}
	}

	if availability < uc.availability {
		// A fleet-wide restart is too disruptive to fire unattended; it is
		// queued and escalated instead.
		actions = append(actions, &model.EmittedAction{
			Action:    model.ActionRestartService,
			Severity:  model.SeverityCritical,
			Automated: false,
			Reason: fmt.Sprintf("availability %.0f%% below floor %.0f%%",
				availability*100, uc.availability*100),
		})
	}

	return actions
}

// dispatch executes an automated action or queues the rest. Returns whether
// the action actually ran.
func (uc *MonitorUsecase) dispatch(ctx context.Context, cycle int64, action *model.EmittedAction) bool {
	if action.Automated {
		result := uc.executor.Execute(ctx, &model.RecoveryRequest{
			Action:   action.Action,
			Provider: action.Provider,
			PlanID:   fmt.Sprintf("monitor-cycle-%d", cycle),
		})

		action.Executed = true
		if _, err := uc.queue.Enqueue(ctx, action); err != nil {
			uc.logger.Warnw("failed to record executed action",
				"action", action.Action, "error", err)
		}
		return result.Success
	}

	// Duplicate suppression: the same action pending for the same target is
	// not queued twice.
	pending, err := uc.queue.ListPending(ctx)
	if err == nil {
		for _, p := range pending {
			if p.Action == action.Action && p.Provider == action.Provider {
				uc.logger.Debugw("duplicate queued action suppressed",
					"action", action.Action,
					"provider", action.Provider,
					"pending_id", p.ID,
					"reason", action.Reason)
				return false
			}
		}
	}

	id, err := uc.queue.Enqueue(ctx, action)
	if err != nil {
		uc.logger.Warnw("failed to queue action",
			"action", action.Action, "error", err)
		return false
	}

	uc.recoveryLog.Append(ctx, &model.RecoveryLogEntry{
		CorrelationID: fmt.Sprintf("queued-%d", id),
		ServiceName:   serviceName,
		LogLevel:      "warn",
		Message:       fmt.Sprintf("%s: %s awaiting confirmation", model.RecoveryEventQueued, action.Action),
		Metadata: map[string]any{
			"action":   action.Action,
			"provider": action.Provider,
			"severity": action.Severity,
			"reason":   action.Reason,
		},
	})

	event := &model.EscalationEvent{
		Action:    action.Action,
		Provider:  action.Provider,
		Severity:  action.Severity,
		Reason:    action.Reason,
		QueuedID:  id,
		CreatedAt: time.Now(),
	}
	observability.Escalations.WithLabelValues(string(action.Severity)).Inc()
	if err := uc.notifier.NotifyEscalation(ctx, event); err != nil {
		uc.logger.Warnw("failed to deliver escalation",
			"action", action.Action, "error", err)
	} else {
		uc.logger.Escalation("action escalated",
			"action", action.Action,
			"severity", action.Severity,
			"queued_id", id)
		uc.recoveryLog.Append(ctx, &model.RecoveryLogEntry{
			CorrelationID: fmt.Sprintf("queued-%d", id),
			ServiceName:   serviceName,
			LogLevel:      "warn",
			Message:       fmt.Sprintf("%s: %s escalated for human decision", model.RecoveryEventEscalated, action.Action),
			Metadata: map[string]any{
				"action":    action.Action,
				"provider":  action.Provider,
				"severity":  action.Severity,
				"queued_id": id,
			},
		})
	}

	return false
}

// TriggerQueued runs one queued action on human confirmation. Triggering an
// already-executed action is refused rather than run twice.
func (uc *MonitorUsecase) TriggerQueued(ctx context.Context, id int64) (*model.RecoveryResult, error) {
	action, err := uc.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Executed {
		return nil, fmt.Errorf("recovery action %d already executed", id)
	}

	result := uc.executor.Execute(ctx, &model.RecoveryRequest{
		Action:   action.Action,
		Provider: action.Provider,
		PlanID:   fmt.Sprintf("queued-%d", id),
	})

	if err := uc.queue.MarkExecuted(ctx, id); err != nil {
		uc.logger.Warnw("failed to mark queued action executed",
			"id", id, "error", err)
	}

	return result, nil
}

// ListPending returns queued actions awaiting a human decision.
func (uc *MonitorUsecase) ListPending(ctx context.Context) ([]*model.EmittedAction, error) {
	return uc.queue.ListPending(ctx)
}
