package service

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/biz"
	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// RecoveryService exposes the prober, quota tracker, recovery executor and
// monitor loop over HTTP. Handlers bind JSON in the transport layer and call
// these methods with plain types.
type RecoveryService struct {
	prober   *biz.ProberUsecase
	quota    *biz.QuotaUsecase
	executor *biz.ExecutorUsecase
	monitor  *biz.MonitorUsecase
	logger   *log.Helper
}

// NewRecoveryService creates a new RecoveryService instance.
func NewRecoveryService(
	prober *biz.ProberUsecase,
	quota *biz.QuotaUsecase,
	executor *biz.ExecutorUsecase,
	monitor *biz.MonitorUsecase,
	logger log.Logger,
) *RecoveryService {
	return &RecoveryService{
		prober:   prober,
		quota:    quota,
		executor: executor,
		monitor:  monitor,
		logger:   log.NewHelper(logger),
	}
}

// ProviderHealthReply carries the persisted health rows.
type ProviderHealthReply struct {
	Providers []*model.ProviderHealth `json:"providers"`
}

// ProviderQuotaReply carries the persisted quota rows.
type ProviderQuotaReply struct {
	Providers []*model.ProviderQuota `json:"providers"`
}

// ActionsReply lists the recovery action catalog.
type ActionsReply struct {
	Actions []model.ActionName `json:"actions"`
}

// QueuedActionsReply lists actions awaiting a human decision.
type QueuedActionsReply struct {
	Actions []*model.EmittedAction `json:"actions"`
}

// RecoveryLogReply carries recent audit entries, newest first.
type RecoveryLogReply struct {
	Entries []*model.RecoveryLogEntry `json:"entries"`
}

// ExecuteRequest is the wire form of a recovery execution. Timeout and
// TimeoutMs both carry the per-request timeout override in milliseconds;
// Timeout wins when both are set.
type ExecuteRequest struct {
	model.RecoveryRequest
	Timeout   int64 `json:"timeout,omitempty"`
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// recoveryRequest converts the wire form into the executor's request,
// resolving the millisecond timeout fields into a duration.
func (req *ExecuteRequest) recoveryRequest() *model.RecoveryRequest {
	r := req.RecoveryRequest
	ms := req.TimeoutMs
	if req.Timeout > 0 {
		ms = req.Timeout
	}
	if ms > 0 {
		r.Timeout = time.Duration(ms) * time.Millisecond
	}
	return &r
}

// UsageRequest records consumed quota units for a provider.
type UsageRequest struct {
	Provider string `json:"provider"`
	Units    int64  `json:"units"`
}

// UsageReply returns the running total after recording usage.
type UsageReply struct {
	Provider string `json:"provider"`
	Usage    int64  `json:"usage"`
}

// StatusReply wraps simple success responses.
type StatusReply struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ExecuteRecovery runs one recovery action. The execution contract lives in
// the executor: this always returns a result, never an error.
func (s *RecoveryService) ExecuteRecovery(ctx context.Context, req *ExecuteRequest) *model.RecoveryResult {
	s.logger.Infow("ExecuteRecovery called",
		"action", req.Action, "provider", req.Provider, "rollback", req.IsRollback)

	return s.executor.Execute(ctx, req.recoveryRequest())
}

// ListProviderHealth returns the last probe outcome per provider.
func (s *RecoveryService) ListProviderHealth(ctx context.Context) (*ProviderHealthReply, error) {
	s.logger.Debugw("ListProviderHealth called")

	providers, err := s.prober.ListHealth(ctx)
	if err != nil {
		s.logger.Errorw("failed to list provider health", "error", err)
		return nil, err
	}
	return &ProviderHealthReply{Providers: providers}, nil
}

// ProbeProvider runs an immediate probe against one provider.
func (s *RecoveryService) ProbeProvider(ctx context.Context, provider string) (*model.ProviderHealth, error) {
	s.logger.Infow("ProbeProvider called", "provider", provider)

	h, err := s.prober.ProbeOne(ctx, provider)
	if err != nil {
		s.logger.Errorw("failed to probe provider", "provider", provider, "error", err)
		return nil, err
	}
	return h, nil
}

// ListProviderQuotas returns the quota and breaker row per provider.
func (s *RecoveryService) ListProviderQuotas(ctx context.Context) (*ProviderQuotaReply, error) {
	s.logger.Debugw("ListProviderQuotas called")

	providers, err := s.quota.ListQuotas(ctx)
	if err != nil {
		s.logger.Errorw("failed to list provider quotas", "error", err)
		return nil, err
	}
	return &ProviderQuotaReply{Providers: providers}, nil
}

// RecordUsage adds consumed quota units for a provider.
func (s *RecoveryService) RecordUsage(ctx context.Context, req *UsageRequest) (*UsageReply, error) {
	s.logger.Debugw("RecordUsage called", "provider", req.Provider, "units", req.Units)

	if req.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if req.Units <= 0 {
		return nil, fmt.Errorf("units must be positive")
	}

	usage, err := s.quota.RecordUsage(ctx, req.Provider, req.Units)
	if err != nil {
		s.logger.Errorw("failed to record usage", "provider", req.Provider, "error", err)
		return nil, err
	}
	return &UsageReply{Provider: req.Provider, Usage: usage}, nil
}

// ResetBreaker force-closes one provider's circuit breaker.
func (s *RecoveryService) ResetBreaker(ctx context.Context, provider string) (*StatusReply, error) {
	s.logger.Infow("ResetBreaker called", "provider", provider)

	if err := s.quota.ResetBreaker(ctx, provider); err != nil {
		s.logger.Errorw("failed to reset breaker", "provider", provider, "error", err)
		return nil, err
	}
	return &StatusReply{Success: true, Message: fmt.Sprintf("Breaker reset for %s", provider)}, nil
}

// ListActions returns the closed recovery action catalog.
func (s *RecoveryService) ListActions(ctx context.Context) *ActionsReply {
	s.logger.Debugw("ListActions called")

	return &ActionsReply{Actions: s.executor.Actions()}
}

// ListQueuedActions returns queued actions awaiting confirmation.
func (s *RecoveryService) ListQueuedActions(ctx context.Context) (*QueuedActionsReply, error) {
	s.logger.Debugw("ListQueuedActions called")

	actions, err := s.monitor.ListPending(ctx)
	if err != nil {
		s.logger.Errorw("failed to list queued actions", "error", err)
		return nil, err
	}
	return &QueuedActionsReply{Actions: actions}, nil
}

// TriggerQueuedAction runs one queued action on human confirmation.
func (s *RecoveryService) TriggerQueuedAction(ctx context.Context, id int64) (*model.RecoveryResult, error) {
	s.logger.Infow("TriggerQueuedAction called", "id", id)

	result, err := s.monitor.TriggerQueued(ctx, id)
	if err != nil {
		s.logger.Errorw("failed to trigger queued action", "id", id, "error", err)
		return nil, err
	}
	return result, nil
}

// RecentRecoveryLog returns the newest audit entries.
func (s *RecoveryService) RecentRecoveryLog(ctx context.Context, limit int) (*RecoveryLogReply, error) {
	s.logger.Debugw("RecentRecoveryLog called", "limit", limit)

	entries, err := s.executor.RecentLog(ctx, limit)
	if err != nil {
		s.logger.Errorw("failed to list recovery log", "error", err)
		return nil, err
	}
	return &RecoveryLogReply{Entries: entries}, nil
}

// StartMonitor launches the coordinator loop.
func (s *RecoveryService) StartMonitor(ctx context.Context) (*StatusReply, error) {
	s.logger.Infow("StartMonitor called")

	if err := s.monitor.Start(ctx); err != nil {
		s.logger.Errorw("failed to start monitor", "error", err)
		return nil, err
	}
	return &StatusReply{Success: true, Message: "Monitor started"}, nil
}

// StopMonitor halts the coordinator loop.
func (s *RecoveryService) StopMonitor(ctx context.Context) (*StatusReply, error) {
	s.logger.Infow("StopMonitor called")

	if err := s.monitor.Stop(); err != nil {
		s.logger.Errorw("failed to stop monitor", "error", err)
		return nil, err
	}
	return &StatusReply{Success: true, Message: "Monitor stopped"}, nil
}

// MonitorStatus returns a snapshot of the coordinator loop.
func (s *RecoveryService) MonitorStatus(ctx context.Context) *biz.MonitorStatus {
	s.logger.Debugw("MonitorStatus called")

	return s.monitor.Status()
}
