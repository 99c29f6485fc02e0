package biz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"
	pkglog "TripWatch/pkg/log"
)

// recoveryLogRetention is how long audit entries are kept before the
// optimize_database action purges them.
const recoveryLogRetention = 30 * 24 * time.Hour

// optimizeRotationAction reorders the provider rotation by observed health:
// healthy and fast providers first, open breakers last. Running it twice on
// the same observations produces the same order.
type optimizeRotationAction struct {
	healthRepo HealthRepo
	quotaRepo  QuotaRepo
	rotation   RotationRepo
	providers  []*conf.Provider
	logger     *pkglog.LogHelper
}

func (a *optimizeRotationAction) Name() model.ActionName { return model.ActionOptimizeRotationOrder }

func (a *optimizeRotationAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	order, err := a.computeOrder(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.rotation.SetOrder(ctx, order); err != nil {
		return nil, err
	}

	a.logger.Recovery("rotation order optimized", "order", order)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Rotation order rebuilt across %d providers", len(order)),
		Details: map[string]any{"order": order},
	}, nil
}

// computeOrder ranks enabled providers: status class first, then latency,
// then quota headroom. Providers with an open breaker sink to the back
// regardless of latency. Ties break on the name for a stable order.
func (a *optimizeRotationAction) computeOrder(ctx context.Context) ([]string, error) {
	healths, err := a.healthRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	quotas, err := a.quotaRepo.ListQuotas(ctx)
	if err != nil {
		return nil, err
	}

	healthBy := make(map[string]*model.ProviderHealth, len(healths))
	for _, h := range healths {
		healthBy[h.Provider] = h
	}
	quotaBy := make(map[string]*model.ProviderQuota, len(quotas))
	for _, q := range quotas {
		quotaBy[q.Provider] = q
	}

	type ranked struct {
		name    string
		class   int
		latency int64
		pct     float64
	}

	entries := make([]ranked, 0, len(a.providers))
	for _, p := range a.providers {
		if !p.Enabled {
			continue
		}
		e := ranked{name: p.Name, class: statusRank(model.HealthUnhealthy)}
		if h, ok := healthBy[p.Name]; ok {
			e.class = statusRank(h.Status)
			e.latency = h.ResponseTime
		}
		if q, ok := quotaBy[p.Name]; ok {
			e.pct = q.PercentageUsed
			if q.Status == model.BreakerOpen {
				e.class = statusRank(model.HealthUnhealthy) + 1
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].class != entries[j].class {
			return entries[i].class < entries[j].class
		}
		if entries[i].latency != entries[j].latency {
			return entries[i].latency < entries[j].latency
		}
		if entries[i].pct != entries[j].pct {
			return entries[i].pct < entries[j].pct
		}
		return entries[i].name < entries[j].name
	})

	order := make([]string, 0, len(entries))
	for _, e := range entries {
		order = append(order, e.name)
	}
	return order, nil
}

func statusRank(s model.HealthStatus) int {
	switch s {
	case model.HealthHealthy:
		return 0
	case model.HealthDegraded:
		return 1
	default:
		return 2
	}
}

// optimizeDatabaseAction refreshes table statistics and purges audit
// entries past retention.
type optimizeDatabaseAction struct {
	maintenance MaintenanceRepo
	recoveryLog RecoveryLogRepo
	logger      *pkglog.LogHelper
}

func (a *optimizeDatabaseAction) Name() model.ActionName { return model.ActionOptimizeDatabase }

func (a *optimizeDatabaseAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	tables, err := a.maintenance.OptimizeTables(ctx)
	if err != nil {
		return nil, err
	}

	purged, err := a.recoveryLog.PurgeOlderThan(ctx, time.Now().Add(-recoveryLogRetention))
	if err != nil {
		return nil, err
	}

	a.logger.Database("database maintenance completed",
		"tables", tables, "log_entries_purged", purged)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Optimized %d tables, purged %d old audit entries", len(tables), purged),
		Details: map[string]any{
			"tables":             tables,
			"log_entries_purged": purged,
		},
	}, nil
}

// comprehensiveHealthAction runs a full probe and quota evaluation pass and
// reports the fleet summary. It observes, it does not mutate beyond the
// rows every monitoring cycle writes anyway.
type comprehensiveHealthAction struct {
	prober *ProberUsecase
	quota  *QuotaUsecase
}

func (a *comprehensiveHealthAction) Name() model.ActionName { return model.ActionComprehensiveHealth }

func (a *comprehensiveHealthAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	healths, err := a.prober.ProbeAll(ctx)
	if err != nil {
		return nil, err
	}
	quotas, err := a.quota.EvaluateAll(ctx)
	if err != nil {
		return nil, err
	}

	var healthy, degraded, unhealthy int
	providerDetails := make(map[string]any, len(healths))
	for _, h := range healths {
		switch h.Status {
		case model.HealthHealthy:
			healthy++
		case model.HealthDegraded:
			degraded++
		default:
			unhealthy++
		}
		providerDetails[h.Provider] = map[string]any{
			"status":           h.Status,
			"response_time_ms": h.ResponseTime,
			"error_count":      h.ErrorCount,
		}
	}

	openBreakers := make([]string, 0)
	for _, q := range quotas {
		if q.Status == model.BreakerOpen {
			openBreakers = append(openBreakers, q.Provider)
		}
	}

	return &model.RecoveryResult{
		Success: unhealthy == 0,
		Message: fmt.Sprintf("Health check: %d healthy, %d degraded, %d unhealthy, %d open breakers",
			healthy, degraded, unhealthy, len(openBreakers)),
		Details: map[string]any{
			"providers":     providerDetails,
			"healthy":       healthy,
			"degraded":      degraded,
			"unhealthy":     unhealthy,
			"open_breakers": openBreakers,
		},
	}, nil
}

// circuitBreakAction forces a provider's breaker open so traffic drains away
// from it immediately. Breaking an already-open breaker changes nothing.
type circuitBreakAction struct {
	quotaRepo QuotaRepo
	notifier  Notifier
	logger    *pkglog.LogHelper
}

func (a *circuitBreakAction) Name() model.ActionName { return model.ActionCircuitBreak }

func (a *circuitBreakAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	if req.Provider == "" {
		return nil, fmt.Errorf("circuit_break requires a provider")
	}

	prev := model.BreakerClosed
	pct := 0.0
	if q, err := a.quotaRepo.GetQuota(ctx, req.Provider); err == nil {
		prev = q.Status
		pct = q.PercentageUsed
	}

	if err := a.quotaRepo.UpsertQuota(ctx, &model.ProviderQuota{
		Provider:       req.Provider,
		PercentageUsed: pct,
		Status:         model.BreakerOpen,
		UpdatedAt:      time.Now(),
	}); err != nil {
		return nil, err
	}

	if prev != model.BreakerOpen {
		a.logger.Breaker("breaker forced open", "provider", req.Provider)
		event := &model.CircuitBrokenEvent{
			Provider:       req.Provider,
			PercentageUsed: pct,
			BrokenAt:       time.Now(),
		}
		if err := a.notifier.NotifyCircuitBroken(ctx, event); err != nil {
			a.logger.Warnw("failed to notify breaker opened",
				"provider", req.Provider, "error", err)
		}
	}

	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Circuit breaker opened for %s", req.Provider),
		Details: map[string]any{
			"provider":       req.Provider,
			"previous_state": prev,
		},
	}, nil
}

// failoverAction rebalances the rotation away from a struggling provider by
// moving it to the back of the order. Failing over a provider already at the
// back leaves the order unchanged.
type failoverAction struct {
	rotation  RotationRepo
	providers []*conf.Provider
	logger    *pkglog.LogHelper
}

func (a *failoverAction) Name() model.ActionName { return model.ActionFailover }

func (a *failoverAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	if req.Provider == "" {
		return nil, fmt.Errorf("failover requires a provider")
	}

	order, err := a.rotation.GetOrder(ctx)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		// No stored order yet, start from the configured one.
		for _, p := range a.providers {
			if p.Enabled {
				order = append(order, p.Name)
			}
		}
	}

	rebalanced := make([]string, 0, len(order))
	found := false
	for _, name := range order {
		if name == req.Provider {
			found = true
			continue
		}
		rebalanced = append(rebalanced, name)
	}
	if !found {
		return nil, fmt.Errorf("unknown provider in rotation: %s", req.Provider)
	}
	rebalanced = append(rebalanced, req.Provider)

	if err := a.rotation.SetOrder(ctx, rebalanced); err != nil {
		return nil, err
	}

	a.logger.Recovery("traffic failed over",
		"provider", req.Provider, "order", rebalanced)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Traffic rebalanced away from %s", req.Provider),
		Details: map[string]any{
			"provider": req.Provider,
			"order":    rebalanced,
		},
	}, nil
}
