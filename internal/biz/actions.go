package biz

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/data"
	"TripWatch/internal/model"
	"TripWatch/internal/observability"
	pkglog "TripWatch/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// RecoveryAction is one remediation procedure from the closed catalog.
// Implementations must be idempotent: running the same action twice leaves
// the system in the same state as running it once.
type RecoveryAction interface {
	Name() model.ActionName
	Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error)
}

// RollbackableAction is a RecoveryAction with a real inverse. Actions
// without one are rolled back as a recorded no-op by the executor.
type RollbackableAction interface {
	RecoveryAction
	Rollback(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error)
}

// ActionCatalog holds the closed set of recovery actions. Nothing outside
// this catalog can be executed; an unknown name is a failed result, not a
// code path.
type ActionCatalog struct {
	actions map[model.ActionName]RecoveryAction
	order   []model.ActionName
}

// NewActionCatalog wires every known action to its dependencies.
func NewActionCatalog(
	prober *ProberUsecase,
	quota *QuotaUsecase,
	healthRepo HealthRepo,
	quotaRepo QuotaRepo,
	cache data.CacheClient,
	rotation RotationRepo,
	booking BookingRepo,
	maintenance MaintenanceRepo,
	recoveryLog RecoveryLogRepo,
	notifier Notifier,
	mc *conf.Monitor,
	providers []*conf.Provider,
	logger log.Logger,
) *ActionCatalog {
	helper := pkglog.NewLogHelper(logger)

	stuckAge := defaultStuckBookingAge
	if mc != nil && mc.StuckBookingAge != nil {
		stuckAge = mc.StuckBookingAge.AsDuration()
	}

	all := []RecoveryAction{
		&testConnectionAction{prober: prober, providers: providers},
		&clearCacheAction{cache: cache, logger: helper},
		&refreshCacheAction{cache: cache, logger: helper},
		&restartServiceAction{prober: prober, healthRepo: healthRepo, quotaRepo: quotaRepo, providers: providers, logger: helper},
		&resetDegradedAction{healthRepo: healthRepo, logger: helper},
		&optimizeRotationAction{healthRepo: healthRepo, quotaRepo: quotaRepo, rotation: rotation, providers: providers, logger: helper},
		&fixStuckBookingsAction{booking: booking, stuckAge: stuckAge, logger: helper},
		&optimizeDatabaseAction{maintenance: maintenance, recoveryLog: recoveryLog, logger: helper},
		&comprehensiveHealthAction{prober: prober, quota: quota},
		&circuitBreakAction{quotaRepo: quotaRepo, notifier: notifier, logger: helper},
		&failoverAction{rotation: rotation, providers: providers, logger: helper},
	}

	catalog := &ActionCatalog{
		actions: make(map[model.ActionName]RecoveryAction, len(all)),
		order:   make([]model.ActionName, 0, len(all)),
	}
	for _, a := range all {
		catalog.actions[a.Name()] = a
		catalog.order = append(catalog.order, a.Name())
	}
	return catalog
}

// Get returns the action for a name, or false for anything outside the
// catalog.
func (c *ActionCatalog) Get(name model.ActionName) (RecoveryAction, bool) {
	a, ok := c.actions[name]
	return a, ok
}

// List returns every action name in registration order.
func (c *ActionCatalog) List() []model.ActionName {
	names := make([]model.ActionName, len(c.order))
	copy(names, c.order)
	return names
}

// defaultStuckBookingAge is how long a booking may sit in pending before the
// sweep expires it.
const defaultStuckBookingAge = time.Hour

// testConnectionAction probes one provider, or all of them when the request
// names none.
type testConnectionAction struct {
	prober    *ProberUsecase
	providers []*conf.Provider
}

func (a *testConnectionAction) Name() model.ActionName { return model.ActionTestConnection }

func (a *testConnectionAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	if req.Provider != "" {
		h, err := a.prober.ProbeOne(ctx, req.Provider)
		if err != nil {
			return nil, err
		}
		return &model.RecoveryResult{
			Success: h.Status != model.HealthUnhealthy,
			Message: fmt.Sprintf("Connection test for %s: %s", h.Provider, h.Status),
			Details: map[string]any{
				"provider":         h.Provider,
				"status":           h.Status,
				"response_time_ms": h.ResponseTime,
				"error_count":      h.ErrorCount,
			},
		}, nil
	}

	healths, err := a.prober.ProbeAll(ctx)
	if err != nil {
		return nil, err
	}

	healthy := 0
	statuses := make(map[string]any, len(healths))
	for _, h := range healths {
		statuses[h.Provider] = h.Status
		if h.Status != model.HealthUnhealthy {
			healthy++
		}
	}

	return &model.RecoveryResult{
		Success: healthy == len(healths),
		Message: fmt.Sprintf("Connection test: %d/%d providers reachable", healthy, len(healths)),
		Details: map[string]any{"providers": statuses},
	}, nil
}

// clearCacheAction parks search and pricing caches into the backup hash so
// the inverse can restore them. Clearing an already-empty cache succeeds
// with zero entries.
type clearCacheAction struct {
	cache  data.CacheClient
	logger *pkglog.LogHelper
}

func (a *clearCacheAction) Name() model.ActionName { return model.ActionClearCache }

func (a *clearCacheAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	var total int64
	for _, prefix := range []string{data.CacheKeySearch, data.CacheKeyPricing} {
		moved, err := a.cache.SnapshotByPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to clear %s cache: %w", prefix, err)
		}
		total += moved
	}

	a.logger.Recovery("caches cleared", "entries", total)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Cleared %d cached entries", total),
		Details: map[string]any{"entries_cleared": total},
	}, nil
}

// Rollback restores the parked entries. An expired or empty snapshot
// restores nothing and still succeeds.
func (a *clearCacheAction) Rollback(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	restored, err := a.cache.RestoreSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore cache snapshot: %w", err)
	}

	a.logger.Recovery("cache snapshot restored", "entries", restored)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Restored %d cached entries", restored),
		Details: map[string]any{"entries_restored": restored},
	}, nil
}

// refreshCacheAction drops search and pricing caches outright so the next
// lookups repopulate them from the suppliers. No snapshot, no inverse.
type refreshCacheAction struct {
	cache  data.CacheClient
	logger *pkglog.LogHelper
}

func (a *refreshCacheAction) Name() model.ActionName { return model.ActionRefreshCache }

func (a *refreshCacheAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	var total int64
	for _, prefix := range []string{data.CacheKeySearch, data.CacheKeyPricing} {
		deleted, err := a.cache.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh %s cache: %w", prefix, err)
		}
		total += deleted
	}

	a.logger.Recovery("caches invalidated for refresh", "entries", total)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Invalidated %d cached entries, next lookups repopulate", total),
		Details: map[string]any{"entries_invalidated": total},
	}, nil
}

// restartServiceAction re-initializes provider integrations: breaker and
// error counters reset, then a fresh probe. With no provider named the whole
// fleet restarts.
type restartServiceAction struct {
	prober     *ProberUsecase
	healthRepo HealthRepo
	quotaRepo  QuotaRepo
	providers  []*conf.Provider
	logger     *pkglog.LogHelper
}

func (a *restartServiceAction) Name() model.ActionName { return model.ActionRestartService }

func (a *restartServiceAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	targets := make([]string, 0, len(a.providers))
	if req.Provider != "" {
		targets = append(targets, req.Provider)
	} else {
		for _, p := range a.providers {
			if p.Enabled {
				targets = append(targets, p.Name)
			}
		}
	}

	restarted := make([]string, 0, len(targets))
	for _, name := range targets {
		if err := a.healthRepo.ResetProbeErrors(ctx, name); err != nil {
			a.logger.Warnw("failed to reset probe errors during restart",
				"provider", name, "error", err)
		}
		if err := a.quotaRepo.ResetBreaker(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to reset breaker for %s: %w", name, err)
		}
		if _, err := a.prober.ProbeOne(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to re-probe %s after restart: %w", name, err)
		}
		restarted = append(restarted, name)
	}

	a.logger.Recovery("provider integrations restarted", "providers", restarted)
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Restarted %d provider integrations", len(restarted)),
		Details: map[string]any{"restarted": restarted},
	}, nil
}

// resetDegradedAction marks every degraded provider healthy again.
type resetDegradedAction struct {
	healthRepo HealthRepo
	logger     *pkglog.LogHelper
}

func (a *resetDegradedAction) Name() model.ActionName { return model.ActionResetDegradedProviders }

func (a *resetDegradedAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	names, err := a.healthRepo.ResetDegraded(ctx)
	if err != nil {
		return nil, err
	}

	if len(names) > 0 {
		a.logger.Recovery("degraded providers reset", "providers", names)
	}
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Reset %d degraded providers", len(names)),
		Details: map[string]any{"reset": names},
	}, nil
}

// fixStuckBookingsAction expires bookings stuck in pending past the
// configured age.
type fixStuckBookingsAction struct {
	booking  BookingRepo
	stuckAge time.Duration
	logger   *pkglog.LogHelper
}

func (a *fixStuckBookingsAction) Name() model.ActionName { return model.ActionFixStuckBookings }

func (a *fixStuckBookingsAction) Execute(ctx context.Context, req *model.RecoveryRequest) (*model.RecoveryResult, error) {
	cutoff := time.Now().Add(-a.stuckAge)

	stuck, err := a.booking.CountStuck(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	expired, err := a.booking.ExpireStuck(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	if expired > 0 {
		observability.StuckBookingsExpired.Add(float64(expired))
		a.logger.Booking("stuck bookings expired", "found", stuck, "expired", expired)
	}
	return &model.RecoveryResult{
		Success: true,
		Message: fmt.Sprintf("Expired %d stuck bookings", expired),
		Details: map[string]any{
			"found":      stuck,
			"expired":    expired,
			"cutoff":     cutoff.Format(time.RFC3339),
			"max_age_ms": a.stuckAge.Milliseconds(),
		},
	}, nil
}
