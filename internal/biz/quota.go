package biz

import (
	"context"
	"time"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"
	"TripWatch/internal/observability"
	pkglog "TripWatch/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// defaults applied when the monitor config leaves a quota threshold unset.
const (
	defaultQuotaWarning    = 90.0
	defaultQuotaCritical   = 95.0
	defaultBreakerRecovery = 80.0
)

// QuotaThresholds are the breaker transition bounds, in percent used.
type QuotaThresholds struct {
	WarningPercent  float64
	CriticalPercent float64
	RecoveryPercent float64
}

// QuotaUsecase tracks provider quota consumption and drives the per-provider
// circuit breaker. The breaker has three states with hysteresis: it opens at
// the critical bound, holds its state inside the recovery band, and only
// walks back toward closed through half-open below the recovery bound.
type QuotaUsecase struct {
	repo       QuotaRepo
	providers  []*conf.Provider
	notifier   Notifier
	thresholds QuotaThresholds
	logger     *pkglog.LogHelper
}

// NewQuotaUsecase creates a new quota use case.
func NewQuotaUsecase(repo QuotaRepo, mc *conf.Monitor, providers []*conf.Provider, notifier Notifier, logger log.Logger) *QuotaUsecase {
	thresholds := QuotaThresholds{
		WarningPercent:  defaultQuotaWarning,
		CriticalPercent: defaultQuotaCritical,
		RecoveryPercent: defaultBreakerRecovery,
	}
	if mc != nil {
		if mc.QuotaWarningPercent > 0 {
			thresholds.WarningPercent = mc.QuotaWarningPercent
		}
		if mc.QuotaCriticalPercent > 0 {
			thresholds.CriticalPercent = mc.QuotaCriticalPercent
		}
		if mc.BreakerRecoveryPercent > 0 {
			thresholds.RecoveryPercent = mc.BreakerRecoveryPercent
		}
	}

	return &QuotaUsecase{
		repo:       repo,
		providers:  providers,
		notifier:   notifier,
		thresholds: thresholds,
		logger:     pkglog.NewLogHelper(logger),
	}
}

// Thresholds returns the active quota bounds.
func (uc *QuotaUsecase) Thresholds() QuotaThresholds {
	return uc.thresholds
}

// PercentageUsed computes quota consumption as a percentage, clamped to
// 0..100. A provider without a configured limit reads as zero, never as a
// division error.
func PercentageUsed(usage, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	pct := float64(usage) / float64(limit) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// NextBreakerState is the pure transition function of the breaker.
// At or above the critical bound the breaker is open, no exceptions. Inside
// the recovery band the previous state holds. Below the recovery bound an
// open breaker goes half-open (when halfOpenGranted) and a half-open breaker
// closes.
func NextBreakerState(prev model.BreakerState, pct float64, t QuotaThresholds, halfOpenGranted bool) model.BreakerState {
	if pct >= t.CriticalPercent {
		return model.BreakerOpen
	}
	if pct >= t.RecoveryPercent {
		return prev
	}

	switch prev {
	case model.BreakerOpen:
		if halfOpenGranted {
			return model.BreakerHalfOpen
		}
		return model.BreakerOpen
	case model.BreakerHalfOpen:
		return model.BreakerClosed
	default:
		return model.BreakerClosed
	}
}

// RecordUsage adds consumed units for a provider and returns the running
// total in the current window.
func (uc *QuotaUsecase) RecordUsage(ctx context.Context, provider string, n int64) (int64, error) {
	return uc.repo.IncrementUsage(ctx, provider, n)
}

// Evaluate recomputes one provider's quota row and steps its breaker.
func (uc *QuotaUsecase) Evaluate(ctx context.Context, p *conf.Provider) (*model.ProviderQuota, error) {
	usage, err := uc.repo.GetUsage(ctx, p.Name)
	if err != nil {
		// Redis failure: keep the last persisted percentage rather than
		// snapping to zero and silently closing an open breaker.
		uc.logger.Warnw("failed to read quota usage (degraded mode)",
			"provider", p.Name, "error", err)
		if prev, perr := uc.repo.GetQuota(ctx, p.Name); perr == nil {
			return prev, nil
		}
		return nil, err
	}

	pct := PercentageUsed(usage, p.QuotaLimit)

	prev := model.BreakerClosed
	if q, err := uc.repo.GetQuota(ctx, p.Name); err == nil {
		prev = q.Status
	}

	halfOpenGranted := false
	if prev == model.BreakerOpen && pct < uc.thresholds.RecoveryPercent {
		if marked, err := uc.repo.IsHalfOpen(ctx, p.Name); err == nil && marked {
			// The marker is already held: a previous evaluation won
			// arbitration but this row still reads open. Adopt half_open
			// instead of re-arbitrating.
			prev = model.BreakerHalfOpen
		} else {
			// SETNX arbitration: only one evaluation moves a breaker half-open.
			granted, err := uc.repo.TrySetHalfOpen(ctx, p.Name)
			if err != nil {
				uc.logger.Warnw("failed to arbitrate half-open (degraded mode)",
					"provider", p.Name, "error", err)
			}
			halfOpenGranted = granted
		}
	}

	next := NextBreakerState(prev, pct, uc.thresholds, halfOpenGranted)

	q := &model.ProviderQuota{
		Provider:       p.Name,
		PercentageUsed: pct,
		Status:         next,
		UpdatedAt:      time.Now(),
	}
	if err := uc.repo.UpsertQuota(ctx, q); err != nil {
		return nil, err
	}

	observability.QuotaUsedPercent.WithLabelValues(p.Name).Set(pct)
	observability.BreakerState.WithLabelValues(p.Name).Set(observability.BreakerGaugeValue(string(next)))

	if next != prev {
		uc.logger.Breaker("breaker transition",
			"provider", p.Name,
			"from", prev,
			"to", next,
			"percentage_used", pct)
	}
	if next == model.BreakerOpen && prev != model.BreakerOpen {
		event := &model.CircuitBrokenEvent{
			Provider:       p.Name,
			PercentageUsed: pct,
			BrokenAt:       time.Now(),
		}
		if err := uc.notifier.NotifyCircuitBroken(ctx, event); err != nil {
			uc.logger.Warnw("failed to notify breaker opened",
				"provider", p.Name, "error", err)
		}
	}
	if next == model.BreakerClosed && prev == model.BreakerHalfOpen {
		event := &model.CircuitRecoveredEvent{
			Provider: p.Name,
		}
		if err := uc.notifier.NotifyCircuitRecovered(ctx, event); err != nil {
			uc.logger.Warnw("failed to notify breaker recovered",
				"provider", p.Name, "error", err)
		}
	}

	if pct >= uc.thresholds.WarningPercent {
		uc.logger.Quota("provider nearing quota limit",
			"provider", p.Name,
			"percentage_used", pct,
			"state", next)
	}

	return q, nil
}

// EvaluateAll steps every enabled provider's quota and breaker. One provider
// failing does not stop the evaluation of the rest.
func (uc *QuotaUsecase) EvaluateAll(ctx context.Context) ([]*model.ProviderQuota, error) {
	quotas := make([]*model.ProviderQuota, 0, len(uc.providers))
	for _, p := range uc.providers {
		if !p.Enabled {
			continue
		}
		q, err := uc.Evaluate(ctx, p)
		if err != nil {
			uc.logger.Warnw("quota evaluation failed",
				"provider", p.Name, "error", err)
			continue
		}
		quotas = append(quotas, q)
	}
	return quotas, nil
}

// ListQuotas returns the persisted quota rows.
func (uc *QuotaUsecase) ListQuotas(ctx context.Context) ([]*model.ProviderQuota, error) {
	return uc.repo.ListQuotas(ctx)
}

// ResetBreaker force-closes a provider's breaker and clears its counters.
func (uc *QuotaUsecase) ResetBreaker(ctx context.Context, provider string) error {
	return uc.repo.ResetBreaker(ctx, provider)
}
