package biz

import (
	"context"
	"os"
	"testing"

	"TripWatch/internal/conf"
	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func defaultQuotaThresholds() QuotaThresholds {
	return QuotaThresholds{
		WarningPercent:  90,
		CriticalPercent: 95,
		RecoveryPercent: 80,
	}
}

func TestPercentageUsed(t *testing.T) {
	tests := []struct {
		name     string
		usage    int64
		limit    int64
		expected float64
	}{
		{"zero usage", 0, 1000, 0},
		{"half", 500, 1000, 50},
		{"at limit", 1000, 1000, 100},
		{"over limit clamps to 100", 1500, 1000, 100},
		{"no limit configured", 500, 0, 0},
		{"negative limit", 500, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PercentageUsed(tt.usage, tt.limit))
		})
	}
}

// At or above the critical bound the breaker is open, whatever it was before.
func TestNextBreakerState_CriticalAlwaysOpen(t *testing.T) {
	th := defaultQuotaThresholds()

	for _, prev := range []model.BreakerState{model.BreakerClosed, model.BreakerHalfOpen, model.BreakerOpen} {
		for _, pct := range []float64{95, 96, 99.9, 100} {
			got := NextBreakerState(prev, pct, th, true)
			assert.Equal(t, model.BreakerOpen, got,
				"prev=%s pct=%.1f must be open", prev, pct)
		}
	}
}

// Inside the recovery band the previous state holds, giving the breaker
// hysteresis instead of flapping.
func TestNextBreakerState_RecoveryBandHolds(t *testing.T) {
	th := defaultQuotaThresholds()

	for _, prev := range []model.BreakerState{model.BreakerClosed, model.BreakerHalfOpen, model.BreakerOpen} {
		for _, pct := range []float64{80, 85, 94.9} {
			got := NextBreakerState(prev, pct, th, true)
			assert.Equal(t, prev, got, "prev=%s pct=%.1f must hold", prev, pct)
		}
	}
}

// Below the recovery bound the breaker walks back one step at a time:
// open to half-open, half-open to closed.
func TestNextBreakerState_RecoveryPath(t *testing.T) {
	th := defaultQuotaThresholds()

	assert.Equal(t, model.BreakerHalfOpen, NextBreakerState(model.BreakerOpen, 50, th, true))
	assert.Equal(t, model.BreakerOpen, NextBreakerState(model.BreakerOpen, 50, th, false))
	assert.Equal(t, model.BreakerClosed, NextBreakerState(model.BreakerHalfOpen, 50, th, true))
	assert.Equal(t, model.BreakerClosed, NextBreakerState(model.BreakerClosed, 50, th, false))
}

func setupQuotaUsecase(repo QuotaRepo, notifier Notifier, providers []*conf.Provider) *QuotaUsecase {
	return NewQuotaUsecase(repo, nil, providers, notifier, log.NewStdLogger(os.Stdout))
}

// A provider at 96% of its allowance ends up with an open breaker and a
// broken-circuit notification.
func TestEvaluate_CriticalUsageOpensBreaker(t *testing.T) {
	repo := new(MockQuotaRepo)
	notifier := new(MockNotifier)

	provider := &conf.Provider{Name: "amadeus", QuotaLimit: 1000, Enabled: true}

	repo.On("GetUsage", mock.Anything, "amadeus").Return(int64(960), nil)
	repo.On("GetQuota", mock.Anything, "amadeus").Return(&model.ProviderQuota{
		Provider: "amadeus",
		Status:   model.BreakerClosed,
	}, nil)
	repo.On("UpsertQuota", mock.Anything, mock.MatchedBy(func(q *model.ProviderQuota) bool {
		return q.Provider == "amadeus" && q.Status == model.BreakerOpen && q.PercentageUsed == 96
	})).Return(nil)
	notifier.On("NotifyCircuitBroken", mock.Anything, mock.Anything).Return(nil)

	uc := setupQuotaUsecase(repo, notifier, []*conf.Provider{provider})

	q, err := uc.Evaluate(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, model.BreakerOpen, q.Status)
	assert.Equal(t, 96.0, q.PercentageUsed)
	notifier.AssertNumberOfCalls(t, "NotifyCircuitBroken", 1)
}

// An open breaker with usage back under the recovery bound goes half-open
// only when the SETNX arbitration grants it.
func TestEvaluate_OpenBreakerGoesHalfOpen(t *testing.T) {
	repo := new(MockQuotaRepo)
	notifier := new(MockNotifier)

	provider := &conf.Provider{Name: "hotelbeds", QuotaLimit: 1000, Enabled: true}

	repo.On("GetUsage", mock.Anything, "hotelbeds").Return(int64(500), nil)
	repo.On("GetQuota", mock.Anything, "hotelbeds").Return(&model.ProviderQuota{
		Provider: "hotelbeds",
		Status:   model.BreakerOpen,
	}, nil)
	repo.On("IsHalfOpen", mock.Anything, "hotelbeds").Return(false, nil)
	repo.On("TrySetHalfOpen", mock.Anything, "hotelbeds").Return(true, nil)
	repo.On("UpsertQuota", mock.Anything, mock.Anything).Return(nil)

	uc := setupQuotaUsecase(repo, notifier, []*conf.Provider{provider})

	q, err := uc.Evaluate(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, model.BreakerHalfOpen, q.Status)
	repo.AssertCalled(t, "TrySetHalfOpen", mock.Anything, "hotelbeds")
}

// When the half-open marker is already held, the breaker adopts half-open
// from the marker instead of re-arbitrating.
func TestEvaluate_ExistingMarkerSkipsArbitration(t *testing.T) {
	repo := new(MockQuotaRepo)
	notifier := new(MockNotifier)

	provider := &conf.Provider{Name: "hotelbeds", QuotaLimit: 1000, Enabled: true}

	repo.On("GetUsage", mock.Anything, "hotelbeds").Return(int64(500), nil)
	repo.On("GetQuota", mock.Anything, "hotelbeds").Return(&model.ProviderQuota{
		Provider: "hotelbeds",
		Status:   model.BreakerOpen,
	}, nil)
	repo.On("IsHalfOpen", mock.Anything, "hotelbeds").Return(true, nil)
	repo.On("UpsertQuota", mock.Anything, mock.Anything).Return(nil)
	notifier.On("NotifyCircuitRecovered", mock.Anything, mock.Anything).Return(nil)

	uc := setupQuotaUsecase(repo, notifier, []*conf.Provider{provider})

	q, err := uc.Evaluate(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, model.BreakerClosed, q.Status)
	repo.AssertNotCalled(t, "TrySetHalfOpen", mock.Anything, "hotelbeds")
}

// A half-open breaker with healthy usage closes and announces recovery.
func TestEvaluate_HalfOpenCloses(t *testing.T) {
	repo := new(MockQuotaRepo)
	notifier := new(MockNotifier)

	provider := &conf.Provider{Name: "hotelbeds", QuotaLimit: 1000, Enabled: true}

	repo.On("GetUsage", mock.Anything, "hotelbeds").Return(int64(100), nil)
	repo.On("GetQuota", mock.Anything, "hotelbeds").Return(&model.ProviderQuota{
		Provider: "hotelbeds",
		Status:   model.BreakerHalfOpen,
	}, nil)
	repo.On("UpsertQuota", mock.Anything, mock.Anything).Return(nil)
	notifier.On("NotifyCircuitRecovered", mock.Anything, mock.Anything).Return(nil)

	uc := setupQuotaUsecase(repo, notifier, []*conf.Provider{provider})

	q, err := uc.Evaluate(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, model.BreakerClosed, q.Status)
	notifier.AssertNumberOfCalls(t, "NotifyCircuitRecovered", 1)
}

// Redis being down keeps the last persisted row instead of snapping an open
// breaker shut on a phantom zero reading.
func TestEvaluate_UsageReadFailureKeepsLastState(t *testing.T) {
	repo := new(MockQuotaRepo)
	notifier := new(MockNotifier)

	provider := &conf.Provider{Name: "amadeus", QuotaLimit: 1000, Enabled: true}

	last := &model.ProviderQuota{
		Provider:       "amadeus",
		PercentageUsed: 97,
		Status:         model.BreakerOpen,
	}
	repo.On("GetUsage", mock.Anything, "amadeus").Return(int64(0), assert.AnError)
	repo.On("GetQuota", mock.Anything, "amadeus").Return(last, nil)

	uc := setupQuotaUsecase(repo, notifier, []*conf.Provider{provider})

	q, err := uc.Evaluate(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, model.BreakerOpen, q.Status)
	assert.Equal(t, 97.0, q.PercentageUsed)
	repo.AssertNotCalled(t, "UpsertQuota", mock.Anything, mock.Anything)
}

// One provider failing does not stop evaluation of the rest.
func TestEvaluateAll_ProviderIsolation(t *testing.T) {
	repo := new(MockQuotaRepo)
	notifier := new(MockNotifier)

	ok := &conf.Provider{Name: "amadeus", QuotaLimit: 1000, Enabled: true}
	bad := &conf.Provider{Name: "sabre", QuotaLimit: 1000, Enabled: true}

	repo.On("GetUsage", mock.Anything, "amadeus").Return(int64(100), nil)
	repo.On("GetQuota", mock.Anything, "amadeus").Return(nil, gorm.ErrRecordNotFound)
	repo.On("UpsertQuota", mock.Anything, mock.Anything).Return(nil)

	repo.On("GetUsage", mock.Anything, "sabre").Return(int64(0), assert.AnError)
	repo.On("GetQuota", mock.Anything, "sabre").Return(nil, gorm.ErrRecordNotFound)

	uc := setupQuotaUsecase(repo, notifier, []*conf.Provider{ok, bad})

	quotas, err := uc.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, quotas, 1)
	assert.Equal(t, "amadeus", quotas[0].Provider)
}

// ResetBreaker passes straight through to the repository.
func TestResetBreaker(t *testing.T) {
	repo := new(MockQuotaRepo)
	repo.On("ResetBreaker", mock.Anything, "amadeus").Return(nil)

	uc := setupQuotaUsecase(repo, new(MockNotifier), nil)
	err := uc.ResetBreaker(context.Background(), "amadeus")
	assert.NoError(t, err)
	repo.AssertCalled(t, "ResetBreaker", mock.Anything, "amadeus")
}
