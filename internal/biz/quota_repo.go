package biz

import (
	"context"

	"TripWatch/internal/model"
)

// QuotaRepo defines the provider quota repository interface.
// Implementation is in data layer (data.QuotaRepo).
type QuotaRepo interface {
	IncrementUsage(ctx context.Context, provider string, n int64) (int64, error)
	GetUsage(ctx context.Context, provider string) (int64, error)
	UpsertQuota(ctx context.Context, q *model.ProviderQuota) error
	GetQuota(ctx context.Context, provider string) (*model.ProviderQuota, error)
	ListQuotas(ctx context.Context) ([]*model.ProviderQuota, error)

	// Breaker bookkeeping.
	TrySetHalfOpen(ctx context.Context, provider string) (bool, error)
	IsHalfOpen(ctx context.Context, provider string) (bool, error)
	ResetBreaker(ctx context.Context, provider string) error
}
