package biz

import (
	"context"

	"TripWatch/internal/model"
)

// HealthRepo defines the provider health repository interface.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.ProviderHealthRepo).
type HealthRepo interface {
	Upsert(ctx context.Context, h *model.ProviderHealth) error
	Get(ctx context.Context, provider string) (*model.ProviderHealth, error)
	List(ctx context.Context) ([]*model.ProviderHealth, error)
	ResetDegraded(ctx context.Context) ([]string, error)

	// Rolling probe error counters, windowed in Redis.
	IncrementProbeError(ctx context.Context, provider string) (int32, error)
	GetProbeErrors(ctx context.Context, provider string) (int32, error)
	ResetProbeErrors(ctx context.Context, provider string) error
}
