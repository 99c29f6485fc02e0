package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// RotationRepo implements biz.RotationRepo. The rotation order is the list
// of provider names, best candidate first, that the booking pipeline walks
// when a search or reservation needs a supplier.
type RotationRepo struct {
	cache  CacheClient
	logger *log.Helper
}

// NewRotationRepo creates a new rotation repository.
func NewRotationRepo(cache CacheClient, logger log.Logger) *RotationRepo {
	return &RotationRepo{
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// GetOrder returns the current rotation order. An absent key yields an
// empty order, not an error; the caller falls back to config order.
func (r *RotationRepo) GetOrder(ctx context.Context) ([]string, error) {
	var order []string
	err := r.cache.Get(ctx, CacheKeyRotation, &order)
	if errors.Is(err, ErrCacheNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rotation order: %w", err)
	}

	return order, nil
}

// SetOrder overwrites the rotation order. Writing the same order twice is a
// plain overwrite with no side effects.
func (r *RotationRepo) SetOrder(ctx context.Context, order []string) error {
	if err := r.cache.Set(ctx, CacheKeyRotation, order, TTLRotation); err != nil {
		return fmt.Errorf("failed to set rotation order: %w", err)
	}

	r.logger.Infow("rotation order updated", "order", order)
	return nil
}
