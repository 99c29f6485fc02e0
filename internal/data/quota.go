package data

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderQuotaRow is the GORM model for the provider_quotas table.
type ProviderQuotaRow struct {
	Provider       string    `gorm:"primaryKey;column:provider;type:varchar(64)"`
	PercentageUsed float64   `gorm:"column:percentage_used;not null;default:0"`
	Status         string    `gorm:"column:status;type:varchar(16);not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ProviderQuotaRow) TableName() string {
	return "provider_quotas"
}

// usageWindow is the quota tracking window. Supplier allowances reset
// hourly, so consumption counters are bucketed per hour.
const usageWindow = time.Hour

// halfOpenTTL bounds how long a breaker may sit half-open before the marker
// expires and the next evaluation decides again.
const halfOpenTTL = 5 * time.Minute

// QuotaRepo implements biz.QuotaRepo. Usage counters and breaker probe
// bookkeeping live in Redis; the authoritative quota row lives in MySQL.
type QuotaRepo struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *log.Helper
}

// NewQuotaRepo creates a new quota repository.
func NewQuotaRepo(db *gorm.DB, rdb *redis.Client, logger log.Logger) *QuotaRepo {
	return &QuotaRepo{
		db:     db,
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// IncrementUsage adds n consumed units to the provider's current window
// counter and returns the new total.
func (r *QuotaRepo) IncrementUsage(ctx context.Context, provider string, n int64) (int64, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := usageKey(provider)
	count, err := r.rdb.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage for %s: %w", provider, err)
	}

	if count == n {
		// First write in this window sets the expiry.
		r.rdb.Expire(ctx, key, usageWindow)
	}

	return count, nil
}

// GetUsage returns the consumed units in the provider's current window.
func (r *QuotaRepo) GetUsage(ctx context.Context, provider string) (int64, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	count, err := r.rdb.Get(ctx, usageKey(provider)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage for %s: %w", provider, err)
	}

	return count, nil
}

// UpsertQuota writes the evaluated quota row for a provider.
func (r *QuotaRepo) UpsertQuota(ctx context.Context, q *model.ProviderQuota) error {
	row := &ProviderQuotaRow{
		Provider:       q.Provider,
		PercentageUsed: q.PercentageUsed,
		Status:         string(q.Status),
		UpdatedAt:      q.UpdatedAt,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert quota for %s: %w", q.Provider, err)
	}

	return nil
}

// GetQuota returns the persisted quota row for one provider.
func (r *QuotaRepo) GetQuota(ctx context.Context, provider string) (*model.ProviderQuota, error) {
	var row ProviderQuotaRow
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("provider quota not found: %s", provider)
		}
		return nil, fmt.Errorf("failed to get quota for %s: %w", provider, err)
	}

	return rowToQuota(&row), nil
}

// ListQuotas returns all quota rows, ordered by provider name.
func (r *QuotaRepo) ListQuotas(ctx context.Context) ([]*model.ProviderQuota, error) {
	var rows []ProviderQuotaRow
	if err := r.db.WithContext(ctx).Order("provider").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list provider quotas: %w", err)
	}

	quotas := make([]*model.ProviderQuota, 0, len(rows))
	for i := range rows {
		quotas = append(quotas, rowToQuota(&rows[i]))
	}
	return quotas, nil
}

// TrySetHalfOpen sets the half-open marker atomically via SETNX.
// Returns false when the marker already exists, so only one evaluation at a
// time moves a breaker to half-open.
func (r *QuotaRepo) TrySetHalfOpen(ctx context.Context, provider string) (bool, error) {
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	ok, err := r.rdb.SetNX(ctx, halfOpenKey(provider), "1", halfOpenTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set half-open marker for %s: %w", provider, err)
	}

	if ok {
		r.logger.Debugw("half-open marker set", "provider", provider, "ttl", halfOpenTTL)
	}

	return ok, nil
}

// IsHalfOpen reports whether the half-open marker is present.
// Redis failure degrades to "not half-open" with a warning.
func (r *QuotaRepo) IsHalfOpen(ctx context.Context, provider string) (bool, error) {
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	exists, err := r.rdb.Exists(ctx, halfOpenKey(provider)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check half-open marker for %s: %w", provider, err)
	}

	return exists > 0, nil
}

// ResetBreaker clears all breaker bookkeeping and marks the quota row
// closed. This is the explicit-reset trigger of the breaker state machine.
func (r *QuotaRepo) ResetBreaker(ctx context.Context, provider string) error {
	err := r.db.WithContext(ctx).
		Model(&ProviderQuotaRow{}).
		Where("provider = ?", provider).
		Updates(map[string]interface{}{
			"status":     string(model.BreakerClosed),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset breaker for %s: %w", provider, err)
	}

	if r.rdb != nil {
		keys := []string{halfOpenKey(provider), usageKey(provider)}
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			r.logger.Warnw("failed to delete breaker keys from Redis (degraded mode)",
				"provider", provider, "error", err)
			// Don't fail the operation if Redis is down
		}
	}

	r.logger.Infow("circuit breaker reset", "provider", provider)
	return nil
}

func usageKey(provider string) string {
	return fmt.Sprintf("usage:%s:%s", provider, time.Now().UTC().Format("2006010215"))
}

func halfOpenKey(provider string) string {
	return fmt.Sprintf("breaker:%s:half_open", provider)
}

func rowToQuota(row *ProviderQuotaRow) *model.ProviderQuota {
	return &model.ProviderQuota{
		Provider:       row.Provider,
		PercentageUsed: row.PercentageUsed,
		Status:         model.BreakerState(row.Status),
		UpdatedAt:      row.UpdatedAt,
	}
}
