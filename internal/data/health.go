package data

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderHealthRow is the GORM model for the provider_health table.
// Rows are upserted on every probe cycle, never deleted.
type ProviderHealthRow struct {
	Provider     string    `gorm:"primaryKey;column:provider;type:varchar(64)"`
	Status       string    `gorm:"column:status;type:varchar(16);not null"`
	ResponseTime int64     `gorm:"column:response_time;not null;default:0"`
	ErrorCount   int32     `gorm:"column:error_count;not null;default:0"`
	LastChecked  time.Time `gorm:"column:last_checked"`
}

// TableName specifies the table name for GORM
func (ProviderHealthRow) TableName() string {
	return "provider_health"
}

// probeErrorTTL is the rolling window for "recent" probe errors. A provider
// with no failures inside the window starts from zero again.
const probeErrorTTL = 10 * time.Minute

// ProviderHealthRepo implements biz.HealthRepo. Reads are served from a
// small expiring LRU so that dashboard polling and availability computation
// do not hit MySQL every few seconds.
type ProviderHealthRepo struct {
	db     *gorm.DB
	rdb    *redis.Client
	cache  *expirable.LRU[string, *model.ProviderHealth]
	logger *log.Helper
}

// NewProviderHealthRepo creates a new provider health repository.
func NewProviderHealthRepo(db *gorm.DB, rdb *redis.Client, logger log.Logger) *ProviderHealthRepo {
	return &ProviderHealthRepo{
		db:     db,
		rdb:    rdb,
		cache:  expirable.NewLRU[string, *model.ProviderHealth](128, nil, TTLHealth),
		logger: log.NewHelper(logger),
	}
}

// Upsert writes one probe outcome, overwriting any previous row for the
// provider.
func (r *ProviderHealthRepo) Upsert(ctx context.Context, h *model.ProviderHealth) error {
	row := &ProviderHealthRow{
		Provider:     h.Provider,
		Status:       string(h.Status),
		ResponseTime: h.ResponseTime,
		ErrorCount:   h.ErrorCount,
		LastChecked:  h.LastChecked,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert health for %s: %w", h.Provider, err)
	}

	r.cache.Remove(h.Provider)
	return nil
}

// Get returns the latest health row for one provider.
func (r *ProviderHealthRepo) Get(ctx context.Context, provider string) (*model.ProviderHealth, error) {
	if h, ok := r.cache.Get(provider); ok {
		return h, nil
	}

	var row ProviderHealthRow
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("provider health not found: %s", provider)
		}
		return nil, fmt.Errorf("failed to get health for %s: %w", provider, err)
	}

	h := rowToHealth(&row)
	r.cache.Add(provider, h)
	return h, nil
}

// List returns all health rows, ordered by provider name for stable output.
func (r *ProviderHealthRepo) List(ctx context.Context) ([]*model.ProviderHealth, error) {
	var rows []ProviderHealthRow
	if err := r.db.WithContext(ctx).Order("provider").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list provider health: %w", err)
	}

	healths := make([]*model.ProviderHealth, 0, len(rows))
	for i := range rows {
		healths = append(healths, rowToHealth(&rows[i]))
	}
	return healths, nil
}

// ResetDegraded marks every degraded provider healthy again and zeroes its
// error count. Returns the provider names that were reset. Running it when
// nothing is degraded resets nothing.
func (r *ProviderHealthRepo) ResetDegraded(ctx context.Context) ([]string, error) {
	var rows []ProviderHealthRow
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(model.HealthDegraded)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find degraded providers: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(rows))
	for i := range rows {
		names = append(names, rows[i].Provider)
	}

	err := r.db.WithContext(ctx).
		Model(&ProviderHealthRow{}).
		Where("provider IN ?", names).
		Updates(map[string]interface{}{
			"status":       string(model.HealthHealthy),
			"error_count":  0,
			"last_checked": time.Now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reset degraded providers: %w", err)
	}

	for _, name := range names {
		r.cache.Remove(name)
		// Clear the rolling error window too, otherwise the next probe
		// immediately re-degrades the provider.
		if r.rdb != nil {
			if err := r.rdb.Del(ctx, probeErrorKey(name)).Err(); err != nil {
				r.logger.Warnw("failed to clear probe error counter (degraded mode)",
					"provider", name, "error", err)
			}
		}
	}

	return names, nil
}

// IncrementProbeError bumps the rolling error counter for a provider and
// returns the new count. Redis failure degrades to count 0 with a warning.
func (r *ProviderHealthRepo) IncrementProbeError(ctx context.Context, provider string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := probeErrorKey(provider)
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment probe errors for %s: %w", provider, err)
	}

	if count == 1 {
		r.rdb.Expire(ctx, key, probeErrorTTL)
	}

	return int32(count), nil
}

// GetProbeErrors returns the current rolling error count for a provider.
func (r *ProviderHealthRepo) GetProbeErrors(ctx context.Context, provider string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	count, err := r.rdb.Get(ctx, probeErrorKey(provider)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get probe errors for %s: %w", provider, err)
	}

	return int32(count), nil
}

// ResetProbeErrors clears the rolling error counter after a successful probe.
func (r *ProviderHealthRepo) ResetProbeErrors(ctx context.Context, provider string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.rdb.Del(ctx, probeErrorKey(provider)).Err(); err != nil {
		return fmt.Errorf("failed to reset probe errors for %s: %w", provider, err)
	}
	return nil
}

func probeErrorKey(provider string) string {
	return fmt.Sprintf("probe_errors:%s", provider)
}

func rowToHealth(row *ProviderHealthRow) *model.ProviderHealth {
	return &model.ProviderHealth{
		Provider:     row.Provider,
		Status:       model.HealthStatus(row.Status),
		ResponseTime: row.ResponseTime,
		ErrorCount:   row.ErrorCount,
		LastChecked:  row.LastChecked,
	}
}
