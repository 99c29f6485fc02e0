package data

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/model"

	pkgerrors "TripWatch/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// BookingRow is the GORM model for the bookings table. TripWatch only ever
// touches the status column; everything else belongs to the booking service.
type BookingRow struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Reference string    `gorm:"column:reference;type:varchar(64)"`
	Provider  string    `gorm:"column:provider;type:varchar(64);index"`
	Status    string    `gorm:"column:status;type:varchar(16);not null;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (BookingRow) TableName() string {
	return "bookings"
}

// BookingRepo implements biz.BookingRepo.
type BookingRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewBookingRepo creates a new booking repository.
func NewBookingRepo(db *gorm.DB, logger log.Logger) *BookingRepo {
	return &BookingRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// CountStuck counts bookings still pending past the cutoff.
func (r *BookingRepo) CountStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&BookingRow{}).
		Where("status = ? AND created_at < ?", model.BookingPending, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count stuck bookings: %w", err)
	}
	return count, nil
}

// ExpireStuck transitions bookings stuck in pending past the cutoff to
// expired and returns how many rows changed. The WHERE clause makes the
// operation idempotent: a second run finds nothing left in pending.
// Deadlocks with the booking service's own writers are retried once.
func (r *BookingRepo) ExpireStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	const maxAttempts = 2

	var affected int64
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result := r.db.WithContext(ctx).
			Model(&BookingRow{}).
			Where("status = ? AND created_at < ?", model.BookingPending, cutoff).
			Updates(map[string]interface{}{
				"status":     model.BookingExpired,
				"updated_at": time.Now(),
			})

		if result.Error == nil {
			affected = result.RowsAffected
			break
		}

		dbErr := pkgerrors.ClassifyDBError(result.Error)
		if !dbErr.Retryable() || attempt == maxAttempts {
			return 0, fmt.Errorf("failed to expire stuck bookings: %w", result.Error)
		}

		r.logger.Warnw("retrying stuck booking sweep after retryable error",
			"attempt", attempt, "error", result.Error)
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}

	if affected > 0 {
		r.logger.Infow("expired stuck bookings", "count", affected, "cutoff", cutoff)
	}

	return affected, nil
}
