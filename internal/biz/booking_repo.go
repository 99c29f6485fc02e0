package biz

import (
	"context"
	"time"
)

// BookingRepo defines the booking maintenance interface.
// Implementation is in data layer (data.BookingRepo).
type BookingRepo interface {
	CountStuck(ctx context.Context, cutoff time.Time) (int64, error)
	ExpireStuck(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceRepo defines the database maintenance interface.
// Implementation is in data layer (data.MaintenanceRepo).
type MaintenanceRepo interface {
	OptimizeTables(ctx context.Context) ([]string, error)
}
