package biz

import (
	"context"
	"time"

	"TripWatch/internal/model"
)

// RecoveryLogRepo defines the append-only audit log interface.
// Implementation is in data layer (data.RecoveryLogRepoImpl).
// Append carries no error return on purpose: audit persistence is
// best-effort and must never fail the action whose outcome it records.
type RecoveryLogRepo interface {
	Append(ctx context.Context, entry *model.RecoveryLogEntry)
	ListRecent(ctx context.Context, limit int) ([]*model.RecoveryLogEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
