package biz

import (
	"context"

	"TripWatch/internal/model"
)

// ActionQueueRepo defines the queued-action store interface.
// Implementation is in data layer (data.ActionQueueRepo).
type ActionQueueRepo interface {
	Enqueue(ctx context.Context, a *model.EmittedAction) (int64, error)
	Get(ctx context.Context, id int64) (*model.EmittedAction, error)
	ListPending(ctx context.Context) ([]*model.EmittedAction, error)
	MarkExecuted(ctx context.Context, id int64) error
}
