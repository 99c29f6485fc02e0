package data

import (
	"context"
	"fmt"
	"time"

	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// EmittedActionRow is the GORM model for the recovery_actions table.
// Non-automated actions land here and wait for a human to trigger them.
type EmittedActionRow struct {
	ID         int64      `gorm:"primaryKey;column:id"`
	Action     string     `gorm:"column:action;type:varchar(64);not null"`
	Provider   string     `gorm:"column:provider;type:varchar(64)"`
	Severity   string     `gorm:"column:severity;type:varchar(16);not null"`
	Automated  bool       `gorm:"column:automated;not null"`
	Reason     string     `gorm:"column:reason;type:varchar(255)"`
	Executed   bool       `gorm:"column:executed;not null;default:false;index"`
	ExecutedAt *time.Time `gorm:"column:executed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (EmittedActionRow) TableName() string {
	return "recovery_actions"
}

// ActionQueueRepo implements biz.ActionQueueRepo.
type ActionQueueRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewActionQueueRepo creates a new action queue repository.
func NewActionQueueRepo(db *gorm.DB, logger log.Logger) *ActionQueueRepo {
	return &ActionQueueRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Enqueue persists an emitted action and returns its id.
func (r *ActionQueueRepo) Enqueue(ctx context.Context, a *model.EmittedAction) (int64, error) {
	row := &EmittedActionRow{
		Action:    string(a.Action),
		Provider:  a.Provider,
		Severity:  string(a.Severity),
		Automated: a.Automated,
		Reason:    a.Reason,
		Executed:  a.Executed,
	}
	if a.Executed {
		now := time.Now()
		row.ExecutedAt = &now
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("failed to enqueue recovery action: %w", err)
	}

	return row.ID, nil
}

// Get returns one emitted action by id.
func (r *ActionQueueRepo) Get(ctx context.Context, id int64) (*model.EmittedAction, error) {
	var row EmittedActionRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("recovery action not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get recovery action %d: %w", id, err)
	}

	return rowToAction(&row), nil
}

// ListPending returns emitted actions not yet executed, oldest first.
func (r *ActionQueueRepo) ListPending(ctx context.Context) ([]*model.EmittedAction, error) {
	var rows []EmittedActionRow
	if err := r.db.WithContext(ctx).
		Where("executed = ?", false).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending recovery actions: %w", err)
	}

	actions := make([]*model.EmittedAction, 0, len(rows))
	for i := range rows {
		actions = append(actions, rowToAction(&rows[i]))
	}
	return actions, nil
}

// MarkExecuted flags a queued action as done. Marking an already-executed
// action again is harmless.
func (r *ActionQueueRepo) MarkExecuted(ctx context.Context, id int64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&EmittedActionRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"executed":    true,
			"executed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark recovery action %d executed: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("recovery action not found: %d", id)
	}

	return nil
}

func rowToAction(row *EmittedActionRow) *model.EmittedAction {
	return &model.EmittedAction{
		ID:        row.ID,
		Action:    model.ActionName(row.Action),
		Provider:  row.Provider,
		Severity:  model.Severity(row.Severity),
		Automated: row.Automated,
		Reason:    row.Reason,
		Executed:  row.Executed,
		CreatedAt: row.CreatedAt,
	}
}
