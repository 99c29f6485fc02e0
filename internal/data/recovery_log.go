package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TripWatch/internal/model"
	"TripWatch/internal/observability"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// RecoveryLogRow is the GORM model for the system_recovery_logs table.
type RecoveryLogRow struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	CorrelationID string    `gorm:"column:correlation_id;type:varchar(64);index"`
	ServiceName   string    `gorm:"column:service_name;type:varchar(64);not null"`
	LogLevel      string    `gorm:"column:log_level;type:varchar(16);not null"`
	Message       string    `gorm:"column:message;type:varchar(512);not null"`
	Metadata      string    `gorm:"column:metadata;type:json"` // JSON string
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (RecoveryLogRow) TableName() string {
	return "system_recovery_logs"
}

// RecoveryLogRepoImpl implements biz.RecoveryLogRepo.
// Writes go through a buffered channel so that audit persistence is
// best-effort and never blocks or fails the action whose outcome it records.
type RecoveryLogRepoImpl struct {
	db      *gorm.DB
	logChan chan *RecoveryLogRow
	logger  *log.Helper
}

// NewRecoveryLogRepo creates a new recovery log repository with an async writer.
func NewRecoveryLogRepo(db *gorm.DB, logger log.Logger) *RecoveryLogRepoImpl {
	r := &RecoveryLogRepoImpl{
		db:      db,
		logChan: make(chan *RecoveryLogRow, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async persistence
	go r.start()

	return r
}

// start drains the channel into MySQL.
func (r *RecoveryLogRepoImpl) start() {
	for row := range r.logChan {
		ctx := context.Background()
		if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
			// Fallback channel: the process log is the only place left.
			r.logger.Errorw("failed to write recovery log entry",
				"correlation_id", row.CorrelationID,
				"message", row.Message,
				"error", err)
		} else {
			r.logger.Debugw("recovery log entry written",
				"correlation_id", row.CorrelationID)
		}
	}
}

// Append queues one log entry for persistence. It never returns an error to
// the caller; a full channel drops the entry with a warning rather than
// blocking the executor.
func (r *RecoveryLogRepoImpl) Append(ctx context.Context, entry *model.RecoveryLogEntry) {
	metadataJSON := ""
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			r.logger.Errorw("failed to marshal recovery log metadata",
				"correlation_id", entry.CorrelationID, "error", err)
		} else {
			metadataJSON = string(data)
		}
	}

	row := &RecoveryLogRow{
		CorrelationID: entry.CorrelationID,
		ServiceName:   entry.ServiceName,
		LogLevel:      entry.LogLevel,
		Message:       entry.Message,
		Metadata:      metadataJSON,
	}

	select {
	case r.logChan <- row:
		// Successfully queued
	default:
		observability.AuditEntriesDropped.Inc()
		r.logger.Warnw("recovery log channel full, dropping entry",
			"correlation_id", entry.CorrelationID,
			"message", entry.Message)
	}
}

// ListRecent returns the newest entries, newest first.
func (r *RecoveryLogRepoImpl) ListRecent(ctx context.Context, limit int) ([]*model.RecoveryLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []RecoveryLogRow
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list recovery log entries: %w", err)
	}

	entries := make([]*model.RecoveryLogEntry, 0, len(rows))
	for i := range rows {
		entry := &model.RecoveryLogEntry{
			CorrelationID: rows[i].CorrelationID,
			ServiceName:   rows[i].ServiceName,
			LogLevel:      rows[i].LogLevel,
			Message:       rows[i].Message,
			CreatedAt:     rows[i].CreatedAt,
		}
		if rows[i].Metadata != "" {
			if err := json.Unmarshal([]byte(rows[i].Metadata), &entry.Metadata); err != nil {
				r.logger.Warnw("failed to unmarshal recovery log metadata",
					"id", rows[i].ID, "error", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// PurgeOlderThan deletes entries past the retention cutoff and returns how
// many were removed. Used by the optimize_database action.
func (r *RecoveryLogRepoImpl) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&RecoveryLogRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge recovery log entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
