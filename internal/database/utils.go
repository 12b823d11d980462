package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateTaskRunStatus(ctx context.Context, db *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if IsTerminalRunStatus(status) {
		updates["completion_time"] = time.Now().UTC()
	}

	return db.WithContext(ctx).Model(&TaskRun{Id: runId}).Updates(updates).Error
}

func UpdateTaskRunProgress(ctx context.Context, db *gorm.DB, runId uuid.UUID, progress float64) error {
	return db.WithContext(ctx).Model(&TaskRun{Id: runId}).Update("progress", progress).Error
}

// SetTaskRunTaskId records the daemon's identifier once submission succeeds.
func SetTaskRunTaskId(ctx context.Context, db *gorm.DB, runId uuid.UUID, taskId string) error {
	return db.WithContext(ctx).Model(&TaskRun{Id: runId}).Update("task_id", taskId).Error
}

func SetTaskRunError(ctx context.Context, db *gorm.DB, runId uuid.UUID, message string) error {
	return db.WithContext(ctx).Model(&TaskRun{Id: runId}).
		Update("error", sql.NullString{String: message, Valid: true}).Error
}
