package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskRun as of the first release, before the error column was added.
type TaskRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TaskId  string `gorm:"index"`
	Name    string
	Network string `gorm:"size:20;not null"`

	Bid            float64
	Timeout        string `gorm:"size:8"`
	SubtaskTimeout string `gorm:"size:8"`
	SubtaskCount   int    `gorm:"default:0"`

	Status   string  `gorm:"size:20;not null"`
	Progress float64 `gorm:"default:0"`

	Workspace string
	Manifest  datatypes.JSON `gorm:"type:jsonb"`

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&TaskRun{}); err != nil {
		return fmt.Errorf("error creating task_runs table: %w", err)
	}
	return nil
}
