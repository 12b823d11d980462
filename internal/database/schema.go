package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunSubmitted   string = "SUBMITTED"
	RunRunning     string = "RUNNING"
	RunFinished    string = "FINISHED"
	RunFailed      string = "FAILED"
	RunAborted     string = "ABORTED"
	RunTimedOut    string = "TIMEDOUT"
	RunInterrupted string = "INTERRUPTED"
)

// IsTerminalRunStatus reports whether a run can never leave status.
func IsTerminalRunStatus(status string) bool {
	switch status {
	case RunFinished, RunFailed, RunAborted, RunTimedOut, RunInterrupted:
		return true
	default:
		return false
	}
}

// TaskRun is one tracked submission of a task to a daemon.
type TaskRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	// TaskId is the daemon's identifier, empty until submission succeeds.
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
	Error     sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
