package gwasm

import "strings"

// TaskStatus is the daemon's view of where a task is in its lifecycle.
type TaskStatus string

const (
	StatusRunning  TaskStatus = "RUNNING"
	StatusFinished TaskStatus = "FINISHED"
	StatusAborted  TaskStatus = "ABORTED"
	StatusTimedOut TaskStatus = "TIMEDOUT"

	// StatusOther covers daemon states this client has no handling for,
	// e.g. queueing or payment stages introduced by newer daemons. They are
	// treated like StatusRunning.
	StatusOther TaskStatus = "OTHER"
)

// ParseTaskStatus maps a wire status onto the statuses the client tracks.
// Unrecognized values become StatusOther rather than an error so that newer
// daemons remain pollable.
func ParseTaskStatus(s string) TaskStatus {
	switch status := TaskStatus(strings.ToUpper(s)); status {
	case StatusRunning, StatusFinished, StatusAborted, StatusTimedOut:
		return status
	default:
		return StatusOther
	}
}

// TaskInfo is a point-in-time snapshot of a remote task. Each poll produces
// a fresh value; snapshots are never patched in place. Progress is nil
// until the daemon has computed one.
type TaskInfo struct {
	Status   TaskStatus
	Progress *float64
}
