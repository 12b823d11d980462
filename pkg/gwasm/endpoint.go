package gwasm

import "context"

// Endpoint is the client's view of a marketplace daemon. The rpc package
// provides the HTTP implementation; tests substitute their own.
//
// Implementations must be safe for concurrent use: an abort triggered by an
// interrupt can overlap an in-flight status query.
type Endpoint interface {
	// CreateTask submits a staged task and returns the daemon's identifier
	// for it.
	CreateTask(ctx context.Context, task *Task) (string, error)

	// GetTask reports the task's current snapshot. A nil info with a nil
	// error means the daemon has no record of the task.
	GetTask(ctx context.Context, taskID string) (*TaskInfo, error)

	// AbortTask asks the daemon to stop the task. Aborting a task that
	// already reached a terminal state is an error.
	AbortTask(ctx context.Context, taskID string) error
}
