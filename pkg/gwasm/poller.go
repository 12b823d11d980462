package gwasm

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// DefaultPollInterval is how long PollTaskStatus waits between status
// queries when the caller does not choose an interval.
const DefaultPollInterval = 2 * time.Second

// PollTaskStatus returns a lazy sequence of task snapshots. Nothing is
// queried until the sequence is iterated; each step issues one GetTask and
// then sleeps interval before the next, so a slow daemon stretches the
// effective period rather than stacking requests. An interval of zero or
// less means DefaultPollInterval.
//
// The sequence ends without yielding when the daemon reports the task
// finished. It yields an error and ends when the task reaches a failed
// terminal state (ErrTaskAborted, ErrTaskTimedOut), when the daemon's
// answer is unusable (ErrEmptyStatus, ErrMissingProgress), when a query
// fails, or when ctx is cancelled between steps.
func PollTaskStatus(ctx context.Context, endpoint Endpoint, taskID string, interval time.Duration) iter.Seq2[TaskInfo, error] {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return func(yield func(TaskInfo, error) bool) {
		for {
			info, err := endpoint.GetTask(ctx, taskID)
			if err != nil {
				yield(TaskInfo{}, fmt.Errorf("error querying task %s: %w", taskID, err))
				return
			}
			if info == nil {
				yield(TaskInfo{}, fmt.Errorf("task %s: %w", taskID, ErrEmptyStatus))
				return
			}

			switch info.Status {
			case StatusFinished:
				return
			case StatusAborted:
				yield(TaskInfo{}, fmt.Errorf("task %s: %w", taskID, ErrTaskAborted))
				return
			case StatusTimedOut:
				yield(TaskInfo{}, fmt.Errorf("task %s: %w", taskID, ErrTaskTimedOut))
				return
			}

			if info.Progress == nil {
				yield(TaskInfo{}, fmt.Errorf("task %s reported %s: %w", taskID, info.Status, ErrMissingProgress))
				return
			}

			if !yield(*info, nil) {
				return
			}

			select {
			case <-time.After(interval):
			case <-ctx.Done():
				yield(TaskInfo{}, ctx.Err())
				return
			}
		}
	}
}
