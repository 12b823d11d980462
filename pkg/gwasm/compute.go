// Package gwasm stages batch WebAssembly tasks, submits them to a
// marketplace daemon, and tracks them to completion.
//
// The usual flow is: stage inputs with TaskBuilder, connect to a daemon
// (the rpc package provides the Endpoint implementation), then call
// Compute. Compute polls the daemon, relays progress to a
// ProgressObserver, and opens the declared output files once the daemon
// reports the task finished.
package gwasm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const abortTimeout = 30 * time.Second

// Compute submits a staged task and tracks it until the daemon reports a
// terminal state, delivering progress to observer along the way. On
// success it returns the task's outputs, opened in subtask order.
//
// Cancelling ctx is the user interrupt: Compute stops tracking, asks the
// daemon to abort the task, and returns ErrInterrupted, or ErrAbortFailed
// when the abort itself fails. The interrupt never cuts off an in-flight
// status query; the tracking loop lets it complete, discards the result,
// and exits at its next stop check.
//
// The observer's stop hook is delivered only when the task runs to
// completion; error and interrupt exits skip it.
func Compute(ctx context.Context, endpoint Endpoint, task *Task, observer ProgressObserver) (*ComputedTask, error) {
	return ComputeWithInterval(ctx, endpoint, task, observer, DefaultPollInterval)
}

// ComputeWithInterval is Compute with a custom poll interval.
func ComputeWithInterval(ctx context.Context, endpoint Endpoint, task *Task, observer ProgressObserver, interval time.Duration) (*ComputedTask, error) {
	taskID, err := endpoint.CreateTask(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return nil, fmt.Errorf("error creating task: %w", err)
	}

	slog.Info("task created", "task_id", taskID, "name", task.Name, "subtasks", len(task.Options.Subtasks))

	notifier := newProgressNotifier(observer)
	defer notifier.Close()

	// Tracking polls on its own context so the interrupt cannot cancel a
	// query mid-flight; closing stop makes the loop exit on its own.
	stop := make(chan struct{})
	tracked := make(chan error, 1)
	go func() {
		tracked <- trackTask(stop, endpoint, taskID, interval, notifier)
	}()

	select {
	case err := <-tracked:
		close(stop)
		if err != nil {
			return nil, err
		}
		if err := notifier.Finish(); err != nil {
			return nil, err
		}
		slog.Info("task finished", "task_id", taskID)
		return CollectOutputs(task)

	case <-ctx.Done():
		close(stop)
		slog.Info("interrupt received, aborting task", "task_id", taskID)

		// The abort must outlive the interrupt that triggered it.
		abortCtx, cancel := context.WithTimeout(context.Background(), abortTimeout)
		defer cancel()
		if err := endpoint.AbortTask(abortCtx, taskID); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrAbortFailed, taskID, err)
		}
		return nil, fmt.Errorf("task %s: %w", taskID, ErrInterrupted)
	}
}

func trackTask(stop <-chan struct{}, endpoint Endpoint, taskID string, interval time.Duration, notifier *progressNotifier) error {
	for info, err := range PollTaskStatus(context.Background(), endpoint, taskID, interval) {
		if err != nil {
			return err
		}

		select {
		case <-stop:
			return nil
		default:
		}

		if err := notifier.Notify(*info.Progress); err != nil {
			return err
		}
	}
	return nil
}
