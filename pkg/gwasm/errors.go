package gwasm

import "errors"

var (
	// Terminal states reported by the daemon for a task that did not run to
	// completion.
	ErrTaskAborted  = errors.New("task aborted on the remote node")
	ErrTaskTimedOut = errors.New("task timed out on the remote node")

	// Protocol violations: the daemon answered, but not with anything the
	// client can act on.
	ErrEmptyStatus     = errors.New("daemon has no record of the task")
	ErrMissingProgress = errors.New("daemon reported a live task without progress")

	// ErrInterrupted reports that the user cancelled the computation. It is
	// a deliberate stop, not a failure of the task itself.
	ErrInterrupted = errors.New("computation interrupted")

	// ErrAbortFailed reports that the abort issued after an interrupt did
	// not reach the daemon; the remote task may still be running.
	ErrAbortFailed = errors.New("failed to abort task")

	ErrObserverFailed = errors.New("progress observer failed")
	ErrOutputMissing  = errors.New("task output missing")

	ErrZeroTimeout = errors.New("timeout must be greater than zero")
)
