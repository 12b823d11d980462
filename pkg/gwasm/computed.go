package gwasm

import (
	"fmt"
	"os"
	"path/filepath"
)

// ComputedSubtask holds one subtask's results: an open read-only file for
// each declared output path, keyed by that path.
type ComputedSubtask struct {
	Name string
	Data map[string]*os.File
}

// ComputedTask is the result of a finished task. Subtasks appear in lexical
// name order, one per staged subtask. The files are open at offset zero;
// nothing is read eagerly, and the caller owns closing them (Close does all
// at once).
type ComputedTask struct {
	Name           string
	Bid            float64
	Timeout        Timeout
	SubtaskTimeout Timeout
	Subtasks       []ComputedSubtask
}

// CollectOutputs opens every output file the task declared. Compute calls
// this once the daemon reports the task finished; it is exported for
// callers that drive PollTaskStatus themselves.
//
// Any output that cannot be opened fails the whole collection with
// ErrOutputMissing, closing whatever was opened before the failure.
func CollectOutputs(task *Task) (*ComputedTask, error) {
	computed := &ComputedTask{
		Name:           task.Name,
		Bid:            task.Bid,
		Timeout:        task.Timeout,
		SubtaskTimeout: task.SubtaskTimeout,
	}

	for _, name := range task.SubtaskNames() {
		subtask := ComputedSubtask{
			Name: name,
			Data: make(map[string]*os.File),
		}

		for _, outPath := range task.Options.Subtasks[name].OutputFilePaths {
			f, err := os.Open(filepath.Join(task.Options.OutputDir, name, outPath))
			if err != nil {
				computed.Subtasks = append(computed.Subtasks, subtask)
				computed.Close()
				return nil, fmt.Errorf("%w: %s of %s: %w", ErrOutputMissing, outPath, name, err)
			}
			subtask.Data[outPath] = f
		}

		computed.Subtasks = append(computed.Subtasks, subtask)
	}

	return computed, nil
}

// Close closes every output file, returning the first error encountered.
func (t *ComputedTask) Close() error {
	var firstErr error
	for _, subtask := range t.Subtasks {
		for _, f := range subtask.Data {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
