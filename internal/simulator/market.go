// Package simulator provides a single-process stand-in for a gwasm requestor
// daemon. It speaks the daemon's REST protocol and fakes the compute market
// behind it: accepted tasks "run" on a wall clock instead of on providers, and
// their outputs are fabricated from their inputs. It exists so that the client
// and its CLI can be exercised end to end without a live network.
package simulator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gwasm-client/pkg/gwasm"

	"github.com/google/uuid"
)

// DefaultComputeDuration is how long a simulated task takes from creation to
// FINISHED unless the market is configured otherwise.
const DefaultComputeDuration = 10 * time.Second

var (
	ErrUnknownTask     = errors.New("unknown task")
	ErrTaskSettled     = errors.New("task already settled")
	ErrInvalidManifest = errors.New("invalid task manifest")
)

// Market tracks simulated tasks. There is no background goroutine: a task's
// state is derived from the clock whenever somebody asks, so a task whose
// compute window has passed becomes FINISHED at the moment of the query. This
// keeps the simulator deterministic under an injected clock.
type Market struct {
	mu       sync.Mutex
	network  string
	duration time.Duration
	clock    func() time.Time
	tasks    map[string]*simTask
}

type simTask struct {
	id        string
	manifest  *gwasm.Task
	created   time.Time
	aborted   bool
	abortedAt time.Time
	delivered bool
}

// TaskSnapshot is the market's view of one task at a single instant.
type TaskSnapshot struct {
	ID       string
	Name     string
	Status   gwasm.TaskStatus
	Progress float64
	Created  time.Time
}

func NewMarket(network string, computeDuration time.Duration) *Market {
	if computeDuration <= 0 {
		computeDuration = DefaultComputeDuration
	}
	return &Market{
		network:  network,
		duration: computeDuration,
		clock:    time.Now,
		tasks:    make(map[string]*simTask),
	}
}

func (m *Market) Network() string {
	return m.network
}

// CreateTask validates a task manifest and registers it with the market. The
// task starts running immediately; there is no negotiation phase.
func (m *Market) CreateTask(task *gwasm.Task) (string, error) {
	if task.Type != "wasm" {
		return "", fmt.Errorf("%w: unsupported task type %q", ErrInvalidManifest, task.Type)
	}
	if task.Bid <= 0 {
		return "", fmt.Errorf("%w: bid must be positive", ErrInvalidManifest)
	}
	if task.Timeout.Duration() <= 0 {
		return "", fmt.Errorf("%w: timeout is required", ErrInvalidManifest)
	}
	if len(task.Options.Subtasks) == 0 {
		return "", fmt.Errorf("%w: task has no subtasks", ErrInvalidManifest)
	}
	if task.Options.OutputDir == "" {
		return "", fmt.Errorf("%w: output_dir is required", ErrInvalidManifest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := &simTask{
		id:       uuid.New().String(),
		manifest: task,
		created:  m.clock(),
	}
	m.tasks[t.id] = t

	slog.Info("task accepted", "task_id", t.id, "name", task.Name, "bid", task.Bid, "subtasks", len(task.Options.Subtasks))
	return t.id, nil
}

// Status reports where a task currently stands.
func (m *Market) Status(taskID string) (TaskSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return TaskSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return m.evaluate(t), nil
}

// Abort stops a running task. Tasks that already finished, timed out, or were
// aborted cannot be aborted again.
func (m *Market) Abort(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	snap := m.evaluate(t)
	if snap.Status != gwasm.StatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrTaskSettled, taskID, snap.Status)
	}

	t.aborted = true
	t.abortedAt = m.clock()
	slog.Info("task aborted", "task_id", taskID)
	return nil
}

// List returns snapshots of every known task, newest first. A non-empty
// status keeps only tasks currently in that state; a positive limit caps the
// result.
func (m *Market) List(status string, limit int) []TaskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := make([]TaskSnapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		snap := m.evaluate(t)
		if status != "" && !strings.EqualFold(status, string(snap.Status)) {
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Created.Equal(snaps[j].Created) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].Created.After(snaps[j].Created)
	})

	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps
}

// evaluate derives a task's state from the clock. A task finishes once the
// compute duration has elapsed, unless its deadline lands first, in which
// case it times out with whatever progress it had at the deadline. Callers
// must hold mu.
func (m *Market) evaluate(t *simTask) TaskSnapshot {
	snap := TaskSnapshot{ID: t.id, Name: t.manifest.Name, Created: t.created}

	if t.aborted {
		snap.Status = gwasm.StatusAborted
		snap.Progress = m.progressAt(t, t.abortedAt)
		return snap
	}

	now := m.clock()
	finishAt := t.created.Add(m.duration)
	deadline := t.created.Add(t.manifest.Timeout.Duration())

	switch {
	case !finishAt.After(deadline) && !now.Before(finishAt):
		snap.Status = gwasm.StatusFinished
		snap.Progress = 1
		m.deliverOutputs(t)
	case finishAt.After(deadline) && !now.Before(deadline):
		snap.Status = gwasm.StatusTimedOut
		snap.Progress = m.progressAt(t, deadline)
	default:
		snap.Status = gwasm.StatusRunning
		snap.Progress = m.progressAt(t, now)
	}
	return snap
}

func (m *Market) progressAt(t *simTask, at time.Time) float64 {
	p := float64(at.Sub(t.created)) / float64(m.duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// deliverOutputs materializes a finished task's declared output files under
// its output_dir, once. The simulated computation just echoes each subtask's
// input, which is enough for callers to verify that their data made a round
// trip. Write failures are logged and skipped so a bad output path cannot
// wedge the market.
func (m *Market) deliverOutputs(t *simTask) {
	if t.delivered {
		return
	}
	t.delivered = true

	for _, name := range t.manifest.SubtaskNames() {
		sub := t.manifest.Options.Subtasks[name]
		data := m.subtaskResult(t.manifest, name, sub)

		dir := filepath.Join(t.manifest.Options.OutputDir, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("error creating subtask output dir", "task_id", t.id, "subtask", name, "error", err)
			continue
		}

		for _, rel := range sub.OutputFilePaths {
			path := filepath.Join(dir, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				slog.Error("error creating output parent dir", "task_id", t.id, "path", path, "error", err)
				continue
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				slog.Error("error writing subtask output", "task_id", t.id, "path", path, "error", err)
			}
		}
	}

	slog.Info("task outputs delivered", "task_id", t.id, "output_dir", t.manifest.Options.OutputDir)
}

// subtaskResult fakes the wasm run for one subtask by reading back its first
// input file. Tasks staged by the client's builder always have one.
func (m *Market) subtaskResult(task *gwasm.Task, name string, sub gwasm.Subtask) []byte {
	if len(sub.ExecArgs) > 0 {
		data, err := os.ReadFile(filepath.Join(task.Options.InputDir, name, sub.ExecArgs[0]))
		if err == nil {
			return data
		}
		slog.Warn("subtask input unreadable, delivering placeholder", "subtask", name, "error", err)
	}
	return []byte(fmt.Sprintf("simulated output for %s", name))
}
