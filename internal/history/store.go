// Package history records task runs in a local sqlite database and answers
// filter queries over them.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gwasm-client/internal/database"
	"gwasm-client/pkg/gwasm"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

// NewStore wraps an already opened and migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating and migrating if needed) the history database at
// path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating history dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error opening history database: %w", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("error migrating history database: %w", err)
	}

	return &Store{db: db}, nil
}

// StartRun records a task that is about to be submitted and returns the run
// row to update as it proceeds.
func (s *Store) StartRun(ctx context.Context, task *gwasm.Task, network, workspace string) (*database.TaskRun, error) {
	manifest, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("error marshalling task manifest: %w", err)
	}

	run := &database.TaskRun{
		Id:             uuid.New(),
		Name:           task.Name,
		Network:        network,
		Bid:            task.Bid,
		Timeout:        task.Timeout.String(),
		SubtaskTimeout: task.SubtaskTimeout.String(),
		SubtaskCount:   len(task.Options.Subtasks),
		Status:         database.RunSubmitted,
		Workspace:      workspace,
		Manifest:       manifest,
		CreationTime:   time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("error recording task run: %w", err)
	}
	return run, nil
}

// RecordSubmitted stores the daemon's task id and moves the run to RUNNING.
func (s *Store) RecordSubmitted(ctx context.Context, runId uuid.UUID, taskId string) error {
	if err := database.SetTaskRunTaskId(ctx, s.db, runId, taskId); err != nil {
		return fmt.Errorf("error recording task id: %w", err)
	}
	if err := database.UpdateTaskRunStatus(ctx, s.db, runId, database.RunRunning); err != nil {
		return fmt.Errorf("error updating run status: %w", err)
	}
	return nil
}

// FinishRun stores the run's terminal status, and the failure message when
// there is one.
func (s *Store) FinishRun(ctx context.Context, runId uuid.UUID, status, message string) error {
	if message != "" {
		if err := database.SetTaskRunError(ctx, s.db, runId, message); err != nil {
			return fmt.Errorf("error recording run failure: %w", err)
		}
	}
	if err := database.UpdateTaskRunStatus(ctx, s.db, runId, status); err != nil {
		return fmt.Errorf("error updating run status: %w", err)
	}
	return nil
}

// GetRun fetches a single run.
func (s *Store) GetRun(ctx context.Context, runId uuid.UUID) (*database.TaskRun, error) {
	var run database.TaskRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		return nil, fmt.Errorf("error fetching task run: %w", err)
	}
	return &run, nil
}

// List returns runs matching filter, newest first, at most limit of them. A
// limit of zero or less means no cap.
func (s *Store) List(ctx context.Context, filter Filter, limit int) ([]database.TaskRun, error) {
	var runs []database.TaskRun
	if err := s.db.WithContext(ctx).Order("creation_time DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing task runs: %w", err)
	}

	if filter == nil {
		filter = MatchAll{}
	}

	matched := make([]database.TaskRun, 0, len(runs))
	for _, run := range runs {
		if !filter.Matches(&run) {
			continue
		}
		matched = append(matched, run)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// Recorder mirrors a run's progress into the store while forwarding every
// hook to next. Database failures are logged, not raised: losing a history
// row should never kill a live computation.
type Recorder struct {
	store *Store
	runId uuid.UUID
	next  gwasm.ProgressObserver
}

var _ gwasm.ProgressObserver = (*Recorder)(nil)

func (s *Store) Recorder(runId uuid.UUID, next gwasm.ProgressObserver) *Recorder {
	if next == nil {
		next = gwasm.NopObserver{}
	}
	return &Recorder{store: s, runId: runId, next: next}
}

func (r *Recorder) Start() {
	r.next.Start()
}

func (r *Recorder) Update(progress float64) {
	if err := database.UpdateTaskRunProgress(context.Background(), r.store.db, r.runId, progress); err != nil {
		slog.Error("error recording run progress", "run_id", r.runId, "error", err)
	}
	r.next.Update(progress)
}

func (r *Recorder) Stop() {
	r.next.Stop()
}
