package integrationtests

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gwasm-client/internal/database"
	"gwasm-client/internal/history"
	"gwasm-client/pkg/gwasm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pollInterval = 25 * time.Millisecond

func TestComputeAgainstSimulator(t *testing.T) {
	client := startDaemon(t, "testnet", 500*time.Millisecond)
	task := stageTask(t, time.Minute, "chunk-0", "chunk-1")

	observer := &progressLog{}
	computed, err := gwasm.ComputeWithInterval(context.Background(), client, task, observer, pollInterval)
	require.NoError(t, err)
	defer computed.Close()

	require.Len(t, computed.Subtasks, 2)
	for i, want := range []string{"chunk-0", "chunk-1"} {
		subtask := computed.Subtasks[i]
		require.Contains(t, subtask.Data, "in.wav")

		data, err := io.ReadAll(subtask.Data["in.wav"])
		require.NoError(t, err)
		assert.Equal(t, want, string(data), "the simulator echoes each subtask's input")
	}

	started, stopped, updates := observer.snapshot()
	assert.True(t, started)
	assert.True(t, stopped)
	for i, progress := range updates {
		assert.GreaterOrEqual(t, progress, 0.0)
		assert.LessOrEqual(t, progress, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, progress, updates[i-1], "progress never goes backwards")
		}
	}
}

func TestComputeTimesOutAgainstSimulator(t *testing.T) {
	// The task's deadline lands well before the simulated compute finishes.
	client := startDaemon(t, "testnet", time.Minute)
	task := stageTask(t, time.Second, "chunk-0")

	observer := &progressLog{}
	_, err := gwasm.ComputeWithInterval(context.Background(), client, task, observer, pollInterval)
	require.ErrorIs(t, err, gwasm.ErrTaskTimedOut)

	_, stopped, _ := observer.snapshot()
	assert.False(t, stopped, "failed computations skip the stop hook")
}

func TestInterruptAbortsSimulatedTask(t *testing.T) {
	client := startDaemon(t, "testnet", time.Minute)
	task := stageTask(t, time.Minute, "chunk-0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupt as soon as the first status report arrives.
	var once sync.Once
	observer := &hookObserver{onUpdate: func(float64) { once.Do(cancel) }}

	endpoint := &captureEndpoint{Endpoint: client}
	_, err := gwasm.ComputeWithInterval(ctx, endpoint, task, observer, pollInterval)
	require.ErrorIs(t, err, gwasm.ErrInterrupted)

	taskID := endpoint.created()
	require.NotEmpty(t, taskID)

	info, err := client.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, gwasm.StatusAborted, info.Status, "interrupting the client aborts the remote task")
}

func TestAbortThroughRpc(t *testing.T) {
	client := startDaemon(t, "testnet", time.Minute)
	task := stageTask(t, time.Minute, "chunk-0")

	taskID, err := client.CreateTask(context.Background(), task)
	require.NoError(t, err)

	require.NoError(t, client.AbortTask(context.Background(), taskID))

	info, err := client.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, gwasm.StatusAborted, info.Status)

	tasks, err := client.ListTasks(context.Background(), string(gwasm.StatusAborted), 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0].TaskID)
	assert.Equal(t, "flac2wav", tasks[0].Name)
}

func TestHistoryRecordsSimulatedRun(t *testing.T) {
	client := startDaemon(t, "testnet", 200*time.Millisecond)
	task := stageTask(t, time.Minute, "chunk-0")

	store, err := history.Open(filepath.Join(t.TempDir(), "gwasm", "history.db"))
	require.NoError(t, err)

	run, err := store.StartRun(context.Background(), task, "testnet", task.Options.OutputDir)
	require.NoError(t, err)

	endpoint := &captureEndpoint{Endpoint: client}
	observer := store.Recorder(run.Id, nil)

	computed, err := gwasm.ComputeWithInterval(context.Background(), endpoint, task, observer, pollInterval)
	require.NoError(t, err)
	defer computed.Close()

	require.NoError(t, store.RecordSubmitted(context.Background(), run.Id, endpoint.created()))
	require.NoError(t, store.FinishRun(context.Background(), run.Id, database.RunFinished, ""))

	fetched, err := store.GetRun(context.Background(), run.Id)
	require.NoError(t, err)
	assert.Equal(t, database.RunFinished, fetched.Status)
	assert.Equal(t, endpoint.created(), fetched.TaskId)
	assert.True(t, fetched.CompletionTime.Valid)

	filter, err := history.ParseQuery(`status = "FINISHED" AND name CONTAINS "flac"`)
	require.NoError(t, err)
	runs, err := store.List(context.Background(), filter, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.Id, runs[0].Id)
}
