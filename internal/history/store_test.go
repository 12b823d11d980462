package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gwasm-client/internal/database"
	"gwasm-client/pkg/gwasm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createTestStore(t *testing.T, create ...any) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return NewStore(db)
}

func stageTask(t *testing.T) *gwasm.Task {
	t.Helper()
	task, err := gwasm.NewTaskBuilder(t.TempDir(), gwasm.Binary{JS: []byte("js"), Wasm: []byte("wasm")}).
		Name("mandelbrot").
		Bid(1.5).
		PushSubtaskData([]byte("a")).
		PushSubtaskData([]byte("b")).
		Build()
	require.NoError(t, err)
	return task
}

func TestStore_StartRun(t *testing.T) {
	store := createTestStore(t)
	task := stageTask(t)

	run, err := store.StartRun(context.Background(), task, "testnet", "/tmp/ws")
	require.NoError(t, err)

	fetched, err := store.GetRun(context.Background(), run.Id)
	require.NoError(t, err)

	assert.Equal(t, "mandelbrot", fetched.Name)
	assert.Equal(t, "testnet", fetched.Network)
	assert.Equal(t, 1.5, fetched.Bid)
	assert.Equal(t, "00:10:00", fetched.Timeout)
	assert.Equal(t, 2, fetched.SubtaskCount)
	assert.Equal(t, database.RunSubmitted, fetched.Status)
	assert.Empty(t, fetched.TaskId)
	assert.False(t, fetched.CompletionTime.Valid)
	assert.JSONEq(t, mustMarshalTask(t, task), string(fetched.Manifest))
}

func mustMarshalTask(t *testing.T, task *gwasm.Task) string {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return string(data)
}

func TestStore_RecordSubmitted(t *testing.T) {
	store := createTestStore(t)

	run, err := store.StartRun(context.Background(), stageTask(t), "testnet", "")
	require.NoError(t, err)

	require.NoError(t, store.RecordSubmitted(context.Background(), run.Id, "task-9"))

	fetched, err := store.GetRun(context.Background(), run.Id)
	require.NoError(t, err)
	assert.Equal(t, "task-9", fetched.TaskId)
	assert.Equal(t, database.RunRunning, fetched.Status)
	assert.False(t, fetched.CompletionTime.Valid)
}

func TestStore_FinishRun(t *testing.T) {
	store := createTestStore(t)

	finished, err := store.StartRun(context.Background(), stageTask(t), "testnet", "")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(context.Background(), finished.Id, database.RunFinished, ""))

	fetched, err := store.GetRun(context.Background(), finished.Id)
	require.NoError(t, err)
	assert.Equal(t, database.RunFinished, fetched.Status)
	assert.True(t, fetched.CompletionTime.Valid)
	assert.False(t, fetched.Error.Valid)

	failed, err := store.StartRun(context.Background(), stageTask(t), "testnet", "")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(context.Background(), failed.Id, database.RunFailed, "daemon unreachable"))

	fetched, err = store.GetRun(context.Background(), failed.Id)
	require.NoError(t, err)
	assert.Equal(t, database.RunFailed, fetched.Status)
	assert.Equal(t, "daemon unreachable", fetched.Error.String)
}

func TestStore_Recorder(t *testing.T) {
	store := createTestStore(t)

	run, err := store.StartRun(context.Background(), stageTask(t), "testnet", "")
	require.NoError(t, err)

	inner := &countingObserver{}
	recorder := store.Recorder(run.Id, inner)

	recorder.Start()
	recorder.Update(0.25)
	recorder.Update(0.75)
	recorder.Stop()

	fetched, err := store.GetRun(context.Background(), run.Id)
	require.NoError(t, err)
	assert.Equal(t, 0.75, fetched.Progress)

	assert.Equal(t, 1, inner.starts)
	assert.Equal(t, 2, inner.updates)
	assert.Equal(t, 1, inner.stops)
}

type countingObserver struct {
	starts, updates, stops int
}

func (o *countingObserver) Start()         { o.starts++ }
func (o *countingObserver) Update(float64) { o.updates++ }
func (o *countingObserver) Stop()          { o.stops++ }

func TestStore_List(t *testing.T) {
	now := time.Now().UTC()
	runs := []*database.TaskRun{
		{Id: uuid.New(), Name: "alpha", Network: "testnet", Status: database.RunFinished, Bid: 1.0, CreationTime: now.Add(-3 * time.Hour)},
		{Id: uuid.New(), Name: "beta", Network: "testnet", Status: database.RunFailed, Bid: 2.0, CreationTime: now.Add(-2 * time.Hour)},
		{Id: uuid.New(), Name: "gamma", Network: "mainnet", Status: database.RunFinished, Bid: 3.0, CreationTime: now.Add(-time.Hour)},
	}
	store := createTestStore(t, runs[0], runs[1], runs[2])

	all, err := store.List(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gamma", all[0].Name, "newest run should come first")
	assert.Equal(t, "alpha", all[2].Name)

	filter, err := ParseQuery(`status = "FINISHED"`)
	require.NoError(t, err)
	finished, err := store.List(context.Background(), filter, 0)
	require.NoError(t, err)
	require.Len(t, finished, 2)
	assert.Equal(t, "gamma", finished[0].Name)
	assert.Equal(t, "alpha", finished[1].Name)

	limited, err := store.List(context.Background(), filter, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "gamma", limited[0].Name)
}
