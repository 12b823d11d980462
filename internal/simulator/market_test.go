package simulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gwasm-client/pkg/gwasm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMarket returns a market on "testnet" whose clock is frozen at the
// returned instant. Tests advance it by assigning through the pointer.
func testMarket(t *testing.T, computeDuration time.Duration) (*Market, *time.Time) {
	t.Helper()

	m := NewMarket("testnet", computeDuration)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m.clock = func() time.Time { return now }
	return m, &now
}

func stageManifest(t *testing.T, timeout time.Duration, chunks ...string) *gwasm.Task {
	t.Helper()

	to, err := gwasm.NewTimeout(timeout)
	require.NoError(t, err)

	builder := gwasm.NewTaskBuilder(t.TempDir(), gwasm.Binary{JS: []byte("js"), Wasm: []byte("wasm")}).
		Name("flac2wav").
		Bid(2).
		Timeout(to)
	for _, chunk := range chunks {
		builder.PushSubtaskData([]byte(chunk))
	}

	task, err := builder.Build()
	require.NoError(t, err)
	return task
}

func TestMarket_TaskFinishes(t *testing.T) {
	m, now := testMarket(t, 10*time.Second)
	task := stageManifest(t, time.Minute, "chunk-0", "chunk-1")

	id, err := m.CreateTask(task)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusRunning, snap.Status)
	assert.Equal(t, 0.0, snap.Progress)

	*now = now.Add(5 * time.Second)
	snap, err = m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusRunning, snap.Status)
	assert.Equal(t, 0.5, snap.Progress)

	*now = now.Add(5 * time.Second)
	snap, err = m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusFinished, snap.Status)
	assert.Equal(t, 1.0, snap.Progress)

	for i, want := range []string{"chunk-0", "chunk-1"} {
		path := filepath.Join(task.Options.OutputDir, task.SubtaskNames()[i], "in.wav")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	// Terminal states are sticky.
	*now = now.Add(time.Hour)
	snap, err = m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusFinished, snap.Status)
}

func TestMarket_TaskTimesOut(t *testing.T) {
	m, now := testMarket(t, 10*time.Second)
	task := stageManifest(t, 5*time.Second, "chunk-0")

	id, err := m.CreateTask(task)
	require.NoError(t, err)

	*now = now.Add(4 * time.Second)
	snap, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusRunning, snap.Status)

	*now = now.Add(time.Second)
	snap, err = m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusTimedOut, snap.Status)
	assert.Equal(t, 0.5, snap.Progress, "progress freezes at the deadline")

	assert.NoFileExists(t, filepath.Join(task.Options.OutputDir, "subtask_0", "in.wav"))

	err = m.Abort(id)
	assert.ErrorIs(t, err, ErrTaskSettled)
}

func TestMarket_Abort(t *testing.T) {
	m, now := testMarket(t, 10*time.Second)

	id, err := m.CreateTask(stageManifest(t, time.Minute, "chunk-0"))
	require.NoError(t, err)

	*now = now.Add(3 * time.Second)
	require.NoError(t, m.Abort(id))

	snap, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusAborted, snap.Status)
	assert.Equal(t, 0.3, snap.Progress)

	// An aborted task never resumes, and cannot be aborted twice.
	*now = now.Add(time.Minute)
	snap, err = m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, gwasm.StatusAborted, snap.Status)
	assert.Equal(t, 0.3, snap.Progress)

	assert.ErrorIs(t, m.Abort(id), ErrTaskSettled)
}

func TestMarket_UnknownTask(t *testing.T) {
	m, _ := testMarket(t, time.Second)

	_, err := m.Status("no-such-task")
	assert.ErrorIs(t, err, ErrUnknownTask)

	assert.ErrorIs(t, m.Abort("no-such-task"), ErrUnknownTask)
}

func TestMarket_RejectsBadManifests(t *testing.T) {
	m, _ := testMarket(t, time.Second)

	tests := []struct {
		name   string
		mutate func(task *gwasm.Task)
	}{
		{"wrong type", func(task *gwasm.Task) { task.Type = "docker" }},
		{"zero bid", func(task *gwasm.Task) { task.Bid = 0 }},
		{"negative bid", func(task *gwasm.Task) { task.Bid = -1 }},
		{"missing timeout", func(task *gwasm.Task) { task.Timeout = gwasm.Timeout{} }},
		{"no subtasks", func(task *gwasm.Task) { task.Options.Subtasks = nil }},
		{"no output dir", func(task *gwasm.Task) { task.Options.OutputDir = "" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			task := stageManifest(t, time.Minute, "chunk-0")
			test.mutate(task)

			_, err := m.CreateTask(task)
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestMarket_List(t *testing.T) {
	m, now := testMarket(t, 10*time.Second)

	first, err := m.CreateTask(stageManifest(t, time.Minute, "a"))
	require.NoError(t, err)

	*now = now.Add(2 * time.Second)
	second, err := m.CreateTask(stageManifest(t, time.Minute, "b"))
	require.NoError(t, err)

	*now = now.Add(2 * time.Second)
	third, err := m.CreateTask(stageManifest(t, time.Minute, "c"))
	require.NoError(t, err)

	require.NoError(t, m.Abort(second))
	*now = now.Add(2 * time.Second)

	ids := func(snaps []TaskSnapshot) []string {
		out := make([]string, len(snaps))
		for i, snap := range snaps {
			out[i] = snap.ID
		}
		return out
	}

	assert.Equal(t, []string{third, second, first}, ids(m.List("", 0)), "newest first")
	assert.Equal(t, []string{third, first}, ids(m.List("RUNNING", 0)))
	assert.Equal(t, []string{third, first}, ids(m.List("running", 0)))
	assert.Equal(t, []string{second}, ids(m.List("ABORTED", 0)))
	assert.Equal(t, []string{third, second}, ids(m.List("", 2)))
}
