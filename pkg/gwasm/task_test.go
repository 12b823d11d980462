package gwasm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestTask(t *testing.T, chunks ...[]byte) (*Task, string) {
	t.Helper()
	workspace := t.TempDir()

	builder := NewTaskBuilder(workspace, Binary{JS: []byte("js code"), Wasm: []byte("wasm code")})
	for _, chunk := range chunks {
		builder.PushSubtaskData(chunk)
	}

	task, err := builder.Name("flac2wav").Build()
	require.NoError(t, err)
	return task, workspace
}

func TestTaskBuilder_Defaults(t *testing.T) {
	workspace := t.TempDir()

	task, err := NewTaskBuilder(workspace, Binary{}).Build()
	require.NoError(t, err)

	assert.Equal(t, "wasm", task.Type)
	assert.Equal(t, "unknown", task.Name)
	assert.Equal(t, 1.0, task.Bid)
	assert.Equal(t, "00:10:00", task.Timeout.String())
	assert.Equal(t, "00:10:00", task.SubtaskTimeout.String())
	assert.Empty(t, task.Options.Subtasks)
}

func TestTaskBuilder_StagesWorkspace(t *testing.T) {
	task, workspace := buildTestTask(t, []byte("chunk one"), []byte("chunk two"))

	jsData, err := os.ReadFile(filepath.Join(workspace, "in", "flac2wav.js"))
	require.NoError(t, err)
	assert.Equal(t, "js code", string(jsData))

	wasmData, err := os.ReadFile(filepath.Join(workspace, "in", "flac2wav.wasm"))
	require.NoError(t, err)
	assert.Equal(t, "wasm code", string(wasmData))

	for i, expected := range []string{"chunk one", "chunk two"} {
		name := fmt.Sprintf("subtask_%d", i)

		data, err := os.ReadFile(filepath.Join(workspace, "in", name, "in.txt"))
		require.NoError(t, err)
		assert.Equal(t, expected, string(data))

		info, err := os.Stat(filepath.Join(workspace, "out", name))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	require.Len(t, task.Options.Subtasks, 2)
	for _, subtask := range task.Options.Subtasks {
		assert.Equal(t, []string{"in.txt", "in.wav"}, subtask.ExecArgs)
		assert.Equal(t, []string{"in.wav"}, subtask.OutputFilePaths)
	}
}

func TestTaskBuilder_Options(t *testing.T) {
	workspace := t.TempDir()

	timeout, err := ParseTimeout("01:00:00")
	require.NoError(t, err)
	subtaskTimeout, err := ParseTimeout("00:05:00")
	require.NoError(t, err)

	task, err := NewTaskBuilder(workspace, Binary{}).
		Name("render").
		Bid(2.5).
		Timeout(timeout).
		SubtaskTimeout(subtaskTimeout).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "render", task.Name)
	assert.Equal(t, 2.5, task.Bid)
	assert.Equal(t, "01:00:00", task.Timeout.String())
	assert.Equal(t, "00:05:00", task.SubtaskTimeout.String())
	assert.Equal(t, "render.js", task.Options.JSName)
	assert.Equal(t, "render.wasm", task.Options.WasmName)
}

func TestTaskBuilder_WorkspaceAlreadyStaged(t *testing.T) {
	workspace := t.TempDir()

	_, err := NewTaskBuilder(workspace, Binary{}).Build()
	require.NoError(t, err)

	_, err = NewTaskBuilder(workspace, Binary{}).Build()
	assert.Error(t, err, "staging twice into the same workspace should fail")
}

func TestTask_SubtaskNames(t *testing.T) {
	task, _ := buildTestTask(t, []byte("a"), []byte("b"), []byte("c"))
	assert.Equal(t, []string{"subtask_0", "subtask_1", "subtask_2"}, task.SubtaskNames())
}

func TestTask_WireJSON(t *testing.T) {
	task, workspace := buildTestTask(t, []byte("chunk"))

	data, err := json.Marshal(task)
	require.NoError(t, err)

	expected := fmt.Sprintf(`{
		"type": "wasm",
		"name": "flac2wav",
		"bid": 1,
		"timeout": "00:10:00",
		"subtask_timeout": "00:10:00",
		"options": {
			"js_name": "flac2wav.js",
			"wasm_name": "flac2wav.wasm",
			"input_dir": %q,
			"output_dir": %q,
			"subtasks": {
				"subtask_0": {
					"exec_args": ["in.txt", "in.wav"],
					"output_file_paths": ["in.wav"]
				}
			}
		}
	}`, filepath.Join(workspace, "in"), filepath.Join(workspace, "out"))

	assert.JSONEq(t, expected, string(data))
}
