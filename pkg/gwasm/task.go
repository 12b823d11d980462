package gwasm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Binary holds the contents of an Emscripten-produced module pair: the
// JavaScript loader and the wasm binary it drives.
type Binary struct {
	JS   []byte
	Wasm []byte
}

const (
	inputDirName  = "in"
	outputDirName = "out"

	// Every subtask reads its chunk from in.txt and writes its result to
	// in.wav; the daemon runs the wasm entrypoint with both as arguments.
	subtaskInputName  = "in.txt"
	subtaskOutputName = "in.wav"
)

// Subtask is one unit of work within a task: the arguments for the wasm
// entrypoint and the files it must produce under the subtask's output
// directory.
type Subtask struct {
	ExecArgs        []string `json:"exec_args"`
	OutputFilePaths []string `json:"output_file_paths"`
}

// TaskOptions locates the staged files for a task. Subtasks marshals with
// its keys in lexical order, which is the order subtasks are staged and
// collected in.
type TaskOptions struct {
	JSName    string             `json:"js_name"`
	WasmName  string             `json:"wasm_name"`
	InputDir  string             `json:"input_dir"`
	OutputDir string             `json:"output_dir"`
	Subtasks  map[string]Subtask `json:"subtasks"`
}

// Task is a staged task descriptor. Its JSON form is the manifest the
// daemon accepts, and its paths point at the workspace structure built by
// TaskBuilder. A Task is read-only once built.
type Task struct {
	Type           string      `json:"type"`
	Name           string      `json:"name"`
	Bid            float64     `json:"bid"`
	Timeout        Timeout     `json:"timeout"`
	SubtaskTimeout Timeout     `json:"subtask_timeout"`
	Options        TaskOptions `json:"options"`
}

// SubtaskNames returns the task's subtask names in lexical order.
func (t *Task) SubtaskNames() []string {
	names := make([]string, 0, len(t.Options.Subtasks))
	for name := range t.Options.Subtasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskBuilder stages a task in a workspace directory. Each pushed chunk of
// subtask data becomes one subtask executed on the network.
type TaskBuilder struct {
	workspace      string
	binary         Binary
	name           string
	bid            float64
	timeout        Timeout
	subtaskTimeout Timeout
	subtaskData    [][]byte
}

// NewTaskBuilder returns a builder staging into workspace, which must be an
// existing directory that does not yet contain in/ or out/ entries.
func NewTaskBuilder(workspace string, binary Binary) *TaskBuilder {
	return &TaskBuilder{
		workspace:      workspace,
		binary:         binary,
		name:           "unknown",
		bid:            1.0,
		timeout:        DefaultTimeout,
		subtaskTimeout: DefaultTimeout,
	}
}

// Name sets the task's name, which also names the staged js and wasm files.
func (b *TaskBuilder) Name(name string) *TaskBuilder {
	b.name = name
	return b
}

// Bid sets the price offered for the computation.
func (b *TaskBuilder) Bid(bid float64) *TaskBuilder {
	b.bid = bid
	return b
}

// Timeout sets the deadline for the whole task.
func (b *TaskBuilder) Timeout(timeout Timeout) *TaskBuilder {
	b.timeout = timeout
	return b
}

// SubtaskTimeout sets the deadline for each subtask.
func (b *TaskBuilder) SubtaskTimeout(timeout Timeout) *TaskBuilder {
	b.subtaskTimeout = timeout
	return b
}

// PushSubtaskData appends one subtask's input. The builder takes ownership
// of data; it is written out verbatim as the subtask's in.txt.
func (b *TaskBuilder) PushSubtaskData(data []byte) *TaskBuilder {
	b.subtaskData = append(b.subtaskData, data)
	return b
}

// Build writes the workspace structure and returns the task descriptor:
//
//	<workspace>/in/<name>.js
//	<workspace>/in/<name>.wasm
//	<workspace>/in/subtask_<i>/in.txt
//	<workspace>/out/subtask_<i>/
//
// Subtasks are named subtask_<i> in push order. Build fails if the input or
// output directory already exists.
func (b *TaskBuilder) Build() (*Task, error) {
	options := TaskOptions{
		JSName:    b.name + ".js",
		WasmName:  b.name + ".wasm",
		InputDir:  filepath.Join(b.workspace, inputDirName),
		OutputDir: filepath.Join(b.workspace, outputDirName),
		Subtasks:  make(map[string]Subtask, len(b.subtaskData)),
	}

	if err := os.Mkdir(options.InputDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating input dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(options.InputDir, options.JSName), b.binary.JS, 0644); err != nil {
		return nil, fmt.Errorf("error writing js module: %w", err)
	}
	if err := os.WriteFile(filepath.Join(options.InputDir, options.WasmName), b.binary.Wasm, 0644); err != nil {
		return nil, fmt.Errorf("error writing wasm module: %w", err)
	}
	if err := os.Mkdir(options.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output dir: %w", err)
	}

	for i, chunk := range b.subtaskData {
		name := fmt.Sprintf("subtask_%d", i)

		inputDir := filepath.Join(options.InputDir, name)
		if err := os.Mkdir(inputDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating %s input dir: %w", name, err)
		}
		if err := os.Mkdir(filepath.Join(options.OutputDir, name), 0755); err != nil {
			return nil, fmt.Errorf("error creating %s output dir: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(inputDir, subtaskInputName), chunk, 0644); err != nil {
			return nil, fmt.Errorf("error writing %s input data: %w", name, err)
		}

		options.Subtasks[name] = Subtask{
			ExecArgs:        []string{subtaskInputName, subtaskOutputName},
			OutputFilePaths: []string{subtaskOutputName},
		}
	}

	return &Task{
		Type:           "wasm",
		Name:           b.name,
		Bid:            b.bid,
		Timeout:        b.timeout,
		SubtaskTimeout: b.subtaskTimeout,
		Options:        options,
	}, nil
}
