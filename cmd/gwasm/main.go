package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gwasm-client/cmd"
	"gwasm-client/internal/database"
	"gwasm-client/internal/history"
	"gwasm-client/pkg/gwasm"
	"gwasm-client/pkg/rpc"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Address      string        `env:"GWASM_ADDRESS" envDefault:"127.0.0.1:61000"`
	Network      string        `env:"GWASM_NETWORK" envDefault:"testnet"`
	DataDir      string        `env:"GWASM_DATA_DIR"`
	Home         string        `env:"GWASM_HOME"`
	PollInterval time.Duration `env:"GWASM_POLL_INTERVAL" envDefault:"2s"`
}

// resolvePaths fills the home-relative defaults: the client home falls back
// to ~/.gwasm, and the daemon data dir falls back to the client home, which
// is where the simulator drops its rpc secret in a single-machine setup.
func (c *Config) resolvePaths() error {
	if c.Home == "" || c.DataDir == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error resolving user home dir: %w", err)
		}
		if c.Home == "" {
			c.Home = filepath.Join(userHome, ".gwasm")
		}
		if c.DataDir == "" {
			c.DataDir = c.Home
		}
	}
	return nil
}

func (c *Config) historyPath() string {
	return filepath.Join(c.Home, "history.db")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	args := cmd.LoadEnvFile()
	if len(args) == 0 {
		usage()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		log.Fatalf("error resolving config paths: %v", err)
	}

	var err error
	switch verb, rest := args[0], args[1:]; verb {
	case "run":
		err = runJob(cfg, rest)
	case "status":
		err = taskStatus(cfg, rest)
	case "abort":
		err = abortTask(cfg, rest)
	case "history":
		err = listHistory(cfg, rest)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("gwasm %s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: gwasm [-env FILE] <command> [arguments]

Commands:
  run <job.yaml>    stage a job and compute it on the connected daemon
  status <task-id>  show a task's current status
  abort <task-id>   abort a running task
  history           list past runs, newest first

Environment:
  GWASM_ADDRESS        daemon RPC address (default 127.0.0.1:61000)
  GWASM_NETWORK        network to compute on (default testnet)
  GWASM_DATA_DIR       daemon data dir holding rpc_secret (default GWASM_HOME)
  GWASM_HOME           client home for workspaces and history (default ~/.gwasm)
  GWASM_POLL_INTERVAL  task status poll interval (default 2s)
`)
	os.Exit(2)
}

// jobManifest describes a job file: which binaries to run, what to pay, and
// the input file for each subtask. File paths are relative to the manifest.
type jobManifest struct {
	Name           string   `yaml:"name"`
	Bid            float64  `yaml:"bid"`
	Timeout        string   `yaml:"timeout"`
	SubtaskTimeout string   `yaml:"subtask_timeout"`
	JS             string   `yaml:"js"`
	Wasm           string   `yaml:"wasm"`
	Inputs         []string `yaml:"inputs"`
}

func readJobManifest(path string) (*jobManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading job manifest: %w", err)
	}

	var job jobManifest
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("error parsing job manifest: %w", err)
	}

	if job.JS == "" || job.Wasm == "" {
		return nil, errors.New("job manifest must name both js and wasm modules")
	}
	if len(job.Inputs) == 0 {
		return nil, errors.New("job manifest must list at least one input")
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &job, nil
}

func stageJob(job *jobManifest, baseDir, workspace string) (*gwasm.Task, error) {
	js, err := os.ReadFile(resolvePath(baseDir, job.JS))
	if err != nil {
		return nil, fmt.Errorf("error reading js module: %w", err)
	}
	wasm, err := os.ReadFile(resolvePath(baseDir, job.Wasm))
	if err != nil {
		return nil, fmt.Errorf("error reading wasm module: %w", err)
	}

	builder := gwasm.NewTaskBuilder(workspace, gwasm.Binary{JS: js, Wasm: wasm}).Name(job.Name)
	if job.Bid > 0 {
		builder.Bid(job.Bid)
	}
	if job.Timeout != "" {
		timeout, err := gwasm.ParseTimeout(job.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		builder.Timeout(timeout)
	}
	if job.SubtaskTimeout != "" {
		timeout, err := gwasm.ParseTimeout(job.SubtaskTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid subtask_timeout: %w", err)
		}
		builder.SubtaskTimeout(timeout)
	}

	for _, input := range job.Inputs {
		data, err := os.ReadFile(resolvePath(baseDir, input))
		if err != nil {
			return nil, fmt.Errorf("error reading input %s: %w", input, err)
		}
		builder.PushSubtaskData(data)
	}

	return builder.Build()
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func runJob(cfg Config, args []string) error {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	workspace := flags.String("workspace", "", "directory to stage the task in (default under GWASM_HOME)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: gwasm run [-workspace DIR] <job.yaml>")
	}
	manifestPath := flags.Arg(0)

	job, err := readJobManifest(manifestPath)
	if err != nil {
		return err
	}

	ws := *workspace
	if ws == "" {
		ws = filepath.Join(cfg.Home, "workspaces", fmt.Sprintf("%s-%s", job.Name, time.Now().Format("20060102-150405")))
	}
	if err := os.MkdirAll(ws, 0755); err != nil {
		return fmt.Errorf("error creating workspace: %w", err)
	}

	task, err := stageJob(job, filepath.Dir(manifestPath), ws)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.historyPath())
	if err != nil {
		return err
	}

	client, err := rpc.Connect(cfg.DataDir, cfg.Network, cfg.Address)
	if err != nil {
		return err
	}

	run, err := store.StartRun(context.Background(), task, cfg.Network, ws)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint := &recordedEndpoint{Endpoint: client, store: store, runId: run.Id}
	observer := store.Recorder(run.Id, &progressBar{})

	computed, err := gwasm.ComputeWithInterval(ctx, endpoint, task, observer, cfg.PollInterval)
	if err != nil {
		// The signal context is dead by now on the interrupt path, so the
		// history row is finished on a fresh one.
		status := runStatusForError(err)
		if recErr := store.FinishRun(context.Background(), run.Id, status, err.Error()); recErr != nil {
			slog.Error("error recording run failure", "run_id", run.Id, "error", recErr)
		}
		return err
	}
	defer computed.Close()

	if err := store.FinishRun(ctx, run.Id, database.RunFinished, ""); err != nil {
		slog.Error("error recording run completion", "run_id", run.Id, "error", err)
	}

	fmt.Printf("task %s finished, outputs:\n", computed.Name)
	for _, subtask := range computed.Subtasks {
		paths := make([]string, 0, len(subtask.Data))
		for _, file := range subtask.Data {
			paths = append(paths, file.Name())
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Printf("  %s\n", path)
		}
	}
	return nil
}

func runStatusForError(err error) string {
	switch {
	case errors.Is(err, gwasm.ErrInterrupted):
		return database.RunInterrupted
	case errors.Is(err, gwasm.ErrTaskTimedOut):
		return database.RunTimedOut
	case errors.Is(err, gwasm.ErrTaskAborted):
		return database.RunAborted
	default:
		return database.RunFailed
	}
}

// recordedEndpoint mirrors the daemon's task id into the run history as soon
// as the task is created, so interrupted and failed runs can still be found
// on the daemon afterwards.
type recordedEndpoint struct {
	gwasm.Endpoint
	store *history.Store
	runId uuid.UUID
}

func (e *recordedEndpoint) CreateTask(ctx context.Context, task *gwasm.Task) (string, error) {
	taskID, err := e.Endpoint.CreateTask(ctx, task)
	if err != nil {
		return taskID, err
	}
	if recErr := e.store.RecordSubmitted(ctx, e.runId, taskID); recErr != nil {
		slog.Error("error recording task id", "task_id", taskID, "error", recErr)
	}
	return taskID, nil
}

// progressBar renders task progress on stderr. Progress arrives as a
// fraction; the bar tracks it in percent.
type progressBar struct {
	bar *progressbar.ProgressBar
}

func (p *progressBar) Start() {
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription("computing"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *progressBar) Update(progress float64) {
	_ = p.bar.Set(int(progress * 100))
}

func (p *progressBar) Stop() {
	_ = p.bar.Finish()
}

func taskStatus(cfg Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: gwasm status <task-id>")
	}

	client, err := rpc.Connect(cfg.DataDir, cfg.Network, cfg.Address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := client.GetTask(ctx, args[0])
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("daemon has no record of task %s", args[0])
	}

	if info.Progress != nil {
		fmt.Printf("%s %.1f%%\n", info.Status, *info.Progress*100)
	} else {
		fmt.Println(info.Status)
	}
	return nil
}

func abortTask(cfg Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: gwasm abort <task-id>")
	}

	client, err := rpc.Connect(cfg.DataDir, cfg.Network, cfg.Address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.AbortTask(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("task %s aborted\n", args[0])
	return nil
}

func listHistory(cfg Config, args []string) error {
	flags := flag.NewFlagSet("history", flag.ExitOnError)
	query := flags.String("query", "", `filter runs, e.g. 'status = "FINISHED" AND bid > 1'`)
	limit := flags.Int("limit", 20, "maximum runs to show, 0 for all")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var filter history.Filter
	if *query != "" {
		var err error
		if filter, err = history.ParseQuery(*query); err != nil {
			return fmt.Errorf("invalid query: %w", err)
		}
	}

	store, err := history.Open(cfg.historyPath())
	if err != nil {
		return err
	}

	runs, err := store.List(context.Background(), filter, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tNAME\tSTATUS\tPROGRESS\tTASK ID\tERROR")
	for _, run := range runs {
		var errMsg string
		if run.Error.Valid {
			errMsg = run.Error.String
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
			run.CreationTime.Local().Format("2006-01-02 15:04:05"),
			run.Name, run.Status, run.Progress*100, run.TaskId, errMsg)
	}
	return w.Flush()
}
