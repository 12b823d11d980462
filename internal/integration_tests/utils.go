package integrationtests

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gwasm-client/internal/simulator"
	"gwasm-client/pkg/api"
	"gwasm-client/pkg/gwasm"
	"gwasm-client/pkg/rpc"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// startDaemon boots a simulator on an ephemeral port, drops an rpc secret in
// a fresh data dir the way the real daemon would, and connects a client to
// the result.
func startDaemon(t *testing.T, network string, computeDuration time.Duration) *rpc.Client {
	t.Helper()

	dataDir := t.TempDir()
	secret := uuid.New().String()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, api.SecretFileName), []byte(secret+"\n"), 0600))

	market := simulator.NewMarket(network, computeDuration)
	router := chi.NewRouter()
	simulator.NewServer(market, secret).AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, err := rpc.Connect(dataDir, network, strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)
	return client
}

func stageTask(t *testing.T, timeout time.Duration, chunks ...string) *gwasm.Task {
	t.Helper()

	to, err := gwasm.NewTimeout(timeout)
	require.NoError(t, err)

	builder := gwasm.NewTaskBuilder(t.TempDir(), gwasm.Binary{JS: []byte("js"), Wasm: []byte("wasm")}).
		Name("flac2wav").
		Bid(1.5).
		Timeout(to)
	for _, chunk := range chunks {
		builder.PushSubtaskData([]byte(chunk))
	}

	task, err := builder.Build()
	require.NoError(t, err)
	return task
}

// progressLog is a ProgressObserver that records the hook sequence it saw.
type progressLog struct {
	mu      sync.Mutex
	started bool
	stopped bool
	updates []float64
}

func (o *progressLog) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
}

func (o *progressLog) Update(progress float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, progress)
}

func (o *progressLog) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
}

func (o *progressLog) snapshot() (bool, bool, []float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started, o.stopped, append([]float64(nil), o.updates...)
}

// hookObserver runs a callback on every progress update.
type hookObserver struct {
	gwasm.NopObserver
	onUpdate func(progress float64)
}

func (o *hookObserver) Update(progress float64) {
	if o.onUpdate != nil {
		o.onUpdate(progress)
	}
}

// captureEndpoint remembers the task id handed out by the daemon so tests can
// look the task up after Compute returns.
type captureEndpoint struct {
	gwasm.Endpoint
	mu     sync.Mutex
	taskID string
}

func (e *captureEndpoint) CreateTask(ctx context.Context, task *gwasm.Task) (string, error) {
	taskID, err := e.Endpoint.CreateTask(ctx, task)
	e.mu.Lock()
	e.taskID = taskID
	e.mu.Unlock()
	return taskID, err
}

func (e *captureEndpoint) created() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taskID
}
