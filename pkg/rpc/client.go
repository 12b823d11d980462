// Package rpc implements the HTTP client for a marketplace daemon's task
// API. It satisfies gwasm.Endpoint, so a connected Client plugs straight
// into gwasm.Compute.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gwasm-client/pkg/api"
	"gwasm-client/pkg/gwasm"

	"github.com/go-resty/resty/v2"
)

const connectTimeout = 30 * time.Second

// Client talks to one daemon on one network. Methods are safe for
// concurrent use.
type Client struct {
	http    *resty.Client
	network string
}

var _ gwasm.Endpoint = (*Client)(nil)

// Connect authenticates against the daemon at address (host:port) using
// the rpc secret stored in dataDir, then verifies via a status handshake
// that the daemon serves the requested network.
func Connect(dataDir, network, address string) (*Client, error) {
	secret, err := readSecret(filepath.Join(dataDir, api.SecretFileName))
	if err != nil {
		return nil, err
	}

	client := &Client{
		http: resty.New().
			SetBaseURL("http://" + address).
			SetAuthToken(secret).
			SetHeader(api.NetworkHeader, network),
		network: network,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	status, err := client.DaemonStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to daemon at %s: %w", address, err)
	}
	if status.Network != network {
		return nil, fmt.Errorf("daemon at %s serves network %q, not %q", address, status.Network, network)
	}

	slog.Info("connected to daemon", "address", address, "daemon", status.Name, "version", status.Version, "network", network)

	return client, nil
}

func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading rpc secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("rpc secret file %s is empty", path)
	}
	return secret, nil
}

// Network returns the network the client was connected for.
func (c *Client) Network() string {
	return c.network
}

// DaemonStatus queries the daemon's identity and network.
func (c *Client) DaemonStatus(ctx context.Context) (*api.DaemonStatusResponse, error) {
	var status api.DaemonStatusResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("error querying daemon status: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("daemon status check failed: %s", restError(res))
	}
	return &status, nil
}

func (c *Client) CreateTask(ctx context.Context, task *gwasm.Task) (string, error) {
	var created api.CreateTaskResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(task).
		SetResult(&created).
		Post("/api/v1/tasks")
	if err != nil {
		return "", fmt.Errorf("error creating task: %w", err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("daemon rejected task: %s", restError(res))
	}
	if created.TaskID == "" {
		return "", fmt.Errorf("daemon returned no task id")
	}
	return created.TaskID, nil
}

// GetTask returns the daemon's snapshot of the task, or nil if the daemon
// has no record of it.
func (c *Client) GetTask(ctx context.Context, taskID string) (*gwasm.TaskInfo, error) {
	var status api.TaskStatusResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/api/v1/tasks/" + url.PathEscape(taskID))
	if err != nil {
		return nil, fmt.Errorf("error querying task %s: %w", taskID, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("error querying task %s: %s", taskID, restError(res))
	}

	return &gwasm.TaskInfo{
		Status:   gwasm.ParseTaskStatus(status.Status),
		Progress: status.Progress,
	}, nil
}

func (c *Client) AbortTask(ctx context.Context, taskID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Post("/api/v1/tasks/" + url.PathEscape(taskID) + "/abort")
	if err != nil {
		return fmt.Errorf("error aborting task %s: %w", taskID, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("error aborting task %s: %s", taskID, restError(res))
	}
	return nil
}

// ListTasks fetches the daemon's tasks, optionally filtered by status and
// capped at limit.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]api.TaskSummary, error) {
	req := c.http.R().SetContext(ctx)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	var list api.ListTasksResponse
	res, err := req.SetResult(&list).Get("/api/v1/tasks")
	if err != nil {
		return nil, fmt.Errorf("error listing tasks: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("error listing tasks: %s", restError(res))
	}
	return list.Tasks, nil
}

func restError(res *resty.Response) string {
	if body := strings.TrimSpace(res.String()); body != "" {
		return fmt.Sprintf("%s: %s", res.Status(), body)
	}
	return res.Status()
}
