// Package api defines the daemon's REST payloads, shared by the rpc client
// and the simulator.
package api

// NetworkHeader carries the network the caller operates on. The daemon
// rejects requests whose network does not match its own.
const NetworkHeader = "X-Gwasm-Net"

// SecretFileName is the file inside a daemon data dir holding the bearer
// token for its RPC API.
const SecretFileName = "rpc_secret"

type DaemonStatusResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Network string `json:"network"`
}

type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}

type TaskStatusResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
}

type ListTasksRequest struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
}

type TaskSummary struct {
	TaskID   string   `json:"task_id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
}

type ListTasksResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}
