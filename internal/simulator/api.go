package simulator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gwasm-client/pkg/api"
	"gwasm-client/pkg/gwasm"

	"github.com/go-chi/chi/v5"
)

const (
	daemonName    = "gwasm-sim"
	daemonVersion = "0.3.0"
)

// Server exposes a Market over the daemon's REST protocol. Every endpoint
// sits behind bearer auth with the daemon's rpc secret; the task endpoints
// additionally refuse callers on the wrong network.
type Server struct {
	market *Market
	secret string
}

func NewServer(market *Market, secret string) *Server {
	return &Server{market: market, secret: secret}
}

func (s *Server) AddRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/status", RestHandler(s.DaemonStatus))
		r.Route("/tasks", func(r chi.Router) {
			r.Use(s.checkNetwork)
			r.Post("/", RestCreatedHandler(s.CreateTask))
			r.Get("/", RestHandler(s.ListTasks))
			r.Get("/{task_id}", RestHandler(s.GetTask))
			r.Post("/{task_id}/abort", RestHandler(s.AbortTask))
		})
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token != s.secret {
			http.Error(w, "invalid rpc secret", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkNetwork rejects callers whose network header disagrees with the
// market. The status endpoint stays reachable so clients can discover which
// network a daemon runs on.
func (s *Server) checkNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if net := r.Header.Get(api.NetworkHeader); net != "" && !strings.EqualFold(net, s.market.Network()) {
			http.Error(w, fmt.Sprintf("daemon runs on network %s, not %s", s.market.Network(), net), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) DaemonStatus(r *http.Request) (any, error) {
	return api.DaemonStatusResponse{
		Name:    daemonName,
		Version: daemonVersion,
		Network: s.market.Network(),
	}, nil
}

func (s *Server) CreateTask(r *http.Request) (any, error) {
	task, err := ParseRequest[gwasm.Task](r)
	if err != nil {
		return nil, err
	}

	taskID, err := s.market.CreateTask(&task)
	if err != nil {
		if errors.Is(err, ErrInvalidManifest) {
			return nil, CodedError(http.StatusBadRequest, err)
		}
		return nil, err
	}

	return api.CreateTaskResponse{TaskID: taskID}, nil
}

func (s *Server) GetTask(r *http.Request) (any, error) {
	snap, err := s.market.Status(chi.URLParam(r, "task_id"))
	if err != nil {
		if errors.Is(err, ErrUnknownTask) {
			return nil, CodedError(http.StatusNotFound, err)
		}
		return nil, err
	}

	progress := snap.Progress
	return api.TaskStatusResponse{Status: string(snap.Status), Progress: &progress}, nil
}

func (s *Server) AbortTask(r *http.Request) (any, error) {
	if err := s.market.Abort(chi.URLParam(r, "task_id")); err != nil {
		switch {
		case errors.Is(err, ErrUnknownTask):
			return nil, CodedError(http.StatusNotFound, err)
		case errors.Is(err, ErrTaskSettled):
			return nil, CodedError(http.StatusConflict, err)
		}
		return nil, err
	}
	return nil, nil
}

func (s *Server) ListTasks(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListTasksRequest](r)
	if err != nil {
		return nil, err
	}

	snaps := s.market.List(params.Status, params.Limit)
	tasks := make([]api.TaskSummary, 0, len(snaps))
	for _, snap := range snaps {
		progress := snap.Progress
		tasks = append(tasks, api.TaskSummary{
			TaskID:   snap.ID,
			Name:     snap.Name,
			Status:   string(snap.Status),
			Progress: &progress,
		})
	}

	return api.ListTasksResponse{Tasks: tasks}, nil
}
