// Package api serves the management HTTP API: instance queries,
// lifecycle actions, update operations and the SSE event streams.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/logger"
	"github.com/gameserverkit/warden/internal/supervisor"
	"github.com/gameserverkit/warden/internal/update"
)

// maxRequestBodySize bounds request bodies; every control request here
// is a few hundred bytes at most.
const maxRequestBodySize = 1 * 1024 * 1024

// Control is the supervisor surface the API exposes.
type Control interface {
	Start(name string) error
	Stop(name string) error
	SendCommand(name, text string) error
	IsInstanceRunning(name string) bool
	Uptime(name string) (time.Duration, bool)
	Port(name string) (int, bool)
	ResourceUsage(name string) supervisor.Usage
	LastExit(name string) (supervisor.ExitRecord, bool)
}

// Updater is the update pipeline surface the API exposes.
type Updater interface {
	Apply(ctx context.Context, name, patchline string, opts update.ApplyOptions) error
	UpdateAll(ctx context.Context, filter []string, opts update.ApplyOptions) (update.FleetResult, error)
	Status(ctx context.Context) ([]update.InstanceStatus, error)
	Stage(ctx context.Context, name, patchline string) error
	GracefulStop(name string, warnMinutes int) error
	Guard() *update.Guard
}

// Lister enumerates instances.
type Lister interface {
	List() ([]instances.Info, error)
	Exists(name string) bool
}

// Server is the management API server.
type Server struct {
	addr    string
	logger  *slog.Logger
	control Control
	updater Updater
	lister  Lister
	hub     *events.Hub
	logs    *logger.LogBuffer

	// heartbeatInterval keeps SSE connections alive through proxies.
	heartbeatInterval time.Duration

	server *http.Server
}

// NewServer wires the management API.
func NewServer(addr string, control Control, updater Updater, lister Lister, hub *events.Hub, logs *logger.LogBuffer, log *slog.Logger) *Server {
	return &Server{
		addr:              addr,
		logger:            log.With("component", "api"),
		control:           control,
		updater:           updater,
		lister:            lister,
		hub:               hub,
		logs:              logs,
		heartbeatInterval: 15 * time.Second,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.wrap(s.handleHealth))
	mux.HandleFunc("/api/status", s.wrap(s.handleStatus))
	mux.HandleFunc("/api/instances", s.wrap(s.handleInstances))
	mux.HandleFunc("/api/server/start", s.wrap(s.handleStart))
	mux.HandleFunc("/api/server/stop", s.wrap(s.handleStop))
	mux.HandleFunc("/api/server/command", s.wrap(s.handleCommand))
	mux.HandleFunc("/api/update", s.wrap(s.handleUpdate))
	mux.HandleFunc("/api/update/all", s.wrap(s.handleUpdateAll))
	mux.HandleFunc("/api/update/status", s.wrap(s.handleUpdateStatus))
	mux.HandleFunc("/api/logs", s.wrap(s.handleLogs))
	mux.HandleFunc("/api/events/console/", s.wrap(s.handleConsoleEvents))
	mux.HandleFunc("/api/events/update", s.wrap(s.handleUpdateEvents))
	return mux
}

// wrap applies panic recovery and the body limit to a handler.
func (s *Server) wrap(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic in API handler",
					"error", err,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				s.respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		handler(w, r)
	}
}

// Start serves the API in the background until Stop is called.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.routes(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: SSE connections are long-lived.
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("API server listening", "addr", s.addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", "error", err)
		}
	}()
}

// Stop shuts the API server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// instanceStatus is one instance's row in the status response.
type instanceStatus struct {
	Name          string  `json:"name"`
	Installed     bool    `json:"installed"`
	Version       string  `json:"version"`
	Patchline     string  `json:"patchline"`
	Running       bool    `json:"running"`
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
	Port          int     `json:"port,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryRSS     uint64  `json:"memory_rss_bytes,omitempty"`
	LastExitCode  *int    `json:"last_exit_code,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	infos, err := s.lister.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([]instanceStatus, 0, len(infos))
	for _, info := range infos {
		row := instanceStatus{
			Name:      info.Name,
			Installed: info.Installed,
			Version:   info.Version,
			Patchline: info.Patchline,
			Running:   s.control.IsInstanceRunning(info.Name),
		}
		if row.Running {
			if up, ok := s.control.Uptime(info.Name); ok {
				row.UptimeSeconds = up.Seconds()
			}
			if port, ok := s.control.Port(info.Name); ok {
				row.Port = port
			}
			if usage := s.control.ResourceUsage(info.Name); usage.Known {
				row.CPUPercent = usage.CPUPercent
				row.MemoryRSS = usage.RSSBytes
			}
		} else if rec, ok := s.control.LastExit(info.Name); ok {
			code := rec.Code
			row.LastExitCode = &code
		}
		rows = append(rows, row)
	}

	job, active := s.updater.Guard().Active()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"instances":          rows,
		"update_in_progress": active,
		"update_job":         job,
	})
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	infos, err := s.lister.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"instances": infos})
}

type serverActionRequest struct {
	Instance    string `json:"instance"`
	Command     string `json:"command,omitempty"`
	Graceful    bool   `json:"graceful,omitempty"`
	WarnMinutes int    `json:"warn_minutes,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req serverActionRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	if err := s.control.Start(req.Instance); err != nil {
		s.respondError(w, statusForControlError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "started", "instance": req.Instance})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req serverActionRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	var err error
	if req.Graceful {
		err = s.updater.GracefulStop(req.Instance, req.WarnMinutes)
	} else {
		err = s.control.Stop(req.Instance)
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "stopped", "instance": req.Instance})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req serverActionRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	if req.Command == "" {
		s.respondError(w, http.StatusBadRequest, "command is required")
		return
	}
	if err := s.control.SendCommand(req.Instance, req.Command); err != nil {
		s.respondError(w, statusForControlError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type updateRequest struct {
	Instance    string   `json:"instance,omitempty"`
	Patchline   string   `json:"patchline,omitempty"`
	Graceful    bool     `json:"graceful,omitempty"`
	WarnMinutes int      `json:"warn_minutes,omitempty"`
	Stage       bool     `json:"stage,omitempty"`
	Filter      []string `json:"filter,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	if req.Instance == "" {
		s.respondError(w, http.StatusBadRequest, "instance is required")
		return
	}
	if !s.lister.Exists(req.Instance) {
		s.respondError(w, http.StatusNotFound, "unknown instance: "+req.Instance)
		return
	}
	if _, busy := s.updater.Guard().Active(); busy {
		s.respondError(w, http.StatusConflict, update.ErrUpdateInProgress.Error())
		return
	}

	patchline := req.Patchline
	if patchline == "" {
		patchline = instances.DefaultPatchline
	}
	opts := update.ApplyOptions{Graceful: req.Graceful, WarnMinutes: req.WarnMinutes}

	// Updates run long; the request only kicks them off. Progress and
	// the outcome are consumed from the update event stream.
	go func() {
		var err error
		if req.Stage {
			err = s.updater.Stage(context.Background(), req.Instance, patchline)
		} else {
			err = s.updater.Apply(context.Background(), req.Instance, patchline, opts)
		}
		if err != nil {
			s.logger.Error("update failed", "instance", req.Instance, "error", err)
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"events": "/api/events/update",
	})
}

func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	if _, busy := s.updater.Guard().Active(); busy {
		s.respondError(w, http.StatusConflict, update.ErrUpdateInProgress.Error())
		return
	}

	opts := update.ApplyOptions{Graceful: req.Graceful, WarnMinutes: req.WarnMinutes}
	go func() {
		if _, err := s.updater.UpdateAll(context.Background(), req.Filter, opts); err != nil {
			s.logger.Error("fleet update failed", "error", err)
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"events": "/api/events/update",
	})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	statuses, err := s.updater.Status(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"instances": statuses})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries := s.logs.GetAll()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"logs":  entries,
	})
}

func (s *Server) handleConsoleEvents(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/events/console/")
	if name == "" || strings.Contains(name, "/") {
		s.respondError(w, http.StatusBadRequest, "instance name required")
		return
	}
	s.serveStream(w, r, events.ConsoleKey(name))
}

func (s *Server) handleUpdateEvents(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, events.UpdateKey)
}

func (s *Server) decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func statusForControlError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isAny(err, supervisor.ErrNoInstanceSelected, supervisor.ErrNotInstalled):
		return http.StatusBadRequest
	case isAny(err, supervisor.ErrAlreadyRunning, supervisor.ErrNotRunning, update.ErrUpdateInProgress):
		return http.StatusConflict
	case isAny(err, supervisor.ErrJavaNotFound):
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
