// Package server exposes the runner over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"pharosbot/internal/coordinator"
	"pharosbot/internal/core"
	"pharosbot/internal/runstate"

	"go.uber.org/zap"
)

const (
	maxBodyBytes    = 4 << 10
	shutdownTimeout = 5 * time.Second
)

// Runner is the part of coordinator.Runner the server drives.
type Runner interface {
	Start(ctx context.Context, inviteCode string) error
	Stop()
	Status() runstate.Snapshot
}

// EventSource serves progress events by sequence number.
type EventSource interface {
	EventsSince(since int) ([]core.Event, int)
}

// Options configures New. Runner and Events are required.
type Options struct {
	Runner Runner
	Events EventSource
	Logger *zap.Logger
	// BaseContext bounds runs started over HTTP. Request contexts end with
	// the response, so runs never use them. Defaults to context.Background.
	BaseContext context.Context
}

// Server routes the control API to the runner.
type Server struct {
	runner Runner
	events EventSource
	log    *zap.Logger
	base   context.Context
	mux    *http.ServeMux
}

func New(opts Options) *Server {
	s := &Server{
		runner: opts.Runner,
		events: opts.Events,
		log:    opts.Logger,
		base:   opts.BaseContext,
		mux:    http.NewServeMux(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.base == nil {
		s.base = context.Background()
	}
	s.mux.HandleFunc("POST /api/tasks/start", s.handleStart)
	s.mux.HandleFunc("POST /api/tasks/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/tasks/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/tasks/logs", s.handleLogs)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("control server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

type startRequest struct {
	InviteCode string `json:"invite_code"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if err := s.runner.Start(s.base, req.InviteCode); err != nil {
		if errors.Is(err, coordinator.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error("start failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("run started over http", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

type eventJSON struct {
	Address   string     `json:"address"`
	Step      string     `json:"step"`
	Message   string     `json:"message"`
	Level     core.Level `json:"level"`
	Timestamp int64      `json:"timestamp"`
}

type logsResponse struct {
	Next   int         `json:"next"`
	Events []eventJSON `json:"events"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}

	events, next := s.events.EventsSince(since)
	resp := logsResponse{Next: next, Events: make([]eventJSON, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventJSON{
			Address:   e.Address,
			Step:      e.Step,
			Message:   e.Message,
			Level:     e.Level,
			Timestamp: e.TimestampMillis(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
