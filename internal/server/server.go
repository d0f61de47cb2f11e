// Package server exposes the admin HTTP surface: health, status and the
// manual sync action. It is deliberately small; all reconcile behavior lives
// behind the Manager interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/config"
	"github.com/canonical/cos-configuration-k8s-operator/internal/reconciler"
	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"
)

const subsystem = "AdminServer"

const (
	// DefaultReadHeaderTimeout is the timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a full response write. Generous because the
	// sync action blocks for up to the one-shot timeout.
	DefaultWriteTimeout = 120 * time.Second
	// DefaultIdleTimeout is the idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
)

// Manager is the part of the reconcile manager the admin server needs.
type Manager interface {
	SyncNow(ctx context.Context) error
	Status() reconciler.Status
	Metrics() reconciler.Snapshot
}

// Server serves the admin endpoints over plain HTTP.
type Server struct {
	manager Manager
	httpSrv *http.Server
	addr    string
}

// New creates an admin server bound to cfg.Server.
func New(cfg config.ServerConfig, manager Manager) *Server {
	s := &Server{
		manager: manager,
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /-/healthy", s.handleHealthy)
	mux.HandleFunc("GET /-/status", s.handleStatus)
	mux.HandleFunc("POST /-/sync", s.handleSync)

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the admin HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info(subsystem, "Listening on %s", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	logging.Info(subsystem, "Stopped")
	return nil
}

// StatusResponse is the body of GET /-/status.
type StatusResponse struct {
	Status  reconciler.Status   `json:"status"`
	Metrics reconciler.Snapshot `json:"metrics"`
}

// SyncResponse is the body of POST /-/sync.
type SyncResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
	State  string `json:"state"`
}

func (s *Server) handleHealthy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  s.manager.Status(),
		Metrics: s.manager.Metrics(),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	err := s.manager.SyncNow(r.Context())
	state := string(s.manager.Status().State)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SyncResponse{Result: "synced", State: state})
	case isUnconfigured(err):
		writeJSON(w, http.StatusConflict, SyncResponse{Result: "rejected", Error: err.Error(), State: state})
	default:
		logging.Warn(subsystem, "Manual sync failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, SyncResponse{Result: "failed", Error: err.Error(), State: state})
	}
}

func isUnconfigured(err error) bool {
	var verr *config.ValidationError
	return errors.As(err, &verr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error(subsystem, err, "Encoding response")
	}
}
