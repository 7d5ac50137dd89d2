package adminserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rauhl/conductor/internal/lifecycle"
	"github.com/rauhl/conductor/internal/status"
)

// StatusResponse is the body of GET /api/v1/status. Events is populated only
// when detailed output is requested.
type StatusResponse struct {
	status.Snapshot
	Events []lifecycle.Event `json:"events,omitempty"`
}

// ShutdownResponse is the body of a successful POST /api/v1/shutdown.
type ShutdownResponse struct {
	Accepted       bool         `json:"accepted"`
	Mode           ShutdownMode `json:"mode"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`
}

// shutdownPayload is the request body of POST /api/v1/shutdown.
type shutdownPayload struct {
	Mode           string `json:"mode"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// handleHealthz reports liveness: the server answers, nothing more.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness: 200 only while the coordinator is running.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ready := s.coordinator.State() == lifecycle.StateRunning

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = writeJSON(w, map[string]bool{"ready": ready})
}

// handleStatus returns a point-in-time snapshot. With ?detailed=1 the
// response also carries recent journal events.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Snapshot: s.aggregator.Snapshot(r.Context()),
	}

	detailed := r.URL.Query().Get("detailed")
	if detailed == "1" || detailed == "true" {
		response.Events = s.coordinator.Events(detailedEventLimit)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, response)
}

// handleShutdown queues a shutdown request for the daemon main loop and
// responds 202. The actual transition happens outside the request path so
// the response can be written before the server itself is torn down.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var payload shutdownPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	mode := ShutdownMode(payload.Mode)
	if mode == "" {
		mode = ShutdownGraceful
	}
	if mode != ShutdownGraceful && mode != ShutdownForce {
		writeError(w, http.StatusBadRequest, "INVALID_MODE",
			fmt.Sprintf("Mode must be %q or %q, got %q", ShutdownGraceful, ShutdownForce, payload.Mode))
		return
	}

	if payload.TimeoutSeconds < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_TIMEOUT", "timeout_seconds must not be negative")
		return
	}

	if state := s.coordinator.State(); state != lifecycle.StateRunning {
		writeError(w, http.StatusConflict, "NOT_RUNNING",
			fmt.Sprintf("Cannot shut down from state %q", state))
		return
	}

	request := ShutdownRequest{
		Mode:    mode,
		Timeout: time.Duration(payload.TimeoutSeconds) * time.Second,
	}

	select {
	case s.requests <- request:
		s.logger.Info("Shutdown requested via API (mode=%s, timeout=%s)", request.Mode, request.Timeout)
	default:
		s.logger.Warn("Shutdown already pending, dropping duplicate request")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = writeJSON(w, ShutdownResponse{
		Accepted:       true,
		Mode:           mode,
		TimeoutSeconds: payload.TimeoutSeconds,
	})
}

// metricsHandler serves the Prometheus exposition format.
func (s *Server) metricsHandler() http.Handler {
	if s.gatherer != nil {
		return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
