package adminserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rauhl/conductor/internal/lifecycle"
	"github.com/rauhl/conductor/internal/logging"
	"github.com/rauhl/conductor/internal/status"
)

const (
	// shutdownGrace bounds the HTTP server's own drain when the component
	// is stopped. The component ctx can cut it shorter.
	shutdownGrace = 5 * time.Second

	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second

	// detailedEventLimit caps the journal slice returned by
	// /api/v1/status?detailed=1.
	detailedEventLimit = 100
)

// ShutdownMode selects how the daemon should come down.
type ShutdownMode string

const (
	ShutdownGraceful ShutdownMode = "graceful"
	ShutdownForce    ShutdownMode = "force"
)

// ShutdownRequest is an operator-initiated shutdown, queued by the shutdown
// endpoint and consumed by the daemon main loop. The server itself never
// drives a lifecycle transition.
type ShutdownRequest struct {
	Mode ShutdownMode
	// Timeout overrides the daemon's configured shutdown timeout when
	// positive. Only meaningful for graceful mode.
	Timeout time.Duration
}

// Server exposes the daemon's control plane over HTTP: health and readiness
// probes, status snapshots, remote shutdown, and Prometheus metrics.
type Server struct {
	addr        string
	server      *http.Server
	router      *http.ServeMux
	logger      *logging.Logger
	coordinator *lifecycle.Coordinator
	aggregator  *status.Aggregator
	gatherer    prometheus.Gatherer
	requests    chan ShutdownRequest

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates an admin server listening on addr once started.
// The gatherer backs /metrics and may be nil to serve the default registry.
func NewServer(addr string, coordinator *lifecycle.Coordinator, aggregator *status.Aggregator, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		addr:        addr,
		router:      http.NewServeMux(),
		logger:      logging.GetLogger("adminserver"),
		coordinator: coordinator,
		aggregator:  aggregator,
		gatherer:    gatherer,
		requests:    make(chan ShutdownRequest, 1),
	}

	s.registerHandlers()

	s.server = &http.Server{
		Handler:           s.corsMiddleware(s.logRequests(s.router)),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return s
}

// registerHandlers wires all routes onto the router.
func (s *Server) registerHandlers() {
	s.router.HandleFunc("/healthz", s.withMethod(http.MethodGet, s.handleHealthz))
	s.router.HandleFunc("/readyz", s.withMethod(http.MethodGet, s.handleReadyz))
	s.router.HandleFunc("/api/v1/status", s.withMethod(http.MethodGet, s.handleStatus))
	s.router.HandleFunc("/api/v1/shutdown", s.withMethod(http.MethodPost, s.handleShutdown))
	s.router.Handle("/metrics", s.metricsHandler())
}

// Name implements the lifecycle.Component interface.
func (s *Server) Name() string {
	return "admin-server"
}

// Start implements the lifecycle.Component interface. It binds the listen
// address synchronously so a port conflict fails the daemon startup, then
// serves in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind admin listener on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Admin server listening on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin server error: %v", err)
		}
	}()

	return nil
}

// Stop implements the lifecycle.Component interface. It drains in-flight
// requests for up to shutdownGrace, racing the component ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping admin server...")

	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		done <- s.server.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("Admin server shutdown error: %v", err)
			return err
		}
		s.logger.Info("Admin server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Admin server shutdown timeout")
		_ = s.server.Close()
		return ctx.Err()
	}
}

// Addr returns the bound listen address, or the configured address before
// Start. With a ":0" configuration the bound form carries the real port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ShutdownRequests returns the channel the daemon main loop consumes.
// Capacity one: a pending request is enough, duplicates are dropped.
func (s *Server) ShutdownRequests() <-chan ShutdownRequest {
	return s.requests
}
