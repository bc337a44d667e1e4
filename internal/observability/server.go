// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept connections.
type ReadinessChecker func() bool

// Login outcome labels for Metrics.LoginsTotal.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginError   = "error"
)

// Password reset phase labels for Metrics.PasswordResetsTotal.
const (
	ResetPhaseIssued  = "issued"
	ResetPhaseApplied = "applied"
	ResetPhaseDenied  = "denied"
)

// Metrics contains custom Prometheus metrics for Gatewarden.
type Metrics struct {
	// RegistrationsTotal counts account registrations by status
	// ("success", "duplicate", "invalid", "error").
	RegistrationsTotal *prometheus.CounterVec

	// LoginsTotal counts login attempts by outcome.
	LoginsTotal *prometheus.CounterVec

	// SessionsActive gauges currently live sessions. Only tracked for
	// registry-backed policies; the single-session policy leaves it at zero.
	SessionsActive prometheus.Gauge

	// PasswordResetsTotal counts reset flow events by phase.
	PasswordResetsTotal *prometheus.CounterVec

	// RequestsTotal counts HTTP requests by method, path, and status.
	RequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers custom Gatewarden metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewarden_registrations_total",
				Help: "Total number of registration attempts by status",
			},
			[]string{"status"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewarden_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"status"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatewarden_sessions_active",
				Help: "Number of currently live sessions",
			},
		),
		PasswordResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewarden_password_resets_total",
				Help: "Total number of password reset events by phase",
			},
			[]string{"phase"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewarden_requests_total",
				Help: "Total number of HTTP requests by method, path, and status",
			},
			[]string{"method", "path", "status"},
		),
	}

	reg.MustRegister(m.RegistrationsTotal)
	reg.MustRegister(m.LoginsTotal)
	reg.MustRegister(m.SessionsActive)
	reg.MustRegister(m.PasswordResetsTotal)
	reg.MustRegister(m.RequestsTotal)

	return m
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9090", ":9090" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Create a new registry to avoid polluting the global one
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}
}

// Metrics returns the custom metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
// Callers should monitor this channel to detect server failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health probes
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	// Atomically transition from running to stopped so a concurrent Start()
	// cannot slip in between the check and the store.
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept connections,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
