// Package server exposes /health, /status and /metrics for the live trader.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"walkforward/internal/core"
	"walkforward/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthMonitor reports component health.
type HealthMonitor interface {
	GetStatus() map[string]string
	IsHealthy() bool
}

type HealthServer struct {
	port   int
	logger core.ILogger
	srv    *http.Server
	mu     sync.RWMutex
	status map[string]string
	hm     HealthMonitor
	now    func() time.Time
}

// NewHealthServer creates the server. hm may be nil.
func NewHealthServer(port int, logger core.ILogger, hm HealthMonitor) *HealthServer {
	return &HealthServer{
		port:   port,
		logger: logger.WithField("component", "health_server"),
		status: make(map[string]string),
		hm:     hm,
		now:    time.Now,
	}
}

// Handler returns the mux serving all endpoints.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start binds the port and serves in the background.
func (s *HealthServer) Start() error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting health server", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Health server failed", "error", err)
		}
	}()
	return nil
}

func (s *HealthServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping health server")
	return s.srv.Shutdown(ctx)
}

// UpdateStatus sets a free-form key shown on /status.
func (s *HealthServer) UpdateStatus(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = value
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics := telemetry.GetGlobalMetrics()

	health := map[string]interface{}{
		"status": "ok",
		"time":   s.now().UTC(),
		"metrics": map[string]interface{}{
			"equity":               metrics.GetEquity(),
			"cooldowns":            metrics.GetCooldowns(),
			"circuit_breaker_open": metrics.IsCircuitBreakerOpen(),
		},
	}

	code := http.StatusOK
	if s.hm != nil {
		health["components"] = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			health["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn("Failed to encode health", "error", err)
	}
}

func (s *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	merged := make(map[string]string, len(s.status))
	for k, v := range s.status {
		merged[k] = v
	}
	s.mu.RUnlock()

	if s.hm != nil {
		for k, v := range s.hm.GetStatus() {
			merged[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(merged); err != nil {
		s.logger.Warn("Failed to encode status", "error", err)
	}
}
