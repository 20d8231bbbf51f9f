// Package server implements HTTP server for health checks and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default endpoint paths.
const (
	DefaultLivenessPath  = "/health/live"
	DefaultReadinessPath = "/health/ready"
	DefaultMetricsPath   = "/metrics"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Config configures listen ports and endpoint paths. Empty paths use the
// defaults.
type Config struct {
	HealthPort    int
	MetricsPort   int
	LivenessPath  string
	ReadinessPath string
	MetricsPath   string
}

// Server represents the HTTP server for health and metrics.
type Server struct {
	healthServer  *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(
	config Config,
	healthChecker HealthChecker,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.HealthPort),
		Handler:      HealthHandler(config, healthChecker, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.MetricsPort),
		Handler:      MetricsHandler(config, registry),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &Server{
		healthServer:  healthServer,
		metricsServer: metricsServer,
		logger:        logger,
	}
}

// HealthHandler routes the liveness and readiness probes.
func HealthHandler(config Config, checker HealthChecker, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+orDefault(config.LivenessPath, DefaultLivenessPath), LivenessHandler(checker, logger))
	mux.HandleFunc("GET "+orDefault(config.ReadinessPath, DefaultReadinessPath), ReadinessHandler(checker, logger))
	return mux
}

// MetricsHandler serves registry in the Prometheus exposition format.
func MetricsHandler(config Config, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(orDefault(config.MetricsPath, DefaultMetricsPath), promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry: registry,
	}))
	return mux
}

func orDefault(path, def string) string {
	if path == "" {
		return def
	}
	return path
}

// Start starts both HTTP servers.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("starting health server", "addr", s.healthServer.Addr)
		if err := s.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server failed", "error", err)
		}
	}()

	go func() {
		s.logger.Info("starting metrics server", "addr", s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.healthServer.Shutdown(ctx)
	}()

	go func() {
		errChan <- s.metricsServer.Shutdown(ctx)
	}()

	var lastErr error
	for i := 0; i < 2; i++ {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}
