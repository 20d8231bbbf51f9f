package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Probe status values.
const (
	StatusAlive    = "alive"
	StatusFailed   = "failed"
	StatusReady    = "ready"
	StatusNotReady = "not ready"
)

// HealthResponse is the body of both probes. Checks carries the checker's
// per-component status.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler fails once the pipeline has stopped on an error, so the
// process gets restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker.Liveness() {
			writeProbe(w, logger, http.StatusOK, StatusAlive, nil)
			return
		}
		writeProbe(w, logger, http.StatusServiceUnavailable, StatusFailed, checker.GetStatus())
	}
}

// ReadinessHandler passes while the consumer holds its group session.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, status := http.StatusOK, StatusReady
		if !checker.Readiness(r.Context()) {
			code, status = http.StatusServiceUnavailable, StatusNotReady
		}
		writeProbe(w, logger, code, status, checker.GetStatus())
	}
}

func writeProbe(w http.ResponseWriter, logger *slog.Logger, code int, status string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode probe response", "status", status, "error", err)
	}
}
