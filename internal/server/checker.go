package server

import (
	"context"
	"strconv"
	"sync/atomic"
)

// ReadinessSource reports whether the Kafka consumer holds a group session.
type ReadinessSource interface {
	Ready() bool
}

// FileCounter reports how many container files are open.
type FileCounter interface {
	OpenFiles() int
}

// Checker derives health from the consumer and the pipeline.
// It stays alive until MarkFailed is called.
type Checker struct {
	consumer ReadinessSource
	files    FileCounter
	failed   atomic.Bool
}

var _ HealthChecker = (*Checker)(nil)

// NewChecker creates a checker. files may be nil.
func NewChecker(consumer ReadinessSource, files FileCounter) *Checker {
	return &Checker{consumer: consumer, files: files}
}

// MarkFailed makes liveness fail so the process gets restarted.
func (c *Checker) MarkFailed() {
	c.failed.Store(true)
}

// Liveness is false once the pipeline failed.
func (c *Checker) Liveness() bool {
	return !c.failed.Load()
}

// Readiness is true while the consumer holds a group session.
func (c *Checker) Readiness(_ context.Context) bool {
	return c.Liveness() && c.consumer.Ready()
}

// IsHealthy is true when both probes pass.
func (c *Checker) IsHealthy() bool {
	return c.Readiness(context.Background())
}

// GetStatus reports per-component state.
func (c *Checker) GetStatus() map[string]string {
	status := map[string]string{
		"consumer": "not_joined",
		"pipeline": "running",
	}
	if c.consumer.Ready() {
		status["consumer"] = "joined"
	}
	if c.failed.Load() {
		status["pipeline"] = "failed"
	}
	if c.files != nil {
		status["open_files"] = strconv.Itoa(c.files.OpenFiles())
	}
	return status
}
