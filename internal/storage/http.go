package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

var _ storage.Source = (*HTTPSource)(nil)

// HTTPSource reads schemas served over http(s), e.g. from a registry.
type HTTPSource struct {
	client  *http.Client
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewHTTPSource creates an HTTP schema source.
func NewHTTPSource(timeout time.Duration, logger *slog.Logger, metrics MetricsCollector) *HTTPSource {
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// Open GETs location. Any status other than 200 is an error.
func (s *HTTPSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.incErrors("open")
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		s.incErrors("open")
		return nil, &apperrors.StorageError{
			Operation: "open",
			Path:      location,
			Err:       fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return resp.Body, nil
}

func (s *HTTPSource) incErrors(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("http", op)
	}
}
