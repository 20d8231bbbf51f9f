// Package storage implements schema sources and container file sinks for
// the local filesystem, S3, Google Cloud Storage, Azure Blob Storage and
// HTTP.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// Location schemes.
const (
	SchemeFile  = "file"
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
	SchemeAzure = "wasbs"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

const avroContentType = "application/avro"

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncStorageErrors(backend string, operation string)
}

// Location is a parsed storage address.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation splits raw into scheme, bucket and key.
// A bare path is a file location. For http(s) the key is the full URL.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}

	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return Location{Scheme: SchemeFile, Key: raw}, nil
	}

	scheme = strings.ToLower(scheme)
	switch scheme {
	case SchemeFile:
		return Location{Scheme: SchemeFile, Key: rest}, nil
	case SchemeHTTP, SchemeHTTPS:
		return Location{Scheme: scheme, Key: raw}, nil
	case SchemeS3, SchemeGCS, SchemeAzure:
		bucket, key, _ := strings.Cut(rest, "/")
		return Location{Scheme: scheme, Bucket: bucket, Key: strings.TrimPrefix(key, "/")}, nil
	default:
		return Location{}, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedScheme, scheme)
	}
}

// Mux dispatches locations to the backend registered for their scheme.
type Mux struct {
	sources map[string]storage.Source
	sinks   map[string]storage.SinkOpener
}

// Ensure implementation satisfies interfaces at compile time.
var (
	_ storage.Source     = (*Mux)(nil)
	_ storage.SinkOpener = (*Mux)(nil)
)

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{
		sources: make(map[string]storage.Source),
		sinks:   make(map[string]storage.SinkOpener),
	}
}

// RegisterSource serves reads for scheme from src.
func (m *Mux) RegisterSource(scheme string, src storage.Source) {
	m.sources[scheme] = src
}

// RegisterSink serves new files for scheme from opener.
func (m *Mux) RegisterSink(scheme string, opener storage.SinkOpener) {
	m.sinks[scheme] = opener
}

// Register serves both reads and new files for scheme from backend.
func (m *Mux) Register(scheme string, backend interface {
	storage.Source
	storage.SinkOpener
}) {
	m.RegisterSource(scheme, backend)
	m.RegisterSink(scheme, backend)
}

// Open reads location through the backend for its scheme.
func (m *Mux) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}
	src, ok := m.sources[loc.Scheme]
	if !ok {
		return nil, &apperrors.StorageError{
			Operation: "open",
			Path:      location,
			Err:       fmt.Errorf("%w: no source for %s", apperrors.ErrUnsupportedScheme, loc.Scheme),
		}
	}
	return src.Open(ctx, location)
}

// Create opens a new file at location through the backend for its scheme.
func (m *Mux) Create(ctx context.Context, location string) (storage.Sink, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "create", Path: location, Err: err}
	}
	opener, ok := m.sinks[loc.Scheme]
	if !ok {
		return nil, &apperrors.StorageError{
			Operation: "create",
			Path:      location,
			Err:       fmt.Errorf("%w: no sink for %s", apperrors.ErrUnsupportedScheme, loc.Scheme),
		}
	}
	return opener.Create(ctx, location)
}

// pipeSink streams writes into an upload running in its own goroutine.
// Object stores only publish the object once the upload completes, so an
// aborted upload leaves nothing behind.
type pipeSink struct {
	backend  string
	location string
	pw       *io.PipeWriter
	done     chan error
	metrics  MetricsCollector

	once     sync.Once
	closeErr error
}

type uploadFunc func(ctx context.Context, body io.Reader) error

func newPipeSink(ctx context.Context, backend, location string, upload uploadFunc, metrics MetricsCollector) *pipeSink {
	pr, pw := io.Pipe()
	s := &pipeSink{
		backend:  backend,
		location: location,
		pw:       pw,
		done:     make(chan error, 1),
		metrics:  metrics,
	}

	// Uploads outlive the caller's context; only Abort stops them.
	uploadCtx := context.WithoutCancel(ctx)
	go func() {
		err := upload(uploadCtx, pr)
		pr.CloseWithError(err)
		s.done <- err
	}()
	return s
}

func (s *pipeSink) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	if err != nil {
		s.incErrors("write")
	}
	return n, err
}

// Flush is a no-op: parts are sent as the uploader fills them.
func (s *pipeSink) Flush() error {
	return nil
}

func (s *pipeSink) Close() error {
	s.once.Do(func() {
		s.pw.Close()
		if err := <-s.done; err != nil {
			s.incErrors("upload")
			s.closeErr = fmt.Errorf("failed to upload %s: %w", s.location, err)
		}
	})
	return s.closeErr
}

func (s *pipeSink) Abort(cause error) error {
	s.once.Do(func() {
		if cause == nil {
			cause = fmt.Errorf("upload aborted")
		}
		s.pw.CloseWithError(cause)
		<-s.done
	})
	return nil
}

func (s *pipeSink) incErrors(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors(s.backend, op)
	}
}
