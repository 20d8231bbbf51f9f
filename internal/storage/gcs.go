package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	pkgstorage "github.com/jittakal/kafavrosink/pkg/storage"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ pkgstorage.Source     = (*GCSStore)(nil)
	_ pkgstorage.SinkOpener = (*GCSStore)(nil)
	_ pkgstorage.Sink       = (*gcsSink)(nil)
)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// gcsObjects is the object access GCSStore needs from the client.
type gcsObjects interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	Close() error
}

type gcsClient struct {
	client *storage.Client
}

func (c gcsClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c gcsClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = avroContentType
	return w
}

func (c gcsClient) Close() error {
	return c.client.Close()
}

// GCSStore reads schemas from and streams container files to Google Cloud
// Storage.
type GCSStore struct {
	objects gcsObjects
	bucket  string
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewGCSStore creates a new Google Cloud Storage store.
func NewGCSStore(ctx context.Context, cfg GCSConfig, logger *slog.Logger, metrics MetricsCollector) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	if cfg.UseDefaultCredential {
		logger.Info("using default GCP credentials")
	} else if cfg.CredentialsJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	} else if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	} else {
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS store created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
	)

	return newGCSStore(gcsClient{client: client}, cfg.Bucket, logger, metrics), nil
}

func newGCSStore(objects gcsObjects, bucket string, logger *slog.Logger, metrics MetricsCollector) *GCSStore {
	return &GCSStore{
		objects: objects,
		bucket:  bucket,
		logger:  logger,
		metrics: metrics,
	}
}

// Open reads the object at location.
func (s *GCSStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, object, err := s.resolve(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}

	r, err := s.objects.NewReader(ctx, bucket, object)
	if err != nil {
		s.incErrors("open")
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}
	return r, nil
}

// Create starts a resumable upload to location.
func (s *GCSStore) Create(ctx context.Context, location string) (pkgstorage.Sink, error) {
	bucket, object, err := s.resolve(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "create", Path: location, Err: err}
	}

	// Cancelling the writer's context is how an upload is abandoned.
	uploadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &gcsSink{
		w:        s.objects.NewWriter(uploadCtx, bucket, object),
		cancel:   cancel,
		location: location,
		store:    s,
	}, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	s.logger.Info("closing GCS store")
	return s.objects.Close()
}

func (s *GCSStore) resolve(location string) (bucket, object string, err error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", "", err
	}
	if loc.Scheme != SchemeGCS {
		return "", "", fmt.Errorf("%w: %s is not a gs location", apperrors.ErrUnsupportedScheme, location)
	}

	bucket = loc.Bucket
	if bucket == "" {
		bucket = s.bucket
	}
	if bucket == "" || loc.Key == "" {
		return "", "", fmt.Errorf("gs location needs a bucket and an object: %s", location)
	}
	return bucket, loc.Key, nil
}

func (s *GCSStore) incErrors(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("gcs", op)
	}
}

type gcsSink struct {
	w        io.WriteCloser
	cancel   context.CancelFunc
	location string
	store    *GCSStore

	once     sync.Once
	closeErr error
}

func (g *gcsSink) Write(p []byte) (int, error) {
	n, err := g.w.Write(p)
	if err != nil {
		g.store.incErrors("write")
	}
	return n, err
}

// Flush is a no-op: the writer uploads in chunks on its own.
func (g *gcsSink) Flush() error {
	return nil
}

func (g *gcsSink) Close() error {
	g.once.Do(func() {
		defer g.cancel()
		if err := g.w.Close(); err != nil {
			g.store.incErrors("upload")
			g.closeErr = fmt.Errorf("failed to finalize %s: %w", g.location, err)
		}
	})
	return g.closeErr
}

func (g *gcsSink) Abort(cause error) error {
	g.once.Do(func() {
		g.cancel()
		g.w.Close()
		g.store.logger.Warn("abandoned GCS upload",
			"location", g.location,
			"cause", cause,
		)
	})
	return nil
}
