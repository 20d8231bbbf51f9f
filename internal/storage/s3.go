package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ storage.Source     = (*S3Store)(nil)
	_ storage.SinkOpener = (*S3Store)(nil)
)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3API is the subset of the S3 client used for reads.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Uploader streams object bodies, using multipart upload for large ones.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store reads schemas from and streams container files to S3.
// Locations without a bucket use the configured default bucket.
type S3Store struct {
	client      S3API
	uploader    S3Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
	metrics     MetricsCollector
}

// NewS3Store creates a new S3 store from the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) (*S3Store, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 2
	})

	logger.Info("S3 store created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	return newS3Store(s3Client, uploader, cfg, logger, metrics), nil
}

func newS3Store(client S3API, uploader S3Uploader, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) *S3Store {
	return &S3Store{
		client:      client,
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
		metrics:     metrics,
	}
}

// Open fetches the object at location.
func (s *S3Store) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := s.resolve(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.incErrors("open")
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}
	return out.Body, nil
}

// Create starts a streaming upload to location. The object appears once
// the sink is closed.
func (s *S3Store) Create(ctx context.Context, location string) (storage.Sink, error) {
	bucket, key, err := s.resolve(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "create", Path: location, Err: err}
	}

	upload := func(ctx context.Context, body io.Reader) error {
		input := &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(avroContentType),
		}
		if s.sseEnabled {
			if s.sseKMSKeyID != "" {
				input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
				input.SSEKMSKeyId = aws.String(s.sseKMSKeyID)
			} else {
				input.ServerSideEncryption = types.ServerSideEncryptionAes256
			}
		}

		result, err := s.uploader.Upload(ctx, input)
		if err != nil {
			return err
		}
		s.logger.Debug("S3 upload complete",
			"bucket", bucket,
			"key", key,
			"location", result.Location,
		)
		return nil
	}

	return newPipeSink(ctx, "s3", location, upload, s.metrics), nil
}

func (s *S3Store) resolve(location string) (bucket, key string, err error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", "", err
	}
	if loc.Scheme != SchemeS3 {
		return "", "", fmt.Errorf("%w: %s is not an s3 location", apperrors.ErrUnsupportedScheme, location)
	}

	bucket = loc.Bucket
	if bucket == "" {
		bucket = s.bucket
	}
	if bucket == "" || loc.Key == "" {
		return "", "", fmt.Errorf("s3 location needs a bucket and a key: %s", location)
	}
	return bucket, loc.Key, nil
}

func (s *S3Store) incErrors(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("s3", op)
	}
}
