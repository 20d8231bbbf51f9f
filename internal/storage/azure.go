package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ storage.Source     = (*AzureStore)(nil)
	_ storage.SinkOpener = (*AzureStore)(nil)
)

const (
	azureBlockSize   = 4 * 1024 * 1024
	azureConcurrency = 2
)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// azureBlobs is the blob access AzureStore needs from the client.
type azureBlobs interface {
	Download(ctx context.Context, container, blob string) (io.ReadCloser, error)
	Upload(ctx context.Context, container, blob string, body io.Reader) error
}

type azureClient struct {
	client *azblob.Client
}

func (c azureClient) Download(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c azureClient) Upload(ctx context.Context, container, blob string, body io.Reader) error {
	_, err := c.client.UploadStream(ctx, container, blob, body, &azblob.UploadStreamOptions{
		BlockSize:   azureBlockSize,
		Concurrency: azureConcurrency,
	})
	return err
}

// AzureStore reads schemas from and streams container files to Azure Blob
// Storage. Locations are wasbs://container/blob; an empty container uses
// the configured one.
type AzureStore struct {
	blobs         azureBlobs
	containerName string
	logger        *slog.Logger
	metrics       MetricsCollector
}

// NewAzureStore creates a new Azure Blob store using shared key credentials.
func NewAzureStore(cfg AzureConfig, logger *slog.Logger, metrics MetricsCollector) (*AzureStore, error) {
	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure store created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
	)

	return newAzureStore(azureClient{client: client}, cfg.ContainerName, logger, metrics), nil
}

func newAzureStore(blobs azureBlobs, containerName string, logger *slog.Logger, metrics MetricsCollector) *AzureStore {
	return &AzureStore{
		blobs:         blobs,
		containerName: containerName,
		logger:        logger,
		metrics:       metrics,
	}
}

// Open downloads the blob at location.
func (s *AzureStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	container, blob, err := s.resolve(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}

	body, err := s.blobs.Download(ctx, container, blob)
	if err != nil {
		s.incErrors("open")
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}
	return body, nil
}

// Create starts a block blob upload to location. Blocks are committed
// when the sink is closed.
func (s *AzureStore) Create(ctx context.Context, location string) (storage.Sink, error) {
	container, blob, err := s.resolve(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "create", Path: location, Err: err}
	}

	upload := func(ctx context.Context, body io.Reader) error {
		return s.blobs.Upload(ctx, container, blob, body)
	}
	return newPipeSink(ctx, "azure", location, upload, s.metrics), nil
}

func (s *AzureStore) resolve(location string) (container, blob string, err error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", "", err
	}
	if loc.Scheme != SchemeAzure {
		return "", "", fmt.Errorf("%w: %s is not a wasbs location", apperrors.ErrUnsupportedScheme, location)
	}

	container = loc.Bucket
	if container == "" {
		container = s.containerName
	}
	if container == "" || loc.Key == "" {
		return "", "", fmt.Errorf("wasbs location needs a container and a blob: %s", location)
	}
	return container, loc.Key, nil
}

func (s *AzureStore) incErrors(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("azure", op)
	}
}
