package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ storage.Source     = (*FileStore)(nil)
	_ storage.SinkOpener = (*FileStore)(nil)
	_ storage.Sink       = (*fileSink)(nil)
)

// inProgressSuffix marks files that are still being written.
const inProgressSuffix = ".inprogress"

const fileBufferSize = 64 * 1024

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileStore reads and writes local files. Relative paths are resolved
// against the base path; absolute paths are used as is.
type FileStore struct {
	basePath string
	logger   *slog.Logger
	metrics  MetricsCollector
}

// NewFileStore creates a new filesystem store.
func NewFileStore(config FileConfig, logger *slog.Logger, metrics MetricsCollector) (*FileStore, error) {
	if config.BasePath != "" {
		if err := os.MkdirAll(config.BasePath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create base path: %w", err)
		}
	}

	logger.Info("filesystem store created", "base_path", config.BasePath)

	return &FileStore{
		basePath: config.BasePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Path resolves location to a filesystem path.
func (s *FileStore) Path(location string) (string, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	if loc.Scheme != SchemeFile {
		return "", fmt.Errorf("%w: %s is not a file location", apperrors.ErrUnsupportedScheme, location)
	}
	if filepath.IsAbs(loc.Key) || s.basePath == "" {
		return filepath.Clean(loc.Key), nil
	}
	return filepath.Join(s.basePath, loc.Key), nil
}

// Open opens the file at location for reading.
func (s *FileStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	path, err := s.Path(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: location, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		s.incErrors("open")
		return nil, &apperrors.StorageError{Operation: "open", Path: path, Err: err}
	}
	return f, nil
}

// Create starts a new file at location. The file is written under a
// temporary name and renamed into place on Close. An existing file is
// never appended to or replaced.
func (s *FileStore) Create(_ context.Context, location string) (storage.Sink, error) {
	path, err := s.Path(location)
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "create", Path: location, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.incErrors("mkdir")
		return nil, &apperrors.StorageError{Operation: "create", Path: path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}
	if _, err := os.Stat(path); err == nil {
		return nil, &apperrors.StorageError{Operation: "create", Path: path, Err: os.ErrExist}
	}

	tmpPath := path + inProgressSuffix
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		s.incErrors("create")
		return nil, &apperrors.StorageError{Operation: "create", Path: tmpPath, Err: err}
	}

	return &fileSink{
		file:    f,
		w:       bufio.NewWriterSize(f, fileBufferSize),
		path:    path,
		tmpPath: tmpPath,
		store:   s,
	}, nil
}

func (s *FileStore) incErrors(op string) {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("file", op)
	}
}

type fileSink struct {
	file    *os.File
	w       *bufio.Writer
	path    string
	tmpPath string
	store   *FileStore
	done    bool
}

func (f *fileSink) Write(p []byte) (int, error) {
	if f.done {
		return 0, os.ErrClosed
	}
	n, err := f.w.Write(p)
	if err != nil {
		f.store.incErrors("write")
	}
	return n, err
}

func (f *fileSink) Flush() error {
	if f.done {
		return os.ErrClosed
	}
	if err := f.w.Flush(); err != nil {
		f.store.incErrors("flush")
		return err
	}
	return nil
}

func (f *fileSink) Close() error {
	if f.done {
		return nil
	}
	f.done = true

	err := errors.Join(f.w.Flush(), f.file.Sync(), f.file.Close())
	if err != nil {
		f.store.incErrors("close")
		os.Remove(f.tmpPath)
		return err
	}
	if err := os.Rename(f.tmpPath, f.path); err != nil {
		f.store.incErrors("rename")
		return err
	}
	return nil
}

func (f *fileSink) Abort(cause error) error {
	if f.done {
		return nil
	}
	f.done = true

	f.store.logger.Warn("discarding partial file",
		"path", f.tmpPath,
		"cause", cause,
	)
	return errors.Join(f.file.Close(), os.Remove(f.tmpPath))
}
