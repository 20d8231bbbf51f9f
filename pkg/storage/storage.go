// Package storage defines interfaces for schema sources and container file
// destinations.
//
// This package provides abstractions over the storage backends the writer
// reads schemas from and streams container files to (S3, GCS, Azure Blob,
// local filesystem).
package storage

import (
	"context"
	"io"

	"github.com/jittakal/kafavrosink/pkg/event"
)

// Source opens read-only byte streams addressed by a location string.
type Source interface {
	// Open returns a reader for the bytes stored at location.
	// The caller must close the returned reader.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Sink is an append-only destination for one container file.
// It never seeks backwards.
type Sink interface {
	io.Writer

	// Flush pushes buffered bytes towards the backend.
	Flush() error

	// Close finalizes the object and releases resources.
	Close() error

	// Abort discards the object. Bytes already written never become
	// visible at the final location. Close after Abort is a no-op.
	Abort(cause error) error
}

// SinkOpener creates sinks for new container files.
type SinkOpener interface {
	// Create opens a new, empty destination at location.
	Create(ctx context.Context, location string) (Sink, error)
}

// Router determines storage paths for container files.
type Router interface {
	// Route returns the directory location for a partition at a given time.
	// timestamp: Unix timestamp (seconds) representing the event time
	Route(partitionID event.PartitionID, timestamp int64) string

	// FileName returns a unique file name for a new container file.
	FileName(partitionID event.PartitionID) string
}

// RotationPolicy determines when to roll an open container file.
type RotationPolicy interface {
	// ShouldRotate returns true if the file should be closed based on stats.
	ShouldRotate(stats event.FileStats) bool
}
