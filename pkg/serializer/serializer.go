// Package serializer defines the capability interface a host pipeline uses
// to drive a container file writer, and the loosely typed configuration it
// is built from.
package serializer

import (
	"context"
	"io"
)

// EventSerializer writes already-encoded records to one container file.
//
// Calls must follow Configure, Create, then any number of Write and Flush,
// then Close exactly once. Implementations are not safe for concurrent use.
type EventSerializer interface {
	// Configure resolves the schema and codec from cfg. It must be called
	// exactly once, before Create.
	Configure(ctx context.Context, cfg Config) error

	// Create writes the file header to the destination.
	Create() error

	// Write appends one encoded record.
	Write(payload []byte) error

	// Flush seals the current block and flushes the destination.
	Flush() error

	// Close seals remaining data and releases the destination.
	Close() error

	// Reopen resumes a previously closed file for append.
	// Implementations that return false from SupportsReopen fail immediately.
	Reopen() error

	// SupportsReopen reports whether Reopen can succeed.
	SupportsReopen() bool
}

// Builder constructs configured serializers bound to a destination.
type Builder interface {
	Build(ctx context.Context, cfg Config, out io.Writer) (EventSerializer, error)
}
