// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafavrosink/pkg/event"
)

// Sentinel errors for common conditions.
var (
	ErrMissingOption      = errors.New("required option is missing")
	ErrUnknownCodec       = errors.New("unknown compression codec")
	ErrCodecUnavailable   = errors.New("compression codec not available")
	ErrReopenUnsupported  = errors.New("container files cannot be reopened for append")
	ErrNotConfigured      = errors.New("serializer is not configured")
	ErrNotCreated         = errors.New("container file has not been created")
	ErrAlreadyCreated     = errors.New("container file already created")
	ErrWriterClosed       = errors.New("container writer is closed")
	ErrUnsupportedScheme  = errors.New("unsupported location scheme")
	ErrConsumerClosed     = errors.New("consumer is closed")
	ErrPipelineClosed     = errors.New("pipeline is closed")
	ErrConnectionLost     = errors.New("connection lost")
	ErrAlreadyConfigured  = errors.New("serializer already configured")
	ErrInvalidCodecOption = errors.New("invalid compression codec option")
)

// ConfigurationError is returned when the serializer cannot be configured.
// No partially configured writer survives it.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: key=%s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: key=%s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SchemaLoadError represents a failure to read or parse a schema location.
type SchemaLoadError struct {
	Location string
	Err      error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("schema load error: location=%s: %v", e.Location, e.Err)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Err
}

// CodecResolutionError describes a codec name that could not be honoured.
// It is logged and recovered from, never returned to callers.
type CodecResolutionError struct {
	Codec string
	Err   error
}

func (e *CodecResolutionError) Error() string {
	return fmt.Sprintf("codec resolution error: codec=%s: %v", e.Codec, e.Err)
}

func (e *CodecResolutionError) Unwrap() error {
	return e.Err
}

// UnsupportedLifecycleError is raised for transitions the writer never allows.
type UnsupportedLifecycleError struct {
	Operation string
}

func (e *UnsupportedLifecycleError) Error() string {
	return fmt.Sprintf("unsupported lifecycle operation: %s: %v", e.Operation, ErrReopenUnsupported)
}

func (e *UnsupportedLifecycleError) Unwrap() error {
	return ErrReopenUnsupported
}

// SequencingError is returned when an operation is called out of order.
type SequencingError struct {
	Operation string
	State     string
	Err       error
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("sequencing error: operation=%s state=%s: %v", e.Operation, e.State, e.Err)
}

func (e *SequencingError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage operation failure. Partial is set
// when some bytes reached the destination before the failure.
type StorageError struct {
	Operation string
	Path      string
	Partial   bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ProcessingError represents an error while writing a consumed event.
type ProcessingError struct {
	PartitionID event.PartitionID
	Offset      int64
	Err         error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: partition=%s offset=%d: %v",
		e.PartitionID, e.Offset, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable reports whether the failed storage operation may succeed if
// the caller starts a new file. A partial write never is: the destination
// already holds a torn frame.
func (e *StorageError) IsRetryable() bool {
	if e.Partial {
		return false
	}
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create" || e.Operation == "flush"
}

// IsRetryable determines if a ProcessingError is retryable.
func (e *ProcessingError) IsRetryable() bool {
	return IsRetryable(e.Err)
}

// IsRetryable is always false: configuration does not heal on its own.
func (e *ConfigurationError) IsRetryable() bool {
	return false
}

// IsRetryable is always false: calling out of order is a caller bug.
func (e *SequencingError) IsRetryable() bool {
	return false
}
