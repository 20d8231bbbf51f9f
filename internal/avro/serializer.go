package avro

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jittakal/kafavrosink/internal/codec"
	"github.com/jittakal/kafavrosink/internal/container"
	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/internal/schema"
	"github.com/jittakal/kafavrosink/pkg/serializer"
)

// Option keys and defaults.
const (
	ContextSchemaPath        = "schema.path"
	ContextSyncIntervalBytes = "syncIntervalBytes"
	ContextCompressionCodec  = "compressionCodec"

	DefaultSyncIntervalBytes = 2048000
	DefaultCompressionCodec  = codec.Null

	// MaxSyncIntervalBytes bounds a single block.
	MaxSyncIntervalBytes = 1 << 30
)

// SchemaResolver loads a schema from a location.
type SchemaResolver interface {
	Resolve(ctx context.Context, location string) (*schema.Schema, error)
}

// CodecSelector maps a codec name to a compression strategy.
type CodecSelector interface {
	Select(name string) (codec.Codec, error)
}

// EventSerializer writes encoded records to one Avro container file.
type EventSerializer struct {
	out         io.Writer
	destination string
	resolver    SchemaResolver
	selector    CodecSelector
	logger      *slog.Logger
	metrics     container.MetricsCollector

	schema *schema.Schema
	writer *container.Writer
}

var _ serializer.EventSerializer = (*EventSerializer)(nil)

// Option configures an EventSerializer.
type Option func(*EventSerializer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *EventSerializer) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector passed to the container writer.
func WithMetrics(metrics container.MetricsCollector) Option {
	return func(s *EventSerializer) {
		s.metrics = metrics
	}
}

// WithDestination names the output in logs and errors.
func WithDestination(location string) Option {
	return func(s *EventSerializer) {
		s.destination = location
	}
}

// NewEventSerializer creates an unconfigured serializer writing to out.
func NewEventSerializer(out io.Writer, resolver SchemaResolver, selector CodecSelector, opts ...Option) *EventSerializer {
	s := &EventSerializer{
		out:      out,
		resolver: resolver,
		selector: selector,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure resolves the schema and codec named by cfg. On failure the
// serializer stays unconfigured and nothing has been written.
func (s *EventSerializer) Configure(ctx context.Context, cfg serializer.Config) error {
	if s.writer != nil {
		return &apperrors.SequencingError{
			Operation: "configure",
			State:     s.writer.State().String(),
			Err:       apperrors.ErrAlreadyConfigured,
		}
	}

	location := cfg.GetString(ContextSchemaPath, "")
	if location == "" {
		return &apperrors.ConfigurationError{
			Key:    ContextSchemaPath,
			Reason: "required option is not set",
			Err:    apperrors.ErrMissingOption,
		}
	}

	syncInterval, err := cfg.GetInt(ContextSyncIntervalBytes, DefaultSyncIntervalBytes)
	if err != nil {
		return &apperrors.ConfigurationError{
			Key:    ContextSyncIntervalBytes,
			Reason: "must be an integer",
			Err:    err,
		}
	}
	if syncInterval < 1 || syncInterval > MaxSyncIntervalBytes {
		return &apperrors.ConfigurationError{
			Key:    ContextSyncIntervalBytes,
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxSyncIntervalBytes, syncInterval),
		}
	}

	codecName := cfg.GetString(ContextCompressionCodec, DefaultCompressionCodec)

	sch, err := s.resolver.Resolve(ctx, location)
	if err != nil {
		return &apperrors.ConfigurationError{
			Key:    ContextSchemaPath,
			Reason: "schema could not be loaded",
			Err:    err,
		}
	}

	c, err := s.selector.Select(codecName)
	if err != nil {
		return err
	}

	s.schema = sch
	s.writer = container.NewWriter(c, syncInterval,
		container.WithLogger(s.logger),
		container.WithMetrics(s.metrics),
		container.WithLocation(s.destination),
	)

	s.logger.Debug("avro serializer configured",
		"destination", s.destination,
		"schema_location", location,
		"codec", c.Name(),
		"sync_interval_bytes", syncInterval,
	)
	return nil
}

// Create writes the container header.
func (s *EventSerializer) Create() error {
	if err := s.requireConfigured("create"); err != nil {
		return err
	}
	return s.writer.Create(s.schema, s.out)
}

// Write appends one record already encoded against the configured schema.
// The payload is not validated.
func (s *EventSerializer) Write(payload []byte) error {
	if err := s.requireConfigured("write"); err != nil {
		return err
	}
	return s.writer.AppendEncoded(payload)
}

// Flush seals the current block and flushes the destination.
func (s *EventSerializer) Flush() error {
	if err := s.requireConfigured("flush"); err != nil {
		return err
	}
	return s.writer.Flush()
}

// Close seals remaining records and closes the destination.
func (s *EventSerializer) Close() error {
	if err := s.requireConfigured("close"); err != nil {
		return err
	}
	return s.writer.Close()
}

// Reopen always fails: appending to an existing container would require
// reading back its schema and sync marker.
func (s *EventSerializer) Reopen() error {
	return &apperrors.UnsupportedLifecycleError{Operation: "reopen"}
}

// SupportsReopen returns false.
func (s *EventSerializer) SupportsReopen() bool {
	return false
}

// Schema returns the configured schema, or nil before Configure.
func (s *EventSerializer) Schema() *schema.Schema {
	return s.schema
}

// Stats returns what has been written so far.
func (s *EventSerializer) Stats() container.Stats {
	if s.writer == nil {
		return container.Stats{}
	}
	return s.writer.Stats()
}

// BufferedRecords returns the number of records not yet sealed into a block.
func (s *EventSerializer) BufferedRecords() int {
	if s.writer == nil {
		return 0
	}
	return s.writer.BufferedRecords()
}

func (s *EventSerializer) requireConfigured(op string) error {
	if s.writer != nil {
		return nil
	}
	return &apperrors.SequencingError{
		Operation: op,
		State:     "unconfigured",
		Err:       apperrors.ErrNotConfigured,
	}
}
