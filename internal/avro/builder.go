package avro

import (
	"context"
	"io"
	"log/slog"

	"github.com/jittakal/kafavrosink/internal/container"
	"github.com/jittakal/kafavrosink/pkg/serializer"
)

// Builder creates configured serializers sharing a resolver and selector.
type Builder struct {
	resolver SchemaResolver
	selector CodecSelector
	logger   *slog.Logger
	metrics  container.MetricsCollector
}

var _ serializer.Builder = (*Builder)(nil)

// NewBuilder creates a serializer builder.
func NewBuilder(resolver SchemaResolver, selector CodecSelector, logger *slog.Logger, metrics container.MetricsCollector) *Builder {
	return &Builder{
		resolver: resolver,
		selector: selector,
		logger:   logger,
		metrics:  metrics,
	}
}

// Build returns a serializer for out, already configured from cfg.
// The schema is loaded again for every call.
func (b *Builder) Build(ctx context.Context, cfg serializer.Config, out io.Writer) (serializer.EventSerializer, error) {
	s, err := b.BuildFor(ctx, cfg, out, "")
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BuildFor is Build with a destination name for logs and errors.
func (b *Builder) BuildFor(ctx context.Context, cfg serializer.Config, out io.Writer, destination string) (*EventSerializer, error) {
	s := NewEventSerializer(out, b.resolver, b.selector,
		WithLogger(b.logger),
		WithMetrics(b.metrics),
		WithDestination(destination),
	)
	if err := s.Configure(ctx, cfg); err != nil {
		return nil, err
	}
	return s, nil
}
