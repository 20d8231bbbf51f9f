// Package schema loads and validates Avro schemas from storage locations.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/linkedin/goavro/v2"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// MaxSchemaBytes bounds how much a single schema location may return.
const MaxSchemaBytes = 4 << 20

var (
	errEmptyLocation = errors.New("schema location is empty")
	errEmptySchema   = errors.New("schema source returned no bytes")
	errSchemaTooBig  = fmt.Errorf("schema exceeds %d bytes", MaxSchemaBytes)
)

// Schema is an immutable, validated Avro schema.
type Schema struct {
	location string
	text     string
	codec    *goavro.Codec
}

// Location returns where the schema was loaded from.
func (s *Schema) Location() string {
	return s.location
}

// String returns the compact schema JSON embedded in container headers.
func (s *Schema) String() string {
	return s.text
}

// Codec returns the goavro codec compiled from the schema.
func (s *Schema) Codec() *goavro.Codec {
	return s.codec
}

// Parse validates data as an Avro schema.
func Parse(location string, data []byte) (*Schema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &apperrors.SchemaLoadError{Location: location, Err: errEmptySchema}
	}

	codec, err := goavro.NewCodec(string(trimmed))
	if err != nil {
		return nil, &apperrors.SchemaLoadError{
			Location: location,
			Err:      fmt.Errorf("invalid avro schema: %w", err),
		}
	}

	text := codec.Schema()
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err == nil {
		text = compact.String()
	}

	return &Schema{
		location: location,
		text:     text,
		codec:    codec,
	}, nil
}

// Resolver turns location strings into validated schemas.
type Resolver struct {
	source storage.Source
	logger *slog.Logger
}

// NewResolver creates a resolver reading schema bytes from source.
func NewResolver(source storage.Source, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger,
	}
}

// Resolve reads and parses the schema at location. Every failure is a
// *errors.SchemaLoadError naming the location.
func (r *Resolver) Resolve(ctx context.Context, location string) (*Schema, error) {
	if strings.TrimSpace(location) == "" {
		return nil, &apperrors.SchemaLoadError{Location: location, Err: errEmptyLocation}
	}

	rc, err := r.source.Open(ctx, location)
	if err != nil {
		return nil, &apperrors.SchemaLoadError{Location: location, Err: err}
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			r.logger.Warn("failed to close schema reader",
				"location", location,
				"error", cerr,
			)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(rc, MaxSchemaBytes+1))
	if err != nil {
		return nil, &apperrors.SchemaLoadError{
			Location: location,
			Err:      fmt.Errorf("failed to read schema: %w", err),
		}
	}
	if len(data) > MaxSchemaBytes {
		return nil, &apperrors.SchemaLoadError{Location: location, Err: errSchemaTooBig}
	}

	s, err := Parse(location, data)
	if err != nil {
		return nil, err
	}

	r.logger.Info("avro schema loaded",
		"location", location,
		"schema", s.String(),
	)
	return s, nil
}
