package codec

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
)

// MetricsCollector defines metrics operations for codec selection.
type MetricsCollector interface {
	IncCodecFallbacks(requested string)
}

// levelRange bounds the optional "-N" suffix of a codec name.
type levelRange struct {
	min, max, def int
}

var levels = map[string]levelRange{
	Deflate:   {min: -1, max: 9, def: -1},
	Zstandard: {min: -5, max: 22, def: 3},
	XZ:        {min: 0, max: 9, def: 6},
}

// Selector resolves codec names, degrading to identity when a name cannot
// be honoured.
type Selector struct {
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewSelector creates a codec selector.
func NewSelector(logger *slog.Logger, metrics MetricsCollector) *Selector {
	return &Selector{logger: logger, metrics: metrics}
}

// Select returns the codec for name. Unknown or unavailable codecs resolve
// to Identity with a warning. A known codec with a malformed level is a
// *errors.ConfigurationError.
func (s *Selector) Select(name string) (Codec, error) {
	c, err := Resolve(name)
	if err == nil {
		return c, nil
	}

	var resolutionErr *apperrors.CodecResolutionError
	if !errors.As(err, &resolutionErr) {
		return nil, err
	}

	s.logger.Warn("unable to instantiate avro codec, compression disabled",
		"codec", name,
		"error", resolutionErr,
	)
	if s.metrics != nil {
		s.metrics.IncCodecFallbacks(name)
	}
	return Identity(), nil
}

// Resolve maps name to a codec without any fallback. It returns a
// *errors.CodecResolutionError for names that cannot be honoured and a
// *errors.ConfigurationError for malformed levels or encoder failures.
func Resolve(name string) (Codec, error) {
	spec := strings.ToLower(strings.TrimSpace(name))
	if spec == "" {
		return Identity(), nil
	}

	family, rawLevel, hasLevel := strings.Cut(spec, "-")
	bounds, takesLevel := levels[family]
	if hasLevel && !takesLevel {
		return nil, &apperrors.CodecResolutionError{Codec: name, Err: apperrors.ErrUnknownCodec}
	}

	level := bounds.def
	if hasLevel {
		parsed, err := parseLevel(name, rawLevel, bounds)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	switch family {
	case Null:
		return Identity(), nil
	case Deflate:
		c, err := newDeflate(level)
		if err != nil {
			return nil, &apperrors.ConfigurationError{Key: "compressionCodec", Reason: "codec initialization failed", Err: err}
		}
		return c, nil
	case Snappy:
		return snappyCodec{}, nil
	case Zstandard:
		return newZstandard(level), nil
	case Bzip2, XZ:
		return nil, &apperrors.CodecResolutionError{Codec: name, Err: apperrors.ErrCodecUnavailable}
	default:
		return nil, &apperrors.CodecResolutionError{Codec: name, Err: apperrors.ErrUnknownCodec}
	}
}

func parseLevel(name, raw string, bounds levelRange) (int, error) {
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &apperrors.ConfigurationError{
			Key:    "compressionCodec",
			Reason: fmt.Sprintf("malformed level in %q", name),
			Err:    fmt.Errorf("%w: %v", apperrors.ErrInvalidCodecOption, err),
		}
	}
	if level < bounds.min || level > bounds.max {
		return 0, &apperrors.ConfigurationError{
			Key:    "compressionCodec",
			Reason: fmt.Sprintf("level %d out of range [%d, %d] in %q", level, bounds.min, bounds.max, name),
			Err:    apperrors.ErrInvalidCodecOption,
		}
	}
	return level, nil
}
