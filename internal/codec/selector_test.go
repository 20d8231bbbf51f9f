package codec

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
)

type mockMetricsCollector struct {
	fallbacks []string
}

func (m *mockMetricsCollector) IncCodecFallbacks(requested string) {
	m.fallbacks = append(m.fallbacks, requested)
}

func newTestSelector() (*Selector, *bytes.Buffer, *mockMetricsCollector) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	metrics := &mockMetricsCollector{}
	return NewSelector(logger, metrics), &logs, metrics
}

func TestSelector_Select(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantName string
	}{
		{"empty defaults to null", "", Null},
		{"null", "null", Null},
		{"deflate", "deflate", Deflate},
		{"deflate with level", "deflate-6", Deflate},
		{"deflate default level", "deflate--1", Deflate},
		{"snappy", "snappy", Snappy},
		{"zstandard", "zstandard", Zstandard},
		{"zstandard negative level", "zstandard--5", Zstandard},
		{"upper case", "SNAPPY", Snappy},
		{"surrounding spaces", "  deflate  ", Deflate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector, logs, metrics := newTestSelector()

			c, err := selector.Select(tt.spec)
			if err != nil {
				t.Fatalf("Select(%q) error = %v", tt.spec, err)
			}
			if c.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", c.Name(), tt.wantName)
			}
			if len(metrics.fallbacks) != 0 {
				t.Errorf("fallbacks = %v, want none", metrics.fallbacks)
			}
			if strings.Contains(logs.String(), "level=WARN") {
				t.Errorf("unexpected warning: %s", logs.String())
			}
		})
	}
}

func TestSelector_SelectFallsBackToIdentity(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr error
	}{
		{"unknown name", "lzma", apperrors.ErrUnknownCodec},
		{"gzip is not an avro codec", "gzip", apperrors.ErrUnknownCodec},
		{"bzip2 unavailable", "bzip2", apperrors.ErrCodecUnavailable},
		{"xz unavailable", "xz", apperrors.ErrCodecUnavailable},
		{"xz with level unavailable", "xz-3", apperrors.ErrCodecUnavailable},
		{"snappy takes no level", "snappy-2", apperrors.ErrUnknownCodec},
		{"null takes no level", "null-1", apperrors.ErrUnknownCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector, logs, metrics := newTestSelector()

			c, err := selector.Select(tt.spec)
			if err != nil {
				t.Fatalf("Select(%q) error = %v, want fallback", tt.spec, err)
			}
			if c.Name() != Null {
				t.Errorf("Name() = %s, want %s", c.Name(), Null)
			}
			if len(metrics.fallbacks) != 1 || metrics.fallbacks[0] != tt.spec {
				t.Errorf("fallbacks = %v, want [%s]", metrics.fallbacks, tt.spec)
			}
			if !strings.Contains(logs.String(), "level=WARN") {
				t.Errorf("expected a warning, got %q", logs.String())
			}

			_, resolveErr := Resolve(tt.spec)
			var resolutionErr *apperrors.CodecResolutionError
			if !errors.As(resolveErr, &resolutionErr) {
				t.Fatalf("Resolve(%q) error = %v, want CodecResolutionError", tt.spec, resolveErr)
			}
			if !errors.Is(resolveErr, tt.wantErr) {
				t.Errorf("Resolve(%q) error = %v, want %v", tt.spec, resolveErr, tt.wantErr)
			}
		})
	}
}

func TestSelector_SelectRejectsMalformedLevel(t *testing.T) {
	tests := []string{
		"deflate-abc",
		"deflate-10",
		"deflate--2",
		"zstandard-23",
		"zstandard-fast",
		"xz-12",
	}

	for _, spec := range tests {
		t.Run(spec, func(t *testing.T) {
			selector, _, metrics := newTestSelector()

			c, err := selector.Select(spec)
			if err == nil {
				t.Fatalf("Select(%q) = %v, want error", spec, c.Name())
			}

			var cfgErr *apperrors.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %T, want *ConfigurationError", err)
			}
			if cfgErr.Key != "compressionCodec" {
				t.Errorf("Key = %s, want compressionCodec", cfgErr.Key)
			}
			if !errors.Is(err, apperrors.ErrInvalidCodecOption) {
				t.Errorf("error should wrap ErrInvalidCodecOption")
			}
			if len(metrics.fallbacks) != 0 {
				t.Errorf("malformed levels must not fall back, got %v", metrics.fallbacks)
			}
		})
	}
}

func TestSelector_NilMetrics(t *testing.T) {
	selector := NewSelector(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)

	c, err := selector.Select("brotli")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if c.Name() != Null {
		t.Errorf("Name() = %s, want null", c.Name())
	}
}
