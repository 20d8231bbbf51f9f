// Package codec maps Avro compression codec names to block compressors.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec names as written to the avro.codec header entry.
const (
	Null      = "null"
	Deflate   = "deflate"
	Snappy    = "snappy"
	Zstandard = "zstandard"
	Bzip2     = "bzip2"
	XZ        = "xz"
)

// Codec compresses one serialized block at a time.
type Codec interface {
	// Name returns the avro.codec value identifying this codec in the header.
	Name() string

	// Compress appends the compressed form of src to dst.
	Compress(dst, src []byte) ([]byte, error)
}

// Ensure implementations satisfy interface at compile time.
var (
	_ Codec = nullCodec{}
	_ Codec = (*deflateCodec)(nil)
	_ Codec = snappyCodec{}
	_ Codec = (*zstdCodec)(nil)
)

// Identity returns the codec that stores blocks uncompressed.
func Identity() Codec {
	return nullCodec{}
}

type nullCodec struct{}

func (nullCodec) Name() string { return Null }

func (nullCodec) Compress(dst, src []byte) ([]byte, error) {
	return append(dst, src...), nil
}

// deflateCodec writes raw DEFLATE (RFC 1951) without zlib framing.
type deflateCodec struct {
	level int
	buf   bytes.Buffer
	w     *flate.Writer
}

func newDeflate(level int) (*deflateCodec, error) {
	d := &deflateCodec{level: level}
	w, err := flate.NewWriter(&d.buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	d.w = w
	return d, nil
}

func (d *deflateCodec) Name() string { return Deflate }

func (d *deflateCodec) Compress(dst, src []byte) ([]byte, error) {
	d.buf.Reset()
	d.w.Reset(&d.buf)
	if _, err := d.w.Write(src); err != nil {
		return dst, fmt.Errorf("deflate: %w", err)
	}
	if err := d.w.Close(); err != nil {
		return dst, fmt.Errorf("deflate: %w", err)
	}
	return append(dst, d.buf.Bytes()...), nil
}

// snappyCodec appends the big-endian CRC32 of the uncompressed block after
// the snappy payload.
type snappyCodec struct{}

func (snappyCodec) Name() string { return Snappy }

func (snappyCodec) Compress(dst, src []byte) ([]byte, error) {
	dst = append(dst, snappy.Encode(nil, src)...)
	return binary.BigEndian.AppendUint32(dst, crc32.ChecksumIEEE(src)), nil
}

// zstdCodec builds its encoder on the first block, so a codec that never
// compresses holds nothing that needs Close.
type zstdCodec struct {
	level zstd.EncoderLevel
	enc   *zstd.Encoder
}

func newZstandard(level int) *zstdCodec {
	return &zstdCodec{level: zstd.EncoderLevelFromZstd(level)}
}

func (z *zstdCodec) Name() string { return Zstandard }

func (z *zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	if z.enc == nil {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(z.level),
			zstd.WithEncoderConcurrency(1),
			zstd.WithZeroFrames(true),
		)
		if err != nil {
			return dst, fmt.Errorf("failed to create zstandard encoder: %w", err)
		}
		z.enc = enc
	}
	return z.enc.EncodeAll(src, dst), nil
}

// Close releases the encoder, if one was built.
func (z *zstdCodec) Close() error {
	if z.enc == nil {
		return nil
	}
	err := z.enc.Close()
	z.enc = nil
	return err
}

// Supported returns the codec names that compress blocks.
func Supported() []string {
	return []string{Null, Deflate, Snappy, Zstandard}
}
