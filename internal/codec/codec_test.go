package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

func decompress(t *testing.T, name string, block []byte) []byte {
	t.Helper()

	switch name {
	case Null:
		return block
	case Deflate:
		r := flate.NewReader(bytes.NewReader(block))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("inflate: %v", err)
		}
		return out
	case Snappy:
		if len(block) < 4 {
			t.Fatalf("snappy block too short: %d", len(block))
		}
		body, sum := block[:len(block)-4], block[len(block)-4:]
		out, err := snappy.Decode(nil, body)
		if err != nil {
			t.Fatalf("snappy decode: %v", err)
		}
		if got := binary.BigEndian.Uint32(sum); got != crc32.ChecksumIEEE(out) {
			t.Fatalf("snappy checksum = %08x, want %08x", got, crc32.ChecksumIEEE(out))
		}
		return out
	case Zstandard:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(block, nil)
		if err != nil {
			t.Fatalf("zstd decode: %v", err)
		}
		return out
	default:
		t.Fatalf("no decompressor for %s", name)
		return nil
	}
}

func TestCodecs_CompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("avro block payload "), 200)

	tests := []struct {
		name string
		spec string
	}{
		{"null", "null"},
		{"deflate default", "deflate"},
		{"deflate level 9", "deflate-9"},
		{"deflate level 0", "deflate-0"},
		{"snappy", "snappy"},
		{"zstandard default", "zstandard"},
		{"zstandard level 19", "zstandard-19"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Resolve(tt.spec)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.spec, err)
			}
			if closer, ok := c.(io.Closer); ok {
				defer closer.Close()
			}

			prefix := []byte("prefix")
			out, err := c.Compress(append([]byte(nil), prefix...), payload)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if !bytes.HasPrefix(out, prefix) {
				t.Fatal("Compress() must append to dst")
			}

			got := decompress(t, c.Name(), out[len(prefix):])
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
			}
		})
	}
}

func TestCodecs_CompressEmptyBlock(t *testing.T) {
	for _, name := range Supported() {
		t.Run(name, func(t *testing.T) {
			c, err := Resolve(name)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", name, err)
			}
			out, err := c.Compress(nil, nil)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if got := decompress(t, name, out); len(got) != 0 {
				t.Errorf("decompressed %d bytes, want 0", len(got))
			}
		})
	}
}

func TestDeflateCodec_Reuse(t *testing.T) {
	c, err := Resolve("deflate")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	first, _ := c.Compress(nil, []byte("first block"))
	second, _ := c.Compress(nil, []byte("second block"))

	if got := decompress(t, Deflate, first); string(got) != "first block" {
		t.Errorf("first = %q", got)
	}
	if got := decompress(t, Deflate, second); string(got) != "second block" {
		t.Errorf("second = %q", got)
	}
}

func TestSupported(t *testing.T) {
	names := Supported()
	if len(names) != 4 {
		t.Fatalf("Supported() = %v, want 4 codecs", names)
	}
	for _, name := range names {
		c, err := Resolve(name)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", name, err)
			continue
		}
		if c.Name() != name {
			t.Errorf("Name() = %s, want %s", c.Name(), name)
		}
	}
}

func TestZstandardCodec_LazyEncoder(t *testing.T) {
	c, err := Resolve("zstandard-3")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	z := c.(*zstdCodec)

	if z.enc != nil {
		t.Fatal("encoder built before the first block")
	}
	if err := z.Close(); err != nil {
		t.Errorf("Close() without blocks error = %v", err)
	}

	out, err := z.Compress(nil, []byte("block"))
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if got := decompress(t, Zstandard, out); string(got) != "block" {
		t.Errorf("round trip = %q, want block", got)
	}
	if z.enc == nil {
		t.Fatal("encoder not built by Compress")
	}

	if err := z.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if z.enc != nil {
		t.Error("Close() should drop the encoder")
	}
}
