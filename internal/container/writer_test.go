package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafavrosink/internal/codec"
	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/internal/schema"
)

const userSchema = `{
  "type": "record",
  "name": "User",
  "namespace": "com.example",
  "fields": [
    {"name": "name", "type": "string"},
    {"name": "age", "type": "int"}
  ]
}`

type decodedBlock struct {
	count int
	data  []byte
}

type decodedFile struct {
	schema string
	codec  string
	sync   SyncMarker
	blocks []decodedBlock
}

// readContainer parses raw as an object container file, checking every
// sync marker along the way.
func readContainer(t *testing.T, raw []byte) decodedFile {
	t.Helper()

	if !bytes.HasPrefix(raw, []byte(Magic)) {
		t.Fatalf("missing magic: %q", raw[:min(len(raw), 4)])
	}
	native, rest, err := metadataCodec.NativeFromBinary(raw[len(Magic):])
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	meta := native.(map[string]interface{})

	var f decodedFile
	f.schema = string(meta[MetaSchema].([]byte))
	f.codec = string(meta[MetaCodec].([]byte))
	if len(rest) < SyncSize {
		t.Fatalf("header truncated before sync marker")
	}
	copy(f.sync[:], rest[:SyncSize])
	rest = rest[SyncSize:]

	for len(rest) > 0 {
		count, n := binary.Varint(rest)
		if n <= 0 {
			t.Fatalf("bad block count")
		}
		rest = rest[n:]
		size, n := binary.Varint(rest)
		if n <= 0 {
			t.Fatalf("bad block size")
		}
		rest = rest[n:]
		if int64(len(rest)) < size+SyncSize {
			t.Fatalf("block truncated: have %d bytes, need %d", len(rest), size+SyncSize)
		}
		if !bytes.Equal(rest[size:size+SyncSize], f.sync[:]) {
			t.Fatalf("block %d not followed by the file sync marker", len(f.blocks))
		}
		f.blocks = append(f.blocks, decodedBlock{count: int(count), data: rest[:size]})
		rest = rest[size+SyncSize:]
	}
	return f
}

func inflate(t *testing.T, codecName string, data []byte) []byte {
	t.Helper()

	switch codecName {
	case codec.Null:
		return data
	case codec.Deflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("inflate: %v", err)
		}
		return out
	case codec.Snappy:
		body, sum := data[:len(data)-4], data[len(data)-4:]
		out, err := snappy.Decode(nil, body)
		if err != nil {
			t.Fatalf("snappy decode: %v", err)
		}
		if binary.BigEndian.Uint32(sum) != crc32.ChecksumIEEE(out) {
			t.Fatal("snappy checksum mismatch")
		}
		return out
	case codec.Zstandard:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			t.Fatalf("zstd decode: %v", err)
		}
		return out
	default:
		t.Fatalf("no decompressor for %s", codecName)
		return nil
	}
}

// splitRecords cuts a decompressed block back into the encoded records it
// was built from.
func splitRecords(t *testing.T, c *goavro.Codec, data []byte, count int) [][]byte {
	t.Helper()

	records := make([][]byte, 0, count)
	for len(data) > 0 {
		_, rest, err := c.NativeFromBinary(data)
		if err != nil {
			t.Fatalf("decode record %d: %v", len(records), err)
		}
		records = append(records, data[:len(data)-len(rest)])
		data = rest
	}
	if len(records) != count {
		t.Fatalf("block holds %d records, header says %d", len(records), count)
	}
	return records
}

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse("file:///schemas/user.avsc", []byte(userSchema))
	if err != nil {
		t.Fatalf("schema.Parse() error = %v", err)
	}
	return s
}

func encodeUsers(t *testing.T, s *schema.Schema, n int) [][]byte {
	t.Helper()
	payloads := make([][]byte, n)
	for i := range payloads {
		buf, err := s.Codec().BinaryFromNative(nil, map[string]interface{}{
			"name": fmt.Sprintf("user-%03d", i),
			"age":  int32(20 + i%50),
		})
		if err != nil {
			t.Fatalf("encode user %d: %v", i, err)
		}
		payloads[i] = buf
	}
	return payloads
}

func mustCodec(t *testing.T, name string) codec.Codec {
	t.Helper()
	c, err := codec.Resolve(name)
	if err != nil {
		t.Fatalf("codec.Resolve(%q) error = %v", name, err)
	}
	return c
}

type recordingSink struct {
	bytes.Buffer
	flushes  int
	closes   int
	writes   int
	failFrom int
	err      error
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.writes++
	if s.err != nil && s.writes >= s.failFrom {
		return 0, s.err
	}
	return s.Buffer.Write(p)
}

func (s *recordingSink) Flush() error {
	s.flushes++
	return nil
}

func (s *recordingSink) Close() error {
	s.closes++
	return nil
}

type mockMetricsCollector struct {
	records map[string]int
	blocks  map[string]int
	bytes   map[string]int
}

func newMockMetrics() *mockMetricsCollector {
	return &mockMetricsCollector{
		records: make(map[string]int),
		blocks:  make(map[string]int),
		bytes:   make(map[string]int),
	}
}

func (m *mockMetricsCollector) AddRecordsWritten(codec string, n int) { m.records[codec] += n }
func (m *mockMetricsCollector) IncBlocksWritten(codec string)         { m.blocks[codec]++ }
func (m *mockMetricsCollector) AddBytesWritten(codec string, n int)   { m.bytes[codec] += n }

func TestWriter_RoundTrip(t *testing.T) {
	s := mustSchema(t)
	payloads := encodeUsers(t, s, 200)

	for _, name := range codec.Supported() {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			w := NewWriter(mustCodec(t, name), 256)

			if err := w.Create(s, sink); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			for i, p := range payloads {
				if err := w.AppendEncoded(p); err != nil {
					t.Fatalf("AppendEncoded(%d) error = %v", i, err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			f := readContainer(t, sink.Bytes())
			if f.codec != name {
				t.Errorf("avro.codec = %q, want %q", f.codec, name)
			}
			if f.schema != s.String() {
				t.Errorf("avro.schema = %q, want %q", f.schema, s.String())
			}
			if f.sync != w.Sync() {
				t.Error("header sync marker differs from writer's")
			}
			if len(f.blocks) < 2 {
				t.Errorf("blocks = %d, want several at a 256 byte interval", len(f.blocks))
			}

			var got [][]byte
			for _, b := range f.blocks {
				got = append(got, splitRecords(t, s.Codec(), inflate(t, name, b.data), b.count)...)
			}
			if len(got) != len(payloads) {
				t.Fatalf("read %d records, want %d", len(got), len(payloads))
			}
			for i := range payloads {
				if !bytes.Equal(got[i], payloads[i]) {
					t.Fatalf("record %d = %x, want %x", i, got[i], payloads[i])
				}
			}

			stats := w.Stats()
			if stats.Records != int64(len(payloads)) {
				t.Errorf("Stats().Records = %d, want %d", stats.Records, len(payloads))
			}
			if stats.Blocks != int64(len(f.blocks)) {
				t.Errorf("Stats().Blocks = %d, want %d", stats.Blocks, len(f.blocks))
			}
			if stats.Bytes != int64(sink.Len()) {
				t.Errorf("Stats().Bytes = %d, want %d", stats.Bytes, sink.Len())
			}
		})
	}
}

func TestWriter_ReadableByGoavro(t *testing.T) {
	s := mustSchema(t)
	payloads := encodeUsers(t, s, 50)

	for _, name := range []string{codec.Null, codec.Deflate, codec.Snappy} {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			w := NewWriter(mustCodec(t, name), 128)
			if err := w.Create(s, sink); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			for _, p := range payloads {
				if err := w.AppendEncoded(p); err != nil {
					t.Fatalf("AppendEncoded() error = %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			r, err := goavro.NewOCFReader(bytes.NewReader(sink.Bytes()))
			if err != nil {
				t.Fatalf("NewOCFReader() error = %v", err)
			}
			if r.CompressionName() != name {
				t.Errorf("CompressionName() = %q, want %q", r.CompressionName(), name)
			}

			i := 0
			for r.Scan() {
				datum, err := r.Read()
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}
				buf, err := r.Codec().BinaryFromNative(nil, datum)
				if err != nil {
					t.Fatalf("re-encode record %d: %v", i, err)
				}
				if !bytes.Equal(buf, payloads[i]) {
					t.Fatalf("record %d = %x, want %x", i, buf, payloads[i])
				}
				i++
			}
			if err := r.Err(); err != nil {
				t.Fatalf("scan error = %v", err)
			}
			if i != len(payloads) {
				t.Errorf("read %d records, want %d", i, len(payloads))
			}
		})
	}
}

func TestWriter_SealsAtSyncInterval(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(codec.Identity(), 10)

	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	headerLen := sink.Len()

	payloads := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")}

	for _, p := range payloads[:2] {
		if err := w.AppendEncoded(p); err != nil {
			t.Fatalf("AppendEncoded() error = %v", err)
		}
	}
	if w.Stats().Blocks != 0 {
		t.Errorf("blocks after 8 bytes = %d, want 0", w.Stats().Blocks)
	}
	if w.Buffered() != 8 {
		t.Errorf("Buffered() = %d, want 8", w.Buffered())
	}
	if sink.Len() != headerLen {
		t.Errorf("sink grew to %d before the interval was reached", sink.Len())
	}

	if err := w.AppendEncoded(payloads[2]); err != nil {
		t.Fatalf("AppendEncoded() error = %v", err)
	}
	if w.Stats().Blocks != 1 {
		t.Errorf("blocks after 12 bytes = %d, want 1", w.Stats().Blocks)
	}
	if w.Buffered() != 0 || w.BufferedRecords() != 0 {
		t.Errorf("buffer not cleared: %d bytes, %d records", w.Buffered(), w.BufferedRecords())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f := readContainer(t, sink.Bytes())
	if len(f.blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(f.blocks))
	}
	if f.blocks[0].count != 3 {
		t.Errorf("block count = %d, want 3", f.blocks[0].count)
	}
	if got := string(f.blocks[0].data); got != "aaaabbbbcccc" {
		t.Errorf("block data = %q, want %q", got, "aaaabbbbcccc")
	}
}

func TestWriter_FlushSealsPartialBlock(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(codec.Identity(), 1024)

	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.AppendEncoded([]byte("abc")); err != nil {
		t.Fatalf("AppendEncoded() error = %v", err)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if w.Stats().Blocks != 1 {
		t.Errorf("blocks after Flush() = %d, want 1", w.Stats().Blocks)
	}
	if sink.flushes != 1 {
		t.Errorf("sink flushes = %d, want 1", sink.flushes)
	}

	size := sink.Len()
	if err := w.Flush(); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if sink.Len() != size {
		t.Errorf("empty Flush() wrote %d bytes", sink.Len()-size)
	}
	if w.Stats().Blocks != 1 {
		t.Errorf("empty Flush() sealed a block")
	}
}

func TestWriter_CloseWithoutRecords(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(mustCodec(t, codec.Deflate), 1024)

	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f := readContainer(t, sink.Bytes())
	if len(f.blocks) != 0 {
		t.Errorf("blocks = %d, want 0", len(f.blocks))
	}
	if sink.closes != 1 {
		t.Errorf("sink closes = %d, want 1", sink.closes)
	}
	if w.State() != StateClosed {
		t.Errorf("State() = %s, want closed", w.State())
	}
}

func TestWriter_OperationsBeforeCreate(t *testing.T) {
	w := NewWriter(codec.Identity(), 10)

	ops := map[string]func() error{
		"write": func() error { return w.AppendEncoded([]byte("x")) },
		"flush": w.Flush,
		"close": w.Close,
	}
	for op, fn := range ops {
		err := fn()
		if !errors.Is(err, apperrors.ErrNotCreated) {
			t.Errorf("%s before create = %v, want ErrNotCreated", op, err)
		}
		var seqErr *apperrors.SequencingError
		if !errors.As(err, &seqErr) {
			t.Errorf("%s before create should be a SequencingError", op)
		}
	}
	if w.Buffered() != 0 {
		t.Errorf("write before create buffered %d bytes", w.Buffered())
	}
	if w.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", w.State())
	}
}

func TestWriter_OperationsAfterClose(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(codec.Identity(), 10)
	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.AppendEncoded([]byte("abc")); err != nil {
		t.Fatalf("AppendEncoded() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	size := sink.Len()

	ops := map[string]func() error{
		"write":  func() error { return w.AppendEncoded([]byte("x")) },
		"flush":  w.Flush,
		"close":  w.Close,
		"create": func() error { return w.Create(mustSchema(t), sink) },
	}
	for op, fn := range ops {
		if err := fn(); !errors.Is(err, apperrors.ErrWriterClosed) {
			t.Errorf("%s after close = %v, want ErrWriterClosed", op, err)
		}
	}

	if sink.Len() != size {
		t.Errorf("sink grew by %d bytes after close", sink.Len()-size)
	}
	if sink.closes != 1 {
		t.Errorf("sink closes = %d, want 1", sink.closes)
	}
}

func TestWriter_CreateTwice(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(codec.Identity(), 10)
	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	size := sink.Len()

	err := w.Create(mustSchema(t), sink)
	if !errors.Is(err, apperrors.ErrAlreadyCreated) {
		t.Errorf("second Create() = %v, want ErrAlreadyCreated", err)
	}
	if sink.Len() != size {
		t.Error("second Create() wrote a header")
	}
}

func TestWriter_Reopen(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(codec.Identity(), 10)

	if err := w.Reopen(); !errors.Is(err, apperrors.ErrReopenUnsupported) {
		t.Errorf("Reopen() before create = %v", err)
	}

	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.AppendEncoded([]byte("abc")); err != nil {
		t.Fatalf("AppendEncoded() error = %v", err)
	}
	size, writes := sink.Len(), sink.writes

	err := w.Reopen()
	var lifecycleErr *apperrors.UnsupportedLifecycleError
	if !errors.As(err, &lifecycleErr) {
		t.Fatalf("Reopen() = %v, want UnsupportedLifecycleError", err)
	}
	if sink.Len() != size || sink.writes != writes {
		t.Error("Reopen() touched the sink")
	}
	if w.BufferedRecords() != 1 {
		t.Errorf("Reopen() changed the buffer: %d records", w.BufferedRecords())
	}
	if w.State() != StateCreated {
		t.Errorf("State() = %s, want created", w.State())
	}
}

func TestWriter_CreateFailure(t *testing.T) {
	sink := &recordingSink{failFrom: 1, err: errors.New("disk full")}
	w := NewWriter(codec.Identity(), 10, WithLocation("/data/events.avro"))

	err := w.Create(mustSchema(t), sink)

	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Create() = %v, want StorageError", err)
	}
	if storageErr.Operation != "create" || storageErr.Path != "/data/events.avro" {
		t.Errorf("StorageError = %+v", storageErr)
	}
	if w.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", w.State())
	}
	if got := w.Create(mustSchema(t), sink); got != err {
		t.Errorf("second Create() = %v, want the first failure", got)
	}
	if sink.writes != 1 {
		t.Errorf("sink writes = %d, want 1", sink.writes)
	}
}

// shortSink stores half of its failAt-th write and then fails it.
type shortSink struct {
	bytes.Buffer
	writes int
	failAt int
	aborts int
	closes int
}

func (s *shortSink) Write(p []byte) (int, error) {
	s.writes++
	if s.writes == s.failAt {
		half, _ := s.Buffer.Write(p[:len(p)/2])
		return half, errors.New("short write")
	}
	return s.Buffer.Write(p)
}

func (s *shortSink) Abort(error) error {
	s.aborts++
	return nil
}

func (s *shortSink) Close() error {
	s.closes++
	return nil
}

func TestWriter_ShortWriteIsSticky(t *testing.T) {
	s := mustSchema(t)
	sink := &shortSink{failAt: 2}
	w := NewWriter(codec.Identity(), 1<<20)
	if err := w.Create(s, sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, p := range encodeUsers(t, s, 3) {
		if err := w.AppendEncoded(p); err != nil {
			t.Fatalf("AppendEncoded() error = %v", err)
		}
	}

	err := w.Flush()
	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "write" || !storageErr.Partial {
		t.Fatalf("Flush() = %v, want partial write StorageError", err)
	}
	if apperrors.IsRetryable(err) {
		t.Error("partial write should not be retryable")
	}
	size, writes := sink.Len(), sink.writes

	retries := map[string]func() error{
		"flush": w.Flush,
		"write": func() error { return w.AppendEncoded([]byte("x")) },
		"close": w.Close,
	}
	for _, op := range []string{"flush", "write", "close"} {
		if got := retries[op](); got != err {
			t.Errorf("%s after short write = %v, want %v", op, got, err)
		}
	}

	if sink.Len() != size || sink.writes != writes {
		t.Errorf("sink written again after failure: %d bytes in %d writes, want %d in %d",
			sink.Len(), sink.writes, size, writes)
	}
	if sink.aborts != 1 || sink.closes != 0 {
		t.Errorf("aborts = %d, closes = %d, want 1 and 0", sink.aborts, sink.closes)
	}
	if w.State() != StateClosed {
		t.Errorf("State() = %s, want closed", w.State())
	}
	if err := w.Close(); !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("second Close() = %v, want ErrWriterClosed", err)
	}
}

func TestWriter_PartialHeaderIsSticky(t *testing.T) {
	sink := &shortSink{failAt: 1}
	w := NewWriter(codec.Identity(), 10)

	err := w.Create(mustSchema(t), sink)
	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "create" || !storageErr.Partial {
		t.Fatalf("Create() = %v, want partial create StorageError", err)
	}
	size := sink.Len()

	if got := w.Create(mustSchema(t), sink); got != err {
		t.Errorf("second Create() = %v, want %v", got, err)
	}
	if sink.Len() != size {
		t.Error("second Create() wrote another header")
	}

	if got := w.Close(); got != err {
		t.Errorf("Close() = %v, want %v", got, err)
	}
	if sink.aborts != 1 || sink.closes != 0 {
		t.Errorf("aborts = %d, closes = %d, want 1 and 0", sink.aborts, sink.closes)
	}
}

func TestWriter_CloseSealFailureAborts(t *testing.T) {
	sink := &shortSink{failAt: 2}
	w := NewWriter(codec.Identity(), 1<<20)
	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.AppendEncoded([]byte("abcd")); err != nil {
		t.Fatalf("AppendEncoded() error = %v", err)
	}

	err := w.Close()
	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "write" {
		t.Errorf("Close() = %v, want write StorageError", err)
	}
	if sink.aborts != 1 || sink.closes != 0 {
		t.Errorf("aborts = %d, closes = %d, want the sink aborted, not closed", sink.aborts, sink.closes)
	}
	if w.State() != StateClosed {
		t.Errorf("State() = %s, want closed", w.State())
	}
}

func TestWriter_CloseSealFailureClosesPlainSink(t *testing.T) {
	sink := &recordingSink{failFrom: 2, err: errors.New("connection reset")}
	w := NewWriter(codec.Identity(), 1<<20)
	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.AppendEncoded([]byte("abcd")); err != nil {
		t.Fatalf("AppendEncoded() error = %v", err)
	}

	if err := w.Close(); err == nil {
		t.Fatal("Close() error = nil, want write failure")
	}
	if sink.closes != 1 {
		t.Errorf("sink closes = %d, want 1", sink.closes)
	}
}

func TestWriter_CreateRequiresSchemaAndSink(t *testing.T) {
	tests := []struct {
		name    string
		schema  *schema.Schema
		sink    io.Writer
		wantKey string
	}{
		{"nil schema", nil, &recordingSink{}, "schema"},
		{"nil sink", mustSchema(t), nil, "sink"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(codec.Identity(), 10)
			err := w.Create(tt.schema, tt.sink)

			var configErr *apperrors.ConfigurationError
			if !errors.As(err, &configErr) {
				t.Fatalf("Create() = %v, want ConfigurationError", err)
			}
			if configErr.Key != tt.wantKey {
				t.Errorf("Key = %s, want %s", configErr.Key, tt.wantKey)
			}
			if !errors.Is(err, apperrors.ErrMissingOption) {
				t.Error("error should match ErrMissingOption")
			}
			if w.State() != StateUninitialized {
				t.Errorf("State() = %s, want uninitialized", w.State())
			}
		})
	}
}

func TestWriter_SyncMarker(t *testing.T) {
	s := mustSchema(t)

	a, b := NewWriter(codec.Identity(), 10), NewWriter(codec.Identity(), 10)
	if err := a.Create(s, &recordingSink{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := b.Create(s, &recordingSink{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.Sync() == b.Sync() {
		t.Error("two files share a sync marker")
	}

	pinned := SyncMarker{0xDE, 0xAD, 0xBE, 0xEF}
	sink := &recordingSink{}
	w := NewWriter(codec.Identity(), 10, WithSyncMarker(pinned))
	if err := w.Create(s, sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := readContainer(t, sink.Bytes()).sync; got != pinned {
		t.Errorf("sync = %x, want %x", got, pinned)
	}
}

func TestWriter_Metrics(t *testing.T) {
	metrics := newMockMetrics()
	sink := &recordingSink{}
	w := NewWriter(mustCodec(t, codec.Snappy), 8,
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	if err := w.Create(mustSchema(t), sink); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.AppendEncoded([]byte("12345678")); err != nil {
			t.Fatalf("AppendEncoded() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if metrics.records[codec.Snappy] != 5 {
		t.Errorf("records = %d, want 5", metrics.records[codec.Snappy])
	}
	if metrics.blocks[codec.Snappy] != 5 {
		t.Errorf("blocks = %d, want 5", metrics.blocks[codec.Snappy])
	}
	if metrics.bytes[codec.Snappy] != sink.Len() {
		t.Errorf("bytes = %d, want %d", metrics.bytes[codec.Snappy], sink.Len())
	}
	if w.CodecName() != codec.Snappy {
		t.Errorf("CodecName() = %q", w.CodecName())
	}
}
