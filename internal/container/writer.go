// Package container writes Avro object container files from records that
// are already binary-encoded against the file schema.
package container

import (
	"errors"
	"io"
	"log/slog"

	"github.com/jittakal/kafavrosink/internal/codec"
	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/internal/schema"
)

// MetricsCollector defines metrics operations for container writers.
type MetricsCollector interface {
	AddRecordsWritten(codec string, n int)
	IncBlocksWritten(codec string)
	AddBytesWritten(codec string, n int)
}

// Stats summarizes what a writer has emitted so far.
type Stats struct {
	Records int64
	Blocks  int64
	Bytes   int64
}

// Writer frames encoded records into blocks separated by the file's sync
// marker. It is not safe for concurrent use.
type Writer struct {
	codec        codec.Codec
	syncInterval int
	block        *Block
	lifecycle    Lifecycle
	sink         io.Writer
	location     string
	sync         SyncMarker
	fixedSync    bool
	frame        []byte
	compressed   []byte
	stats        Stats
	err          error
	logger       *slog.Logger
	metrics      MetricsCollector
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger used for best-effort release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(w *Writer) {
		w.metrics = metrics
	}
}

// WithSyncMarker pins the sync marker instead of generating one on Create.
func WithSyncMarker(sync SyncMarker) Option {
	return func(w *Writer) {
		w.sync = sync
		w.fixedSync = true
	}
}

// WithLocation names the destination in errors and logs.
func WithLocation(location string) Option {
	return func(w *Writer) {
		w.location = location
	}
}

// NewWriter prepares a writer that seals a block once it holds at least
// syncIntervalBytes. Nothing is written until Create.
func NewWriter(c codec.Codec, syncIntervalBytes int, opts ...Option) *Writer {
	w := &Writer{
		codec:        c,
		syncInterval: syncIntervalBytes,
		block:        NewBlock(syncIntervalBytes),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create writes the header for s to sink. It may be called once.
func (w *Writer) Create(s *schema.Schema, sink io.Writer) error {
	if err := w.lifecycle.CanCreate(); err != nil {
		return err
	}
	if w.err != nil {
		return w.err
	}
	if s == nil {
		return &apperrors.ConfigurationError{Key: "schema", Reason: "create requires a schema", Err: apperrors.ErrMissingOption}
	}
	if sink == nil {
		return &apperrors.ConfigurationError{Key: "sink", Reason: "create requires a sink", Err: apperrors.ErrMissingOption}
	}

	if !w.fixedSync {
		sync, err := NewSyncMarker()
		if err != nil {
			return err
		}
		w.sync = sync
	}

	header, err := appendHeader(w.frame[:0], s.String(), w.codec.Name(), w.sync)
	if err != nil {
		return err
	}
	w.sink = sink
	n, err := sink.Write(header)
	w.stats.Bytes += int64(n)
	if err != nil {
		w.err = &apperrors.StorageError{Operation: "create", Path: w.location, Partial: n > 0, Err: err}
		return w.err
	}

	w.lifecycle.MarkCreated()
	if w.metrics != nil {
		w.metrics.AddBytesWritten(w.codec.Name(), n)
	}
	return nil
}

// AppendEncoded adds one encoded record to the current block. The block is
// sealed as soon as it reaches the sync interval, so a block overshoots by
// at most one record.
//
// Once the sink has failed, every later call returns that failure.
func (w *Writer) AppendEncoded(payload []byte) error {
	if err := w.lifecycle.Require("write"); err != nil {
		return err
	}
	if w.err != nil {
		return w.err
	}

	w.block.Add(payload)
	if w.block.Size() >= w.syncInterval {
		return w.seal()
	}
	return nil
}

// Flush seals the current block, if any, and flushes the sink when it
// supports flushing.
func (w *Writer) Flush() error {
	if err := w.lifecycle.Require("flush"); err != nil {
		return err
	}
	if w.err != nil {
		return w.err
	}
	if err := w.seal(); err != nil {
		return err
	}
	return w.flushSink()
}

// Close seals remaining records and releases the sink and codec. The last
// block's trailing sync marker ends the file.
//
// If the sink failed earlier, or the final seal fails, nothing more is
// written: the sink is aborted when it supports it and the failure is
// returned.
func (w *Writer) Close() error {
	if w.err != nil && w.lifecycle.State() != StateClosed {
		w.discard(w.err)
		return w.err
	}
	if err := w.lifecycle.Require("close"); err != nil {
		return err
	}

	if err := w.seal(); err != nil {
		w.discard(err)
		return err
	}
	w.lifecycle.MarkClosed()
	w.block.Reset()

	var errs []error
	if c, ok := w.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, &apperrors.StorageError{Operation: "close", Path: w.location, Err: err})
		}
	}
	w.releaseCodec()
	return errors.Join(errs...)
}

// Reopen is not supported by this format writer.
func (w *Writer) Reopen() error {
	return w.lifecycle.Reopen()
}

// State returns the lifecycle state.
func (w *Writer) State() State {
	return w.lifecycle.State()
}

// Sync returns the file's sync marker. It is zero before Create unless
// pinned with WithSyncMarker.
func (w *Writer) Sync() SyncMarker {
	return w.sync
}

// Buffered returns the number of bytes waiting in the current block.
func (w *Writer) Buffered() int {
	return w.block.Size()
}

// BufferedRecords returns the number of records waiting in the current block.
func (w *Writer) BufferedRecords() int {
	return w.block.Count()
}

// Stats returns totals for sealed blocks and bytes emitted.
func (w *Writer) Stats() Stats {
	return w.stats
}

// CodecName returns the codec recorded in the header.
func (w *Writer) CodecName() string {
	return w.codec.Name()
}

func (w *Writer) seal() error {
	if w.block.IsEmpty() {
		return nil
	}

	compressed, err := w.codec.Compress(w.compressed[:0], w.block.Bytes())
	if err != nil {
		return &apperrors.StorageError{Operation: "compress", Path: w.location, Err: err}
	}
	w.compressed = compressed

	count := w.block.Count()
	w.frame = appendBlock(w.frame[:0], count, compressed, w.sync)

	n, err := w.sink.Write(w.frame)
	w.stats.Bytes += int64(n)
	if err != nil {
		w.err = &apperrors.StorageError{Operation: "write", Path: w.location, Partial: n > 0, Err: err}
		return w.err
	}

	w.stats.Records += int64(count)
	w.stats.Blocks++
	w.block.Reset()

	if w.metrics != nil {
		name := w.codec.Name()
		w.metrics.AddRecordsWritten(name, count)
		w.metrics.IncBlocksWritten(name)
		w.metrics.AddBytesWritten(name, n)
	}
	return nil
}

func (w *Writer) flushSink() error {
	f, ok := w.sink.(interface{ Flush() error })
	if !ok {
		return nil
	}
	if err := f.Flush(); err != nil {
		w.err = &apperrors.StorageError{Operation: "flush", Path: w.location, Err: err}
		return w.err
	}
	return nil
}

// discard closes the writer without completing the file.
func (w *Writer) discard(cause error) {
	w.lifecycle.MarkClosed()
	w.block.Reset()

	var err error
	switch sink := w.sink.(type) {
	case nil:
	case interface{ Abort(error) error }:
		err = sink.Abort(cause)
	case io.Closer:
		err = sink.Close()
	}
	if err != nil {
		w.logger.Error("failed to release container sink",
			"location", w.location,
			"error", err,
		)
	}
	w.releaseCodec()
}

func (w *Writer) releaseCodec() {
	if c, ok := w.codec.(io.Closer); ok {
		if err := c.Close(); err != nil {
			w.logger.Warn("failed to release codec", "codec", w.codec.Name(), "error", err)
		}
	}
}
