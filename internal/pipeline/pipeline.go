// Package pipeline turns a stream of consumed Kafka events into rolling
// Avro container files, one open file per partition.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/consumer"
	"github.com/jittakal/kafavrosink/pkg/event"
	"github.com/jittakal/kafavrosink/pkg/serializer"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// File outcomes reported to MetricsCollector.IncFiles.
const (
	FileStatusCommitted = "committed"
	FileStatusFailed    = "failed"
)

// DefaultFlushInterval is used when Config.FlushInterval is not positive.
const DefaultFlushInterval = 30 * time.Second

// MetricsCollector defines metrics operations for the pipeline.
type MetricsCollector interface {
	IncFiles(topic, status string)
	ObserveFileSize(topic string, bytes float64)
	SetOpenFiles(count float64)
}

// Config configures the pipeline.
type Config struct {
	// Serializer is handed to the builder for every new file.
	Serializer serializer.Config

	// FlushInterval is how often open files are flushed and checked for
	// age-based rotation.
	FlushInterval time.Duration
}

// Pipeline writes consumed events into container files and commits their
// offsets once the file holding them is durable.
//
// Handle, Tick and Close may be called from different goroutines.
type Pipeline struct {
	sinks   storage.SinkOpener
	router  storage.Router
	policy  storage.RotationPolicy
	builder serializer.Builder
	dlq     consumer.DLQPublisher
	config  Config
	logger  *slog.Logger
	metrics MetricsCollector
	now     func() time.Time

	mu     sync.Mutex
	files  map[event.PartitionID]*openFile
	closed bool
}

// New creates a pipeline. dlq and metrics may be nil.
func New(
	config Config,
	sinks storage.SinkOpener,
	router storage.Router,
	policy storage.RotationPolicy,
	builder serializer.Builder,
	dlq consumer.DLQPublisher,
	logger *slog.Logger,
	metrics MetricsCollector,
) *Pipeline {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	return &Pipeline{
		sinks:   sinks,
		router:  router,
		policy:  policy,
		builder: builder,
		dlq:     dlq,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		files:   make(map[event.PartitionID]*openFile),
	}
}

// Run consumes events until ctx is cancelled or the event channel closes.
// Consumer errors are logged; the last one is returned when the event
// channel closes. Open files are left for Close.
func (p *Pipeline) Run(ctx context.Context, events <-chan *event.ConsumedEvent, errs <-chan error) error {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, stopping processing")
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("consumer error", "error", err)
			lastErr = err

		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				return err
			}

		case ce, ok := <-events:
			if !ok {
				p.logger.Info("event channel closed")
				return lastErr
			}
			if err := p.Handle(ctx, ce); err != nil {
				return err
			}
		}
	}
}

// Handle appends one event to its partition's open file, starting a file
// if needed, and rotates the file when the policy says so.
//
// A returned error is fatal: the event was neither written nor sent to the
// DLQ and its offset is not committed.
func (p *Pipeline) Handle(ctx context.Context, ce *event.ConsumedEvent) error {
	if ce == nil || ce.Event == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return apperrors.ErrPipelineClosed
	}

	pid := ce.PartitionID()
	f, ok := p.files[pid]
	if !ok {
		var err error
		f, err = p.open(ctx, pid, ce)
		if err != nil {
			return &apperrors.ProcessingError{PartitionID: pid, Offset: ce.Metadata.Offset, Err: err}
		}
		p.files[pid] = f
		p.setOpenFiles()
	}

	f.pending = append(f.pending, ce)
	if err := f.serializer.Write(ce.Event.Body); err != nil {
		return p.fail(ctx, pid, f, "write_failed", err)
	}

	now := p.now()
	f.stats.RecordCount++
	f.stats.SizeBytes = f.sink.written
	f.stats.LastWriteTime = now
	if f.stats.FirstWriteTime.IsZero() {
		f.stats.FirstWriteTime = now
	}

	if p.policy.ShouldRotate(f.stats) {
		return p.rotate(ctx, pid, f)
	}
	return nil
}

// Tick flushes every open file and rotates the ones the policy marks as
// due, so idle partitions still roll on age.
func (p *Pipeline) Tick(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pid, f := range p.files {
		if p.policy.ShouldRotate(f.stats) {
			if err := p.rotate(ctx, pid, f); err != nil {
				return err
			}
			continue
		}
		if err := f.serializer.Flush(); err != nil {
			if err := p.fail(ctx, pid, f, "flush_failed", err); err != nil {
				return err
			}
			continue
		}
		f.stats.SizeBytes = f.sink.written
	}
	return nil
}

// OpenFiles returns the number of files currently open.
func (p *Pipeline) OpenFiles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

// Close closes every open file and commits the offsets it holds. It must
// run while the consumer session that delivered the events is still alive.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for pid, f := range p.files {
		if err := p.rotate(ctx, pid, f); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.logger.Info("pipeline closed")
	return firstErr
}

func (p *Pipeline) open(ctx context.Context, pid event.PartitionID, first *event.ConsumedEvent) (*openFile, error) {
	location := p.router.Route(pid, first.EventTimeUnix()) + p.router.FileName(pid)

	sink, err := p.sinks.Create(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	counted := &countingSink{Sink: sink}

	s, err := p.builder.Build(ctx, p.config.Serializer, counted)
	if err != nil {
		p.abort(location, counted, err)
		return nil, fmt.Errorf("failed to build serializer for %s: %w", location, err)
	}
	if err := s.Create(); err != nil {
		p.abort(location, counted, err)
		return nil, fmt.Errorf("failed to create %s: %w", location, err)
	}

	p.logger.Info("opened container file",
		"topic", pid.Topic,
		"partition", pid.Partition,
		"location", location,
		"first_offset", first.Metadata.Offset,
	)

	return &openFile{
		location:   location,
		sink:       counted,
		serializer: s,
	}, nil
}

// rotate closes f and commits the offsets of the events it holds.
func (p *Pipeline) rotate(ctx context.Context, pid event.PartitionID, f *openFile) error {
	if err := f.serializer.Close(); err != nil {
		return p.fail(ctx, pid, f, "close_failed", err)
	}

	delete(p.files, pid)
	p.setOpenFiles()

	p.logger.Info("closed container file",
		"topic", pid.Topic,
		"partition", pid.Partition,
		"location", f.location,
		"records", f.stats.RecordCount,
		"bytes", f.sink.written,
	)
	if p.metrics != nil {
		p.metrics.IncFiles(pid.Topic, FileStatusCommitted)
		p.metrics.ObserveFileSize(pid.Topic, float64(f.sink.written))
	}

	p.commit(pid, f.pending)
	return nil
}

// fail discards f, sends its events to the DLQ and commits past them.
// It returns an error only when the DLQ could not take the events.
func (p *Pipeline) fail(ctx context.Context, pid event.PartitionID, f *openFile, reason string, cause error) error {
	p.logger.Error("container file failed",
		"topic", pid.Topic,
		"partition", pid.Partition,
		"location", f.location,
		"reason", reason,
		"pending_events", len(f.pending),
		"error", cause,
	)

	p.abort(f.location, f.sink, cause)
	if err := f.serializer.Close(); err != nil {
		p.logger.Debug("serializer close after failure", "location", f.location, "error", err)
	}

	delete(p.files, pid)
	p.setOpenFiles()
	if p.metrics != nil {
		p.metrics.IncFiles(pid.Topic, FileStatusFailed)
	}

	if p.dlq != nil {
		for _, ce := range f.pending {
			if err := p.dlq.Publish(ctx, ce.Event, ce.Metadata, reason); err != nil {
				return &apperrors.ProcessingError{
					PartitionID: pid,
					Offset:      ce.Metadata.Offset,
					Err:         fmt.Errorf("dlq publish failed after %s: %w", reason, err),
				}
			}
		}
	} else {
		p.logger.Warn("no DLQ configured, dropping events of failed file",
			"topic", pid.Topic,
			"partition", pid.Partition,
			"pending_events", len(f.pending),
		)
	}

	p.commit(pid, f.pending)
	return nil
}

func (p *Pipeline) abort(location string, sink storage.Sink, cause error) {
	if err := sink.Abort(cause); err != nil {
		p.logger.Warn("failed to abort container file", "location", location, "error", err)
	}
}

// commit marks the highest offset among pending; the group offset is
// cumulative so earlier events are covered.
func (p *Pipeline) commit(pid event.PartitionID, pending []*event.ConsumedEvent) {
	var last *event.ConsumedEvent
	for _, ce := range pending {
		if ce.CommitFunc != nil && (last == nil || ce.Metadata.Offset > last.Metadata.Offset) {
			last = ce
		}
	}
	if last == nil {
		return
	}

	if err := last.CommitFunc(); err != nil {
		p.logger.Error("failed to commit offset",
			"topic", pid.Topic,
			"partition", pid.Partition,
			"offset", last.Metadata.Offset,
			"error", err,
		)
	}
}

func (p *Pipeline) setOpenFiles() {
	if p.metrics != nil {
		p.metrics.SetOpenFiles(float64(len(p.files)))
	}
}

type openFile struct {
	location   string
	sink       *countingSink
	serializer serializer.EventSerializer
	stats      event.FileStats
	pending    []*event.ConsumedEvent
}

// countingSink tracks the bytes that reached the destination.
type countingSink struct {
	storage.Sink
	written int64
}

func (c *countingSink) Write(b []byte) (int, error) {
	n, err := c.Sink.Write(b)
	c.written += int64(n)
	return n, err
}
