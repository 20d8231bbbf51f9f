package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/consumer"
	"github.com/jittakal/kafavrosink/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// Headers added to every message published to the DLQ.
const (
	HeaderFailureReason     = "failure_reason"
	HeaderOriginalTopic     = "original_topic"
	HeaderOriginalPartition = "original_partition"
	HeaderOriginalOffset    = "original_offset"
	HeaderProcessorID       = "processor_id"
	HeaderFailureTimestamp  = "failure_timestamp"
)

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
	MaxRetries  int
}

// DLQMetricsCollector counts DLQ publishes.
type DLQMetricsCollector interface {
	IncDLQMessages(topic, status string)
}

// DLQPublisher publishes failed events to a dead letter queue. The original
// body is republished byte for byte so the record can be replayed once the
// failure is fixed; failure details travel as headers.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	metrics     DLQMetricsCollector
	mu          sync.RWMutex
	closed      bool
	processorID string
	now         func() time.Time
}

// NewDLQPublisher creates a new DLQ publisher.
func NewDLQPublisher(
	bootstrapServers []string,
	securityConfig ConsumerConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) (*DLQPublisher, error) {
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, metrics, processorID), nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	if dlqConfig.MaxRetries > 0 {
		saramaConfig.Producer.Retry.Max = dlqConfig.MaxRetries
	}
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Security configuration (reuse consumer security)
	if err := configureSecurity(saramaConfig, securityConfig); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)

	return newDLQPublisher(producer, dlqConfig, logger, metrics, processorID), nil
}

func newDLQPublisher(producer sarama.SyncProducer, config DLQConfig, logger *slog.Logger, metrics DLQMetricsCollector, processorID string) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		processorID: processorID,
		now:         time.Now,
	}
}

// Topic returns the DLQ topic for a source topic.
func (p *DLQPublisher) Topic(sourceTopic string) string {
	return sourceTopic + p.config.TopicSuffix
}

// Publish publishes a failed event to the DLQ.
func (p *DLQPublisher) Publish(
	ctx context.Context,
	evt *event.Event,
	metadata event.KafkaMetadata,
	reason string,
) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrConsumerClosed
	}

	if !p.config.Enabled || p.producer == nil {
		p.logger.Debug("DLQ disabled, skipping publish",
			"topic", metadata.Topic,
			"offset", metadata.Offset,
		)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dlqTopic := p.Topic(metadata.Topic)
	msg := p.message(dlqTopic, evt, metadata, reason)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"original_partition", metadata.Partition,
			"original_offset", metadata.Offset,
		)
		p.incMessages(dlqTopic, "error")
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.logger.Info("published event to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"original_offset", metadata.Offset,
		"reason", reason,
	)
	p.incMessages(dlqTopic, "success")

	return nil
}

func (p *DLQPublisher) message(topic string, evt *event.Event, metadata event.KafkaMetadata, reason string) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Timestamp: p.now(),
	}
	if len(metadata.Key) > 0 {
		msg.Key = sarama.ByteEncoder(metadata.Key)
	}

	var headers map[string]string
	if evt != nil {
		msg.Value = sarama.ByteEncoder(evt.Body)
		headers = evt.Headers
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg.Headers = append(msg.Headers,
		sarama.RecordHeader{Key: []byte(HeaderFailureReason), Value: []byte(reason)},
		sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(metadata.Topic)},
		sarama.RecordHeader{Key: []byte(HeaderOriginalPartition), Value: []byte(strconv.FormatInt(int64(metadata.Partition), 10))},
		sarama.RecordHeader{Key: []byte(HeaderOriginalOffset), Value: []byte(strconv.FormatInt(metadata.Offset, 10))},
		sarama.RecordHeader{Key: []byte(HeaderProcessorID), Value: []byte(p.processorID)},
		sarama.RecordHeader{Key: []byte(HeaderFailureTimestamp), Value: []byte(p.now().UTC().Format(time.RFC3339Nano))},
	)
	return msg
}

func (p *DLQPublisher) incMessages(topic, status string) {
	if p.metrics != nil {
		p.metrics.IncDLQMessages(topic, status)
	}
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing DLQ publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
