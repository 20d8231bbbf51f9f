// Package kafka implements the Kafka consumer feeding the container file
// pipeline and the dead letter queue producer.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/kafavrosink/internal/errors"
	"github.com/jittakal/kafavrosink/pkg/consumer"
	"github.com/jittakal/kafavrosink/pkg/event"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ consumer.Consumer = (*SaramaConsumer)(nil)
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers      []string
	GroupID               string
	SecurityProtocol      string
	SASLMechanism         string
	SASLUsername          string
	SASLPassword          string
	AWSRegion             string
	TLSInsecureSkipVerify bool
	AutoOffsetReset       string
	EnableAutoCommit      bool
	MaxPollIntervalMS     int
	SessionTimeoutMS      int
	HeartbeatIntervalMS   int
}

// MetricsCollector defines metrics operations for Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncRebalances(groupID string)
	IncOffsetCommits(topic string, partition int32, status string)
	ObserveRebalanceDuration(groupID string, duration float64)
	ObserveCommitLatency(topic string, partition int32, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// SaramaConsumer implements the consumer.Consumer interface using the Sarama library.
// Message values are passed through untouched as event bodies; offsets are
// only marked when the event's CommitFunc is called.
type SaramaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	logger        *slog.Logger
	metrics       MetricsCollector
	topics        []string
	ready         chan struct{}
	inSession     atomic.Bool
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaConsumer creates a new Kafka consumer using Sarama library.
func NewSaramaConsumer(
	config ConsumerConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SaramaConsumer, error) {
	saramaConfig, err := newConsumerConfig(config)
	if err != nil {
		return nil, err
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"session_timeout_ms", config.SessionTimeoutMS,
		"max_poll_interval_ms", config.MaxPollIntervalMS,
	)

	return newSaramaConsumer(consumerGroup, config, logger, metrics), nil
}

func newSaramaConsumer(group sarama.ConsumerGroup, config ConsumerConfig, logger *slog.Logger, metrics MetricsCollector) *SaramaConsumer {
	return &SaramaConsumer{
		consumerGroup: group,
		config:        config,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan struct{}),
	}
}

func newConsumerConfig(config ConsumerConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = config.EnableAutoCommit

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}

	// Files stay open for minutes, so processing time is bounded by the
	// flush interval rather than per message.
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return saramaConfig, nil
}

// Subscribe subscribes to the specified topics.
func (c *SaramaConsumer) Subscribe(ctx context.Context, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrConsumerClosed
	}

	c.topics = topics
	c.logger.Info("subscribed to topics", "topics", topics)
	return nil
}

// Consume joins the group and returns channels for events and errors. It
// blocks until the first session is set up, the group fails, or ctx ends.
func (c *SaramaConsumer) Consume(ctx context.Context) (<-chan *event.ConsumedEvent, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, errors.ErrConsumerClosed
	}
	topics := c.topics
	c.mu.RUnlock()

	if len(topics) == 0 {
		return nil, nil, fmt.Errorf("no topics subscribed")
	}

	eventChan := make(chan *event.ConsumedEvent, 100)
	errorChan := make(chan error, 10)
	stopped := make(chan struct{})

	handler := &consumerGroupHandler{
		consumer:  c,
		eventChan: eventChan,
		ready:     c.ready,
	}

	go func() {
		defer close(stopped)
		for {
			select {
			case err, ok := <-c.consumerGroup.Errors():
				if ok {
					c.logger.Warn("consumer group error", "error", err)
				}
			default:
			}

			if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
				if ctx.Err() == nil {
					c.logger.Error("consumer group session failed", "error", err)
					errorChan <- fmt.Errorf("%w: %v", errors.ErrConnectionLost, err)
				}
				return
			}
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled")
				return
			}
		}
	}()

	go func() {
		<-stopped
		close(eventChan)
		close(errorChan)
	}()

	select {
	case <-c.ready:
	case <-stopped:
		return eventChan, errorChan, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	c.logger.Info("kafka consumer started and ready")
	return eventChan, errorChan, nil
}

// Ready reports whether the consumer currently holds a group session.
func (c *SaramaConsumer) Ready() bool {
	return c.inSession.Load()
}

// Close closes the consumer and releases resources.
func (c *SaramaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.inSession.Store(false)
	c.logger.Info("closing kafka consumer")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer       *SaramaConsumer
	eventChan      chan<- *event.ConsumedEvent
	ready          chan struct{}
	readyOnce      sync.Once
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()

	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if h.consumer.metrics != nil {
		h.consumer.metrics.IncRebalances(h.consumer.config.GroupID)
		for topic, partitions := range session.Claims() {
			h.consumer.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.consumer.inSession.Store(true)
	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.inSession.Store(false)

	if h.consumer.metrics != nil && !h.rebalanceStart.IsZero() {
		h.consumer.metrics.ObserveRebalanceDuration(
			h.consumer.config.GroupID,
			time.Since(h.rebalanceStart).Seconds(),
		)
	}

	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim forwards messages from a partition.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	h.consumer.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			h.consumer.logger.Debug("received kafka message",
				"topic", message.Topic,
				"partition", message.Partition,
				"offset", message.Offset,
				"value_size", len(message.Value),
			)

			select {
			case h.eventChan <- h.toConsumedEvent(session, message):
				if h.consumer.metrics != nil {
					h.consumer.metrics.IncMessagesConsumed(message.Topic, message.Partition)
				}
			case <-session.Context().Done():
				return nil
			}

		case <-session.Context().Done():
			h.consumer.logger.Info("session context done, stopping partition consumption",
				"topic", claim.Topic(),
				"partition", claim.Partition(),
			)
			return nil
		}
	}
}

func (h *consumerGroupHandler) toConsumedEvent(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) *event.ConsumedEvent {
	headers := extractHeaders(message.Headers)

	return &event.ConsumedEvent{
		Event: &event.Event{
			Body:    message.Value,
			Headers: headers,
		},
		Metadata: event.KafkaMetadata{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			Key:       message.Key,
			Headers:   headers,
			Timestamp: message.Timestamp,
		},
		CommitFunc: func() error {
			return h.commit(session, message)
		},
	}
}

// commit marks message consumed. Without auto-commit the session is
// committed synchronously.
func (h *consumerGroupHandler) commit(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) error {
	start := time.Now()

	session.MarkMessage(message, "")
	if !h.consumer.config.EnableAutoCommit {
		session.Commit()
	}

	if h.consumer.metrics != nil {
		h.consumer.metrics.ObserveCommitLatency(message.Topic, message.Partition, time.Since(start).Seconds())
		h.consumer.metrics.IncOffsetCommits(message.Topic, message.Partition, "success")
	}
	return nil
}

// extractHeaders extracts headers from Kafka message.
func extractHeaders(headers []*sarama.RecordHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		result[string(header.Key)] = string(header.Value)
	}
	return result
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
