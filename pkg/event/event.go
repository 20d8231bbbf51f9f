// Package event defines core event types handed from the ingestion
// pipeline to container writers.
package event

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampHeader is the header carrying the producer-assigned event time
// as Unix milliseconds.
const TimestampHeader = "timestamp"

// Event is an opaque record payload plus its string headers.
// Body is expected to already be a binary-encoded Avro datum.
type Event struct {
	Body    []byte
	Headers map[string]string
}

// KafkaMetadata contains Kafka-specific metadata for an event.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// FileStats contains statistics about an open container file.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// ConsumedEvent represents an event consumed from Kafka.
type ConsumedEvent struct {
	Event      *Event
	Metadata   KafkaMetadata
	CommitFunc func() error
}

// PartitionID returns the partition the event was consumed from.
func (c *ConsumedEvent) PartitionID() PartitionID {
	return PartitionID{Topic: c.Metadata.Topic, Partition: c.Metadata.Partition}
}

// EventTime returns the event's timestamp.
// It uses the timestamp header when present and parseable, otherwise the
// Kafka message timestamp.
func (c *ConsumedEvent) EventTime() time.Time {
	if c.Event != nil {
		if raw, ok := c.Event.Headers[TimestampHeader]; ok {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC()
			}
		}
	}
	return c.Metadata.Timestamp
}

// EventTimeUnix returns the event's timestamp as Unix seconds.
func (c *ConsumedEvent) EventTimeUnix() int64 {
	return c.EventTime().Unix()
}
