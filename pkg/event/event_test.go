package event

import (
	"testing"
	"time"
)

func TestPartitionID_String(t *testing.T) {
	tests := []struct {
		name      string
		partition PartitionID
		want      string
	}{
		{
			name:      "basic partition",
			partition: PartitionID{Topic: "test-topic", Partition: 0},
			want:      "test-topic-0",
		},
		{
			name:      "partition 10",
			partition: PartitionID{Topic: "my-topic", Partition: 10},
			want:      "my-topic-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.partition.String(); got != tt.want {
				t.Errorf("PartitionID.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsumedEvent_PartitionID(t *testing.T) {
	ce := &ConsumedEvent{
		Metadata: KafkaMetadata{Topic: "orders", Partition: 3},
	}

	want := PartitionID{Topic: "orders", Partition: 3}
	if got := ce.PartitionID(); got != want {
		t.Errorf("PartitionID() = %v, want %v", got, want)
	}
}

func TestConsumedEvent_EventTime(t *testing.T) {
	kafkaTime := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	headerTime := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		headers map[string]string
		event   bool
		want    time.Time
	}{
		{
			name:    "timestamp header wins",
			headers: map[string]string{TimestampHeader: "1717230600000"},
			event:   true,
			want:    headerTime,
		},
		{
			name:    "no headers falls back to kafka",
			headers: nil,
			event:   true,
			want:    kafkaTime,
		},
		{
			name:    "malformed header falls back to kafka",
			headers: map[string]string{TimestampHeader: "yesterday"},
			event:   true,
			want:    kafkaTime,
		},
		{
			name:  "nil event falls back to kafka",
			event: false,
			want:  kafkaTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := &ConsumedEvent{
				Metadata: KafkaMetadata{Timestamp: kafkaTime},
			}
			if tt.event {
				ce.Event = &Event{Body: []byte("x"), Headers: tt.headers}
			}

			got := ce.EventTime()
			if !got.Equal(tt.want) {
				t.Errorf("EventTime() = %v, want %v", got, tt.want)
			}
			if ce.EventTimeUnix() != tt.want.Unix() {
				t.Errorf("EventTimeUnix() = %d, want %d", ce.EventTimeUnix(), tt.want.Unix())
			}
		})
	}
}
