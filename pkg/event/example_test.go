package event_test

import (
	"fmt"
	"time"

	"github.com/jittakal/kafavrosink/pkg/event"
)

func ExamplePartitionID_String() {
	pid := event.PartitionID{
		Topic:     "user-events",
		Partition: 5,
	}

	fmt.Println(pid.String())
	// Output: user-events-5
}

func ExampleConsumedEvent_EventTime() {
	kafkaTime := time.Date(2025, 12, 21, 10, 30, 0, 0, time.UTC)

	ce := event.ConsumedEvent{
		Event: &event.Event{
			Body:    []byte{0x02, 0x61},
			Headers: map[string]string{"timestamp": "1766313000000"},
		},
		Metadata: event.KafkaMetadata{
			Topic:     "user-events",
			Partition: 0,
			Offset:    42,
			Timestamp: kafkaTime.Add(time.Hour),
		},
	}

	fmt.Println(ce.EventTime().Format("2006-01-02 15:04:05"))
	// Output: 2025-12-21 10:30:00
}

func ExampleConsumedEvent_EventTimeUnix() {
	now := time.Date(2025, 12, 21, 10, 30, 0, 0, time.UTC)

	ce := event.ConsumedEvent{
		Event: &event.Event{Body: []byte{0x00}},
		Metadata: event.KafkaMetadata{
			Timestamp: now,
		},
	}

	fmt.Println(ce.EventTimeUnix())
	// Output: 1766313000
}
