// Package event defines the types that flow from Kafka into container files.
//
// # Core Types
//
// Event is an opaque payload with headers. The body is never decoded here;
// it is trusted to already be a binary Avro datum matching the writer schema:
//
//	evt := &event.Event{
//	    Body:    datum,
//	    Headers: map[string]string{"timestamp": "1766313000000"},
//	}
//
// # Consumed Events
//
// ConsumedEvent pairs an Event with Kafka metadata and a commit callback:
//
//	ce := &event.ConsumedEvent{
//	    Event: evt,
//	    Metadata: event.KafkaMetadata{
//	        Topic:     "users",
//	        Partition: 0,
//	        Offset:    12345,
//	        Timestamp: time.Now(),
//	    },
//	}
//
// # Partition Identification
//
// PartitionID uniquely identifies a Kafka topic partition:
//
//	pid := event.PartitionID{Topic: "users", Partition: 5}
//	key := pid.String() // "users-5"
//
// # Time Utilities
//
//	eventTime := ce.EventTime()      // time.Time
//	unixTime := ce.EventTimeUnix()   // Unix seconds
//
// The timestamp header (Unix milliseconds) wins over the Kafka timestamp.
package event
