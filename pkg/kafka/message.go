package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string
}

// MessageType returns the ingest type carried in the message_type header.
func (m *IncomingMessage) MessageType() string {
	return m.Headers["message_type"]
}

// Publisher returns the publisher header, when the producer set one.
func (m *IncomingMessage) Publisher() string {
	return m.Headers["publisher"]
}

// ParseContentWrite parses the message value as a content write.
func (m *IncomingMessage) ParseContentWrite() (*models.ContentWriteMessage, error) {
	var msg models.ContentWriteMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseEquivalenceAssert parses the message value as an equivalence
// assertion.
func (m *IncomingMessage) ParseEquivalenceAssert() (*models.EquivalenceAssertMessage, error) {
	var msg models.EquivalenceAssertMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseScheduleWrite parses the message value as a schedule batch.
func (m *IncomingMessage) ParseScheduleWrite() (*models.ScheduleWriteMessage, error) {
	var msg models.ScheduleWriteMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
