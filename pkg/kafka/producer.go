package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ContentEvent announces a content write
type ContentEvent struct {
	EventType   string          `json:"event_type"` // content.created, content.updated
	ContentID   int64           `json:"content_id"`
	Publisher   string          `json:"publisher"`
	ContentType string          `json:"content_type"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// EquivalenceEvent announces a consolidated graph update
type EquivalenceEvent struct {
	EventType  string    `json:"event_type"` // equivalence.updated
	SetID      int64     `json:"set_id"`
	MemberIDs  []int64   `json:"member_ids"`
	CreatedSet []int64   `json:"created_set_ids,omitempty"`
	DeletedSet []int64   `json:"deleted_set_ids,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ScheduleEvent announces a reconciled channel interval
type ScheduleEvent struct {
	EventType     string    `json:"event_type"` // schedule.updated
	Publisher     string    `json:"publisher"`
	ChannelID     string    `json:"channel_id"`
	IntervalStart time.Time `json:"interval_start"`
	IntervalEnd   time.Time `json:"interval_end"`
	Entries       int       `json:"entries"`
	StaleUnlinked int       `json:"stale_unlinked"`
	Timestamp     time.Time `json:"timestamp"`
}

// PublishContentEvent publishes a content event to Kafka
func (p *Producer) PublishContentEvent(ctx context.Context, event *ContentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishContentEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Publisher),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "publisher", Value: []byte(event.Publisher)},
			{Key: "content_type", Value: []byte(event.ContentType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish content event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"content_id": event.ContentID,
		"publisher":  event.Publisher,
	}).Debug("Published content event")

	return nil
}

// PublishEquivalenceEvent publishes an equivalence event to Kafka
func (p *Producer) PublishEquivalenceEvent(ctx context.Context, event *EquivalenceEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishEquivalenceEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish equivalence event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"set_id":     event.SetID,
	}).Debug("Published equivalence event")

	return nil
}

// PublishScheduleEvent publishes a schedule event to Kafka
func (p *Producer) PublishScheduleEvent(ctx context.Context, event *ScheduleEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishScheduleEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ChannelID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "publisher", Value: []byte(event.Publisher)},
			{Key: "channel_id", Value: []byte(event.ChannelID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish schedule event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"channel_id": event.ChannelID,
	}).Debug("Published schedule event")

	return nil
}
