// Package events announces content, equivalence and schedule changes to
// downstream consumers over Kafka.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Event types carried in the event_type header.
const (
	EventTypeContentCreated     = "content.created"
	EventTypeContentUpdated     = "content.updated"
	EventTypeEquivalenceUpdated = "equivalence.updated"
	EventTypeScheduleUpdated    = "schedule.updated"
)

// Emitter turns domain changes into Kafka events. It satisfies the write
// engine's change notifier.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// NotifyContentChange emits a content.created or content.updated event for
// a completed write.
func (e *Emitter) NotifyContentChange(ctx context.Context, result models.WriteResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.NotifyContentChange")
	defer span.End()

	eventType := EventTypeContentUpdated
	if result.Previous == nil {
		eventType = EventTypeContentCreated
	}

	core := result.Resource.Core()
	data, err := models.MarshalContent(result.Resource)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to encode content event payload")
		return err
	}

	event := &kafka.ContentEvent{
		EventType:   eventType,
		ContentID:   *core.ID,
		Publisher:   core.Publisher,
		ContentType: string(result.Resource.Type()),
		Data:        data,
		Timestamp:   result.WrittenAt,
	}

	if err := e.producer.PublishContentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}

// NotifyEquivalenceUpdate emits an equivalence.updated event for a
// consolidated graph update.
func (e *Emitter) NotifyEquivalenceUpdate(ctx context.Context, update models.EquivalenceGraphUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.NotifyEquivalenceUpdate")
	defer span.End()

	createdSetIDs := make([]int64, 0, len(update.Created))
	for _, graph := range update.Created {
		createdSetIDs = append(createdSetIDs, graph.SetID())
	}

	event := &kafka.EquivalenceEvent{
		EventType:  EventTypeEquivalenceUpdated,
		SetID:      update.Updated.SetID(),
		MemberIDs:  update.Updated.MemberIDs(),
		CreatedSet: createdSetIDs,
		DeletedSet: update.Deleted,
	}

	if err := e.producer.PublishEquivalenceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit equivalence.updated event")
		return err
	}
	return nil
}

// NotifyScheduleUpdate emits a schedule.updated event for a reconciled
// channel interval.
func (e *Emitter) NotifyScheduleUpdate(ctx context.Context, publisher, channelID string, interval models.Interval, entries, staleUnlinked int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.NotifyScheduleUpdate")
	defer span.End()

	event := &kafka.ScheduleEvent{
		EventType:     EventTypeScheduleUpdated,
		Publisher:     publisher,
		ChannelID:     channelID,
		IntervalStart: interval.Start,
		IntervalEnd:   interval.End,
		Entries:       entries,
		StaleUnlinked: staleUnlinked,
	}

	if err := e.producer.PublishScheduleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit schedule.updated event")
		return err
	}
	return nil
}
