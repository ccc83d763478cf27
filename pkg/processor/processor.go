// Package processor handles incoming ingest messages: content writes,
// equivalence assertions and schedule batches. Each message type routes to
// its engine and the resulting changes fan out to the materialised views
// and the event stream.
package processor

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/schedule"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
	"github.com/Ramsey-B/sorrel/pkg/writing"
)

// ContentEngine is the write engine surface the processor drives.
type ContentEngine interface {
	WriteContent(ctx context.Context, content models.Content) (models.WriteResult, error)
}

// AssertionStore persists equivalence assertions and reports the graph
// change they caused.
type AssertionStore interface {
	WriteAssertions(ctx context.Context, subject models.ContentRef, asserted []models.ContentRef) (models.EquivalenceGraphUpdate, error)
}

// Consolidator maintains the materialised equivalence view.
type Consolidator interface {
	UpdateEquivalences(ctx context.Context, update models.EquivalenceGraphUpdate) error
	UpdateContent(ctx context.Context, content models.Content) error
}

// ScheduleReconciler applies schedule batches.
type ScheduleReconciler interface {
	WriteSchedule(ctx context.Context, publisher, channelID string, interval models.Interval, hierarchies []models.ScheduleHierarchy) (schedule.ReconcileResult, error)
}

// ProjectionInvalidator drops cached schedule projections.
type ProjectionInvalidator interface {
	ScheduleUpdated(ctx context.Context, channelID string) error
	EquivalencesUpdated(ctx context.Context) error
}

// EquivalenceNotifier announces consolidated graph updates.
type EquivalenceNotifier interface {
	NotifyEquivalenceUpdate(ctx context.Context, update models.EquivalenceGraphUpdate) error
}

// ScheduleNotifier announces reconciled schedules.
type ScheduleNotifier interface {
	NotifyScheduleUpdate(ctx context.Context, publisher, channelID string, interval models.Interval, entries, staleUnlinked int) error
}

// Processor routes ingest messages to the content, equivalence and
// schedule pipelines.
type Processor struct {
	logger       ectologger.Logger
	engine       ContentEngine
	assertions   AssertionStore
	consolidator Consolidator
	reconciler   ScheduleReconciler
	projections  ProjectionInvalidator
	equivEvents  EquivalenceNotifier
	schedEvents  ScheduleNotifier
}

// NewProcessor creates a new ingest processor. projections and the two
// notifiers may be nil.
func NewProcessor(
	logger ectologger.Logger,
	engine ContentEngine,
	assertions AssertionStore,
	consolidator Consolidator,
	reconciler ScheduleReconciler,
	projections ProjectionInvalidator,
	equivEvents EquivalenceNotifier,
	schedEvents ScheduleNotifier,
) *Processor {
	return &Processor{
		logger:       logger,
		engine:       engine,
		assertions:   assertions,
		consolidator: consolidator,
		reconciler:   reconciler,
		projections:  projections,
		equivEvents:  equivEvents,
		schedEvents:  schedEvents,
	}
}

// HandleMessage is the Kafka consumer entry point.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"message_type": msg.MessageType(),
		"topic":        msg.Topic,
		"offset":       msg.Offset,
	})

	switch msg.MessageType() {
	case models.IngestTypeContent:
		return p.handleContentWrite(ctx, msg)
	case models.IngestTypeEquivalence:
		return p.handleEquivalenceAssert(ctx, msg)
	case models.IngestTypeSchedule:
		return p.handleScheduleWrite(ctx, msg)
	default:
		// Unknown types are committed, not retried.
		log.Warn("Ignoring message with unknown type")
		return nil
	}
}

func (p *Processor) handleContentWrite(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleContentWrite")
	defer span.End()

	parsed, err := msg.ParseContentWrite()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to parse content write message")
		return nil
	}
	content, err := parsed.DecodeContent()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to decode content envelope")
		return nil
	}

	result, err := p.engine.WriteContent(ctx, content)
	if err != nil {
		// Bad input is logged and committed; only infrastructure failures
		// are retried.
		if writing.IsPrecondition(err) || writing.IsMissingResource(err) {
			p.logger.WithContext(ctx).WithError(err).Warn("Rejected content write")
			return nil
		}
		return errors.Wrap(err, "failed to write content")
	}

	if !result.Written {
		return nil
	}
	if err := p.consolidator.UpdateContent(ctx, result.Resource); err != nil {
		return errors.Wrap(err, "failed to refresh equivalence view for content write")
	}
	return nil
}

func (p *Processor) handleEquivalenceAssert(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleEquivalenceAssert")
	defer span.End()

	parsed, err := msg.ParseEquivalenceAssert()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to parse equivalence assertion")
		return nil
	}

	update, err := p.assertions.WriteAssertions(ctx, parsed.Subject, parsed.Asserted)
	if err != nil {
		return errors.Wrap(err, "failed to write equivalence assertions")
	}

	if err := p.consolidator.UpdateEquivalences(ctx, update); err != nil {
		return errors.Wrap(err, "failed to consolidate equivalence update")
	}

	if p.projections != nil {
		if err := p.projections.EquivalencesUpdated(ctx); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to invalidate schedule projections")
		}
	}
	if p.equivEvents != nil {
		if err := p.equivEvents.NotifyEquivalenceUpdate(ctx, update); err != nil {
			p.logger.WithContext(ctx).WithError(err).Error("Failed to emit equivalence event")
		}
	}
	return nil
}

func (p *Processor) handleScheduleWrite(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleScheduleWrite")
	defer span.End()

	parsed, err := msg.ParseScheduleWrite()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to parse schedule write message")
		return nil
	}
	hierarchies, err := parsed.Hierarchies()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to decode schedule hierarchies")
		return nil
	}

	result, err := p.reconciler.WriteSchedule(ctx, parsed.Publisher, parsed.ChannelID, parsed.Interval, hierarchies)
	if err != nil {
		if schedule.IsValidation(err) {
			p.logger.WithContext(ctx).WithError(err).Warn("Rejected schedule batch")
			return nil
		}
		return errors.Wrap(err, "failed to reconcile schedule")
	}

	if !result.Written {
		return nil
	}
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"channel_id": parsed.ChannelID,
		"writes":     len(result.Results),
		"stale":      result.StaleUnlinked,
	}).Debug("Schedule batch applied")
	if p.projections != nil {
		if err := p.projections.ScheduleUpdated(ctx, parsed.ChannelID); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to invalidate schedule projections")
		}
	}
	if p.schedEvents != nil {
		if err := p.schedEvents.NotifyScheduleUpdate(ctx, parsed.Publisher, parsed.ChannelID, parsed.Interval, result.EntriesInput, result.StaleUnlinked); err != nil {
			p.logger.WithContext(ctx).WithError(err).Error("Failed to emit schedule event")
		}
	}
	return nil
}
