// Package writing implements the content write path: resolve the previous
// version, detect no-op writes, assign ids, stamp timestamps and ripple
// child references into containers.
package writing

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/sorrel/pkg/clock"
	"github.com/Ramsey-B/sorrel/pkg/fingerprint"
	"github.com/Ramsey-B/sorrel/pkg/ids"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const (
	DefaultResolveTimeout = 10 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
)

// ContentResolver loads existing content by id or by publisher alias.
type ContentResolver interface {
	ResolveIDs(ctx context.Context, ids []int64) ([]models.Content, error)
	ResolveAliases(ctx context.Context, publisher string, aliases []models.Alias) ([]models.Content, error)
}

// ContentWriter persists a new version of a piece of content. previous is
// nil on first write.
type ContentWriter interface {
	WriteContent(ctx context.Context, content, previous models.Content) error
}

// ChangeNotifier announces a completed write to downstream consumers.
type ChangeNotifier interface {
	NotifyContentChange(ctx context.Context, result models.WriteResult) error
}

// Config tunes the engine's phase deadlines.
type Config struct {
	ResolveTimeout time.Duration
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = DefaultResolveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Engine is the content write engine.
type Engine struct {
	logger    ectologger.Logger
	resolver  ContentResolver
	writer    ContentWriter
	allocator ids.Allocator
	notifier  ChangeNotifier
	clock     clock.Clock
	config    Config
}

// NewEngine creates a write engine. notifier may be nil when change
// notification is not wired.
func NewEngine(
	logger ectologger.Logger,
	resolver ContentResolver,
	writer ContentWriter,
	allocator ids.Allocator,
	notifier ChangeNotifier,
	clk clock.Clock,
	config Config,
) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		logger:    logger,
		resolver:  resolver,
		writer:    writer,
		allocator: allocator,
		notifier:  notifier,
		clock:     clk,
		config:    config.withDefaults(),
	}
}

// WriteContent runs the full write algorithm for one piece of content.
//
// Behavior:
//   - Resolves the previous version by id when the input carries one,
//     otherwise by publisher aliases.
//   - Compares fingerprints over publisher-supplied fields; an unchanged
//     write persists nothing and reports the previous version.
//   - New content gets an id only after every referenced container has
//     resolved, so a missing container never consumes an id. An input id
//     that resolves to nothing is a first write under that id.
//   - Writing an item appends or refreshes its child ref on each declared
//     container and bumps the container's hierarchy timestamp.
func (e *Engine) WriteContent(ctx context.Context, content models.Content) (models.WriteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "writing.Engine.WriteContent")
	defer span.End()

	if content == nil {
		return models.WriteResult{}, NewPreconditionError("content is required")
	}
	core := content.Core()
	if core.Publisher == "" {
		return models.WriteResult{}, NewPreconditionError("content publisher is required")
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"publisher":    core.Publisher,
		"content_type": content.Type(),
	})

	input := content.Copy()
	resetChildRefs(input)

	previous, err := e.resolvePrevious(ctx, input)
	if err != nil {
		return models.WriteResult{}, err
	}
	if previous != nil {
		restoreChildRefs(input, previous)
	}

	now := e.clock.Now()

	if previous != nil {
		unchanged, err := e.unchanged(input, previous)
		if err != nil {
			return models.WriteResult{}, err
		}
		if unchanged {
			log.WithField("content_id", *previous.Core().ID).Debug("write is a no-op, skipping persist")
			return models.NewWriteResult(false, previous, previous, now), nil
		}
	}

	// Containers are fetched before any id is assigned so a missing
	// container leaves no side effects behind.
	containers, err := e.resolveContainers(ctx, input)
	if err != nil {
		return models.WriteResult{}, err
	}

	if previous != nil {
		prevCore := previous.Core()
		input.Core().ID = prevCore.ID
		input.Core().FirstSeen = prevCore.FirstSeen
	} else {
		if input.Core().ID == nil {
			id, err := e.allocator.NextID(ctx)
			if err != nil {
				return models.WriteResult{}, errors.Wrap(err, "failed to allocate content id")
			}
			input.Core().ID = &id
		}
		input.Core().FirstSeen = now
	}
	input.Core().LastUpdated = now
	input.Core().ThisOrChildLastUpdated = now

	writeCtx, cancel := context.WithTimeout(ctx, e.config.WriteTimeout)
	defer cancel()

	if err := e.writer.WriteContent(writeCtx, input, previous); err != nil {
		return models.WriteResult{}, errors.Wrap(err, "failed to persist content")
	}

	for _, container := range containers {
		if err := e.writeChildRef(writeCtx, container, input, now); err != nil {
			return models.WriteResult{}, err
		}
	}

	result := models.NewWriteResult(true, input, previous, now)

	if e.notifier != nil {
		// Notification failures do not fail the write.
		if err := e.notifier.NotifyContentChange(ctx, result); err != nil {
			log.WithError(err).WithField("content_id", *input.Core().ID).
				Error("failed to notify content change")
		}
	}

	log.WithFields(map[string]any{
		"content_id": *input.Core().ID,
		"created":    previous == nil,
	}).Info("content written")

	return result, nil
}

// resolvePrevious finds the stored version the input supersedes, or nil
// for first writes. Deadline overruns surface as resolution timeouts.
func (e *Engine) resolvePrevious(ctx context.Context, content models.Content) (models.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ResolveTimeout)
	defer cancel()

	core := content.Core()

	var (
		candidates []models.Content
		err        error
	)
	if core.ID != nil {
		candidates, err = e.resolver.ResolveIDs(ctx, []int64{*core.ID})
	} else if len(core.Aliases) > 0 {
		candidates, err = e.resolver.ResolveAliases(ctx, core.Publisher, core.Aliases)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewResolutionTimeoutError("timed out resolving previous version")
		}
		return nil, errors.Wrap(err, "failed to resolve previous version")
	}

	for _, candidate := range candidates {
		if candidate.Core().Publisher == core.Publisher {
			return candidate, nil
		}
	}
	if core.ID != nil && len(candidates) > 0 {
		return nil, NewPreconditionError("content %d belongs to another publisher", *core.ID)
	}
	// An id that resolves to nothing is a first write; the supplied id
	// is kept rather than allocated.
	return nil, nil
}

// unchanged fingerprints both versions over publisher fields.
func (e *Engine) unchanged(input, previous models.Content) (bool, error) {
	inputHash, err := fingerprint.Content(input)
	if err != nil {
		return false, errors.Wrap(err, "failed to fingerprint input")
	}
	previousHash, err := fingerprint.Content(previous)
	if err != nil {
		return false, errors.Wrap(err, "failed to fingerprint previous")
	}
	return !fingerprint.HasChanged(previousHash, inputHash), nil
}

// resolveContainers loads every container the content declares, filling in
// denormalised summaries on items as it goes.
func (e *Engine) resolveContainers(ctx context.Context, content models.Content) ([]models.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ResolveTimeout)
	defer cancel()

	var refs []models.ContentRef
	switch v := content.(type) {
	case *models.Series:
		if v.BrandRef != nil {
			refs = append(refs, *v.BrandRef)
		}
	case *models.Episode:
		if v.ContainerRef == nil {
			return nil, NewPreconditionError("episode requires a container ref")
		}
		refs = append(refs, *v.ContainerRef)
		if v.SeriesRef != nil {
			refs = append(refs, *v.SeriesRef)
		}
	default:
		if ref := models.ContainerRefOf(content); ref != nil {
			refs = append(refs, *ref)
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}

	containers := make([]models.Content, 0, len(refs))
	for _, ref := range refs {
		resolved, err := e.resolver.ResolveIDs(ctx, []int64{ref.ID})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, NewResolutionTimeoutError("timed out resolving container %d", ref.ID)
			}
			return nil, errors.Wrapf(err, "failed to resolve container %d", ref.ID)
		}
		if len(resolved) == 0 {
			return nil, NewMissingResourceError("container %d does not exist", ref.ID)
		}
		container := resolved[0]
		if !container.Type().IsContainer() {
			return nil, NewPreconditionError("content %d is not a container", ref.ID)
		}
		containers = append(containers, container)
	}

	// The primary container summary is denormalised onto the item.
	switch v := content.(type) {
	case *models.Item:
		v.ContainerSummary = models.SummaryOf(containers[0])
	case *models.Episode:
		v.ContainerSummary = models.SummaryOf(containers[0])
	case *models.Film:
		v.ContainerSummary = models.SummaryOf(containers[0])
	case *models.Song:
		v.ContainerSummary = models.SummaryOf(containers[0])
	case *models.Clip:
		v.ContainerSummary = models.SummaryOf(containers[0])
	}

	return containers, nil
}

// writeChildRef updates the container's child list with the written child
// and bumps its hierarchy timestamp. The container is persisted copy on
// write; the caller's version is never mutated.
func (e *Engine) writeChildRef(ctx context.Context, container, child models.Content, now time.Time) error {
	updated := container.Copy()
	ref := models.ChildRefOf(child, child.Core().Title, now)

	switch v := updated.(type) {
	case *models.Brand:
		if child.Type() == models.ContentTypeSeries {
			v.SeriesRefs = upsertChildRef(v.SeriesRefs, ref)
		} else {
			v.ItemRefs = upsertChildRef(v.ItemRefs, ref)
		}
	case *models.Series:
		v.ItemRefs = upsertChildRef(v.ItemRefs, ref)
	default:
		return NewPreconditionError("content %d cannot hold children", *container.Core().ID)
	}

	updated.Core().ThisOrChildLastUpdated = now

	if err := e.writer.WriteContent(ctx, updated, container); err != nil {
		return errors.Wrapf(err, "failed to update container %d", *container.Core().ID)
	}
	return nil
}

func upsertChildRef(refs []models.ChildRef, ref models.ChildRef) []models.ChildRef {
	for i, existing := range refs {
		if existing.ID == ref.ID {
			refs[i] = ref
			return refs
		}
	}
	return append(refs, ref)
}

// resetChildRefs clears container child lists on input. Publishers don't
// own those lists; they accrete from child writes.
func resetChildRefs(content models.Content) {
	switch v := content.(type) {
	case *models.Brand:
		v.ItemRefs = nil
		v.SeriesRefs = nil
	case *models.Series:
		v.ItemRefs = nil
	}
}

// restoreChildRefs carries the accreted child lists forward from the
// previous version.
func restoreChildRefs(content, previous models.Content) {
	switch v := content.(type) {
	case *models.Brand:
		if prev, ok := previous.(*models.Brand); ok {
			v.ItemRefs = append([]models.ChildRef(nil), prev.ItemRefs...)
			v.SeriesRefs = append([]models.ChildRef(nil), prev.SeriesRefs...)
		}
	case *models.Series:
		if prev, ok := previous.(*models.Series); ok {
			v.ItemRefs = append([]models.ChildRef(nil), prev.ItemRefs...)
		}
	}
}
