package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// DefaultBlockDuration is the storage window width for schedule blocks.
const DefaultBlockDuration = time.Hour

// ContentWriter is the slice of the write engine the reconciler needs.
type ContentWriter interface {
	WriteContent(ctx context.Context, content models.Content) (models.WriteResult, error)
}

// ContentResolver loads stored content by id. Block entries carry items
// pruned to one broadcast, so unpublishing resolves the full item first.
type ContentResolver interface {
	ResolveIDs(ctx context.Context, ids []int64) ([]models.Content, error)
}

// BlockStore persists schedule blocks.
type BlockStore interface {
	ResolveBlocks(ctx context.Context, publisher, channelID string, interval models.Interval) ([]models.ScheduleBlock, error)
	WriteBlocks(ctx context.Context, blocks []models.ScheduleBlock) error
}

// ReconcileResult summarises one schedule write. Results carries the
// outcome of every content write the batch performed, containers and
// series included, in write order.
type ReconcileResult struct {
	Written       bool                 `json:"written"`
	EntriesInput  int                  `json:"entries_input"`
	StaleUnlinked int                  `json:"stale_unlinked"`
	Results       []models.WriteResult `json:"results"`
}

// Reconciler replaces the stored schedule for one channel interval with an
// incoming batch, unpublishing broadcasts the batch no longer carries.
type Reconciler struct {
	logger        ectologger.Logger
	writer        ContentWriter
	resolver      ContentResolver
	blocks        BlockStore
	contiguity    ContiguityCheck
	blockDuration time.Duration
}

func NewReconciler(logger ectologger.Logger, writer ContentWriter, resolver ContentResolver, blocks BlockStore, maxGap time.Duration) *Reconciler {
	return &Reconciler{
		logger:        logger,
		writer:        writer,
		resolver:      resolver,
		blocks:        blocks,
		contiguity:    ContiguityCheck{MaxGap: maxGap},
		blockDuration: DefaultBlockDuration,
	}
}

// WriteSchedule validates and applies an incoming schedule batch.
//
// The batch must be single publisher, every broadcast must carry a source
// id and sit on the target channel inside the interval, and the broadcasts
// must form a contiguous run. Validation failures happen before anything
// is persisted.
//
// Containers and series are written before their items, once each no
// matter how many entries share them. Stored entries in the interval that
// the batch no longer carries get their broadcast marked not actively
// published and are dropped from the blocks.
func (r *Reconciler) WriteSchedule(
	ctx context.Context,
	publisher, channelID string,
	interval models.Interval,
	hierarchies []models.ScheduleHierarchy,
) (ReconcileResult, error) {
	ctx, span := tracing.StartSpan(ctx, "schedule.Reconciler.WriteSchedule")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"publisher":  publisher,
		"channel_id": channelID,
		"entries":    len(hierarchies),
	})

	if err := r.validate(publisher, channelID, interval, hierarchies); err != nil {
		return ReconcileResult{}, err
	}

	written, entries, results, err := r.writeHierarchies(ctx, hierarchies)
	if err != nil {
		return ReconcileResult{}, err
	}

	blocks, err := r.blocks.ResolveBlocks(ctx, publisher, channelID, interval)
	if err != nil {
		return ReconcileResult{}, errors.Wrap(err, "failed to resolve schedule blocks")
	}

	stale := r.staleEntries(blocks, channelID, interval, entries)
	if !written && len(stale) == 0 {
		log.Debug("schedule batch is a no-op, skipping block update")
		return ReconcileResult{Written: false, EntriesInput: len(entries), Results: results}, nil
	}
	for _, entry := range stale {
		result, err := r.unpublish(ctx, entry)
		if err != nil {
			return ReconcileResult{}, err
		}
		if result.Resource != nil {
			results = append(results, result)
		}
	}

	updated := r.rebuildBlocks(publisher, channelID, interval, blocks, entries)
	if err := r.blocks.WriteBlocks(ctx, updated); err != nil {
		return ReconcileResult{}, errors.Wrap(err, "failed to write schedule blocks")
	}

	log.WithField("stale", len(stale)).Info("schedule reconciled")
	return ReconcileResult{Written: true, EntriesInput: len(entries), StaleUnlinked: len(stale), Results: results}, nil
}

func (r *Reconciler) validate(publisher, channelID string, interval models.Interval, hierarchies []models.ScheduleHierarchy) error {
	if interval.End.Before(interval.Start) {
		return NewValidationError("interval end precedes its start")
	}

	broadcasts := make([]models.Broadcast, 0, len(hierarchies))
	for _, h := range hierarchies {
		if h.ItemAndBroadcast.Item == nil {
			return NewValidationError("schedule entry has no item")
		}
		if got := h.ItemAndBroadcast.Item.Core().Publisher; got != publisher {
			return NewValidationError("entry publisher %q does not match schedule publisher %q", got, publisher)
		}
		b := h.ItemAndBroadcast.Broadcast
		if b.SourceID == nil || *b.SourceID == "" {
			return NewValidationError("broadcast on channel %s at %s has no source id", b.ChannelID, b.Start.Format(time.RFC3339))
		}
		if b.ChannelID != channelID {
			return NewValidationError("broadcast %s is on channel %s, not %s", *b.SourceID, b.ChannelID, channelID)
		}
		if !interval.Overlaps(b.Interval()) {
			return NewValidationError("broadcast %s falls outside the schedule interval", *b.SourceID)
		}
		broadcasts = append(broadcasts, b)
	}

	return r.contiguity.Check(broadcasts)
}

// writeHierarchies writes containers, series and items through the write
// engine, collecting every write result and reporting whether anything
// actually changed.
func (r *Reconciler) writeHierarchies(ctx context.Context, hierarchies []models.ScheduleHierarchy) (bool, []models.ItemAndBroadcast, []models.WriteResult, error) {
	written := false
	var results []models.WriteResult

	// Shared containers and series are written once per batch.
	seen := make(map[string]bool)
	writeOnce := func(c models.Content) error {
		key := contentKey(c)
		if seen[key] {
			return nil
		}
		seen[key] = true
		result, err := r.writer.WriteContent(ctx, c)
		if err != nil {
			return err
		}
		results = append(results, result)
		if result.Written {
			written = true
		}
		return nil
	}

	for _, h := range hierarchies {
		if h.Container != nil {
			if err := writeOnce(h.Container); err != nil {
				return false, nil, nil, errors.Wrap(err, "failed to write schedule container")
			}
		}
		if h.Series != nil {
			if err := writeOnce(h.Series); err != nil {
				return false, nil, nil, errors.Wrap(err, "failed to write schedule series")
			}
		}
	}

	entries := make([]models.ItemAndBroadcast, 0, len(hierarchies))
	for _, h := range hierarchies {
		item := h.ItemAndBroadcast.Item.Copy()
		mergeBroadcast(item, h.ItemAndBroadcast.Broadcast)

		result, err := r.writer.WriteContent(ctx, item)
		if err != nil {
			return false, nil, nil, errors.Wrap(err, "failed to write schedule item")
		}
		results = append(results, result)
		if result.Written {
			written = true
		}
		entries = append(entries, models.ItemAndBroadcast{
			Item:      result.Resource,
			Broadcast: h.ItemAndBroadcast.Broadcast,
		})
	}

	return written, entries, results, nil
}

// staleEntries finds stored entries in the target channel and interval
// that the incoming batch no longer carries for the same item.
func (r *Reconciler) staleEntries(blocks []models.ScheduleBlock, channelID string, interval models.Interval, incoming []models.ItemAndBroadcast) []models.ItemAndBroadcast {
	var stale []models.ItemAndBroadcast
	for _, block := range blocks {
		for _, entry := range block.Entries {
			if !entryRelevant(entry, channelID, interval) {
				continue
			}
			// A spanning broadcast sits in more than one block; count
			// it stale once.
			if batchCarries(incoming, entry) || containsEntry(stale, entry) {
				continue
			}
			stale = append(stale, entry)
		}
	}
	return stale
}

// batchCarries reports whether the incoming batch retains the stored
// entry: same broadcast identity attached to the same item.
func batchCarries(incoming []models.ItemAndBroadcast, entry models.ItemAndBroadcast) bool {
	entryID := entry.Item.Core().ID
	for _, in := range incoming {
		if !in.Broadcast.Equal(entry.Broadcast) {
			continue
		}
		inID := in.Item.Core().ID
		if entryID != nil && inID != nil && *entryID == *inID {
			return true
		}
	}
	return false
}

// unpublish writes the stale item back with its schedule broadcast marked
// not actively published. The block entry carries the item pruned to the
// one broadcast that placed it there, so the full item is resolved fresh
// and only the matching broadcast has its flag flipped; broadcasts on
// other channels survive untouched.
func (r *Reconciler) unpublish(ctx context.Context, entry models.ItemAndBroadcast) (models.WriteResult, error) {
	id := entry.Item.Core().ID
	if id == nil {
		return models.WriteResult{}, nil
	}

	resolved, err := r.resolver.ResolveIDs(ctx, []int64{*id})
	if err != nil {
		return models.WriteResult{}, errors.Wrapf(err, "failed to resolve stale schedule item %d", *id)
	}
	if len(resolved) == 0 {
		r.logger.WithContext(ctx).WithField("content_id", *id).
			Warn("stale schedule item no longer exists, dropping its entry")
		return models.WriteResult{}, nil
	}

	item := resolved[0].Copy()
	broadcasts := models.BroadcastsOf(item)
	for i := range broadcasts {
		if broadcasts[i].Equal(entry.Broadcast) {
			broadcasts[i] = broadcasts[i].WithActivelyPublished(false)
		}
	}
	models.SetBroadcastsOf(item, broadcasts)

	result, err := r.writer.WriteContent(ctx, item)
	if err != nil {
		return models.WriteResult{}, errors.Wrap(err, "failed to unpublish stale schedule entry")
	}
	return result, nil
}

// rebuildBlocks produces the block set for the interval: surviving stored
// entries plus the incoming batch, each item pruned to the one broadcast
// that puts it in the block. An entry lands in every block its broadcast
// overlaps, so a transmission crossing a block boundary is found from
// either side.
func (r *Reconciler) rebuildBlocks(publisher, channelID string, interval models.Interval, current []models.ScheduleBlock, incoming []models.ItemAndBroadcast) []models.ScheduleBlock {
	currentByStart := make(map[time.Time][]models.ItemAndBroadcast)
	for _, block := range current {
		currentByStart[block.Start] = block.Entries
	}

	var blocks []models.ScheduleBlock
	for _, start := range blockStarts(interval, r.blockDuration) {
		var entries []models.ItemAndBroadcast

		// Stored entries outside the reconciled window survive untouched.
		for _, entry := range currentByStart[start] {
			if !entryRelevant(entry, channelID, interval) {
				entries = append(entries, entry)
			}
		}

		window := models.Interval{Start: start, End: start.Add(r.blockDuration)}
		for _, in := range incoming {
			if window.Overlaps(in.Broadcast.Interval()) {
				entries = append(entries, pruneToBroadcast(in))
			}
		}

		blocks = append(blocks, models.ScheduleBlock{
			Publisher: publisher,
			ChannelID: channelID,
			Start:     start,
			Entries:   entries,
		})
	}
	return blocks
}

// pruneToBroadcast strips the item's broadcast set down to the single
// transmission the entry describes.
func pruneToBroadcast(entry models.ItemAndBroadcast) models.ItemAndBroadcast {
	item := entry.Item.Copy()
	models.SetBroadcastsOf(item, []models.Broadcast{entry.Broadcast})
	return models.ItemAndBroadcast{Item: item, Broadcast: entry.Broadcast}
}

func entryRelevant(entry models.ItemAndBroadcast, channelID string, interval models.Interval) bool {
	return entry.Broadcast.ChannelID == channelID && interval.Overlaps(entry.Broadcast.Interval())
}

// containsEntry reports whether entries already carries the same item and
// broadcast identity.
func containsEntry(entries []models.ItemAndBroadcast, entry models.ItemAndBroadcast) bool {
	for _, have := range entries {
		if have.Broadcast.Equal(entry.Broadcast) && sameEntryItem(have, entry) {
			return true
		}
	}
	return false
}

func sameEntryItem(a, b models.ItemAndBroadcast) bool {
	aID, bID := a.Item.Core().ID, b.Item.Core().ID
	return aID != nil && bID != nil && *aID == *bID
}

// mergeBroadcast ensures the item carries the schedule broadcast before
// the item is written.
func mergeBroadcast(item models.Content, broadcast models.Broadcast) {
	broadcasts := models.BroadcastsOf(item)
	for i := range broadcasts {
		if broadcasts[i].Equal(broadcast) {
			broadcasts[i] = broadcast
			models.SetBroadcastsOf(item, broadcasts)
			return
		}
	}
	models.SetBroadcastsOf(item, append(broadcasts, broadcast))
}

// blockStarts lists the aligned window starts covering the interval.
func blockStarts(interval models.Interval, d time.Duration) []time.Time {
	var starts []time.Time
	for t := interval.Start.Truncate(d); t.Before(interval.End); t = t.Add(d) {
		starts = append(starts, t)
	}
	if len(starts) == 0 {
		starts = append(starts, interval.Start.Truncate(d))
	}
	return starts
}

// contentKey identifies a piece of content for batch dedup: id when
// assigned, otherwise publisher plus first alias, otherwise title.
func contentKey(c models.Content) string {
	core := c.Core()
	if core.ID != nil {
		return fmt.Sprintf("id:%d", *core.ID)
	}
	if len(core.Aliases) > 0 {
		return fmt.Sprintf("alias:%s:%s:%s", core.Publisher, core.Aliases[0].Namespace, core.Aliases[0].Value)
	}
	return fmt.Sprintf("title:%s:%s:%s", core.Publisher, c.Type(), core.Title)
}
