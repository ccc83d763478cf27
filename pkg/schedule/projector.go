package schedule

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// SetResolver finds the materialised equivalence set each id belongs to.
// Ids with no set are absent from the result.
type SetResolver interface {
	ResolveSetsForIDs(ctx context.Context, ids []int64) (map[int64]models.EquivalenceSetRow, error)
}

// Cache stores resolved equivalent schedules between reads. Both
// implementations may lose entries at any time; the projector treats every
// miss as a recompute.
type Cache interface {
	Get(ctx context.Context, key string) (*models.EquivalentSchedule, error)
	Set(ctx context.Context, key string, schedule models.EquivalentSchedule) error
	InvalidateChannel(ctx context.Context, channelID string) error
	InvalidateAll(ctx context.Context) error
}

// Projector resolves stored schedules through the equivalence layer: each
// broadcast comes back with every selected publisher's rendition of the
// transmitted item.
type Projector struct {
	logger  ectologger.Logger
	blocks  BlockStore
	sets    SetResolver
	matcher BroadcastMatcher
	cache   Cache
}

// NewProjector creates a projector. cache may be nil.
func NewProjector(logger ectologger.Logger, blocks BlockStore, sets SetResolver, matcher BroadcastMatcher, cache Cache) *Projector {
	if matcher == nil {
		matcher = ExactStartMatcher()
	}
	return &Projector{logger: logger, blocks: blocks, sets: sets, matcher: matcher, cache: cache}
}

// ResolveSchedule reads the stored schedule for one channel interval from
// the schedule publisher and widens each entry with equivalents from the
// selected publishers. At most one item per selected publisher is attached
// per broadcast, its broadcasts filtered down to the matching ones; an
// equivalent with no matching broadcast is attached with none at all.
func (p *Projector) ResolveSchedule(
	ctx context.Context,
	schedulePublisher, channelID string,
	interval models.Interval,
	selected []string,
) (models.EquivalentChannelSchedule, error) {
	ctx, span := tracing.StartSpan(ctx, "schedule.Projector.ResolveSchedule")
	defer span.End()

	key := cacheKey(schedulePublisher, channelID, interval, selected)
	if p.cache != nil {
		cached, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("schedule cache read failed")
		} else if cached != nil {
			for _, channel := range cached.Channels {
				if channel.ChannelID == channelID {
					return channel, nil
				}
			}
		}
	}

	stored, err := p.assembleSchedule(ctx, schedulePublisher, channelID, interval)
	if err != nil {
		return models.EquivalentChannelSchedule{}, err
	}

	resolved, err := p.project(ctx, stored, selected)
	if err != nil {
		return models.EquivalentChannelSchedule{}, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, models.EquivalentSchedule{Channels: []models.EquivalentChannelSchedule{resolved}}); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("schedule cache write failed")
		}
	}
	return resolved, nil
}

// ResolveSchedules resolves several channels over the same interval.
func (p *Projector) ResolveSchedules(
	ctx context.Context,
	schedulePublisher string,
	channelIDs []string,
	interval models.Interval,
	selected []string,
) (models.EquivalentSchedule, error) {
	ctx, span := tracing.StartSpan(ctx, "schedule.Projector.ResolveSchedules")
	defer span.End()

	out := models.EquivalentSchedule{}
	for _, channelID := range channelIDs {
		channel, err := p.ResolveSchedule(ctx, schedulePublisher, channelID, interval, selected)
		if err != nil {
			return models.EquivalentSchedule{}, err
		}
		out.Channels = append(out.Channels, channel)
	}
	return out, nil
}

// ScheduleUpdated drops cached projections for a reconciled channel.
func (p *Projector) ScheduleUpdated(ctx context.Context, channelID string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.InvalidateChannel(ctx, channelID)
}

// EquivalencesUpdated drops every cached projection. Graph membership
// feeds all channels, so invalidation is whole cache.
func (p *Projector) EquivalencesUpdated(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.InvalidateAll(ctx)
}

// assembleSchedule flattens the stored blocks covering the interval into
// an ordered channel schedule.
func (p *Projector) assembleSchedule(ctx context.Context, publisher, channelID string, interval models.Interval) (models.ChannelSchedule, error) {
	blocks, err := p.blocks.ResolveBlocks(ctx, publisher, channelID, interval)
	if err != nil {
		return models.ChannelSchedule{}, errors.Wrap(err, "failed to resolve schedule blocks")
	}

	var entries []models.ItemAndBroadcast
	for _, block := range blocks {
		for _, entry := range block.Entries {
			if !entryRelevant(entry, channelID, interval) || !entry.Broadcast.IsActivelyPublished() {
				continue
			}
			// A broadcast spanning a block boundary is stored in each
			// block it overlaps; flattening keeps it once.
			if containsEntry(entries, entry) {
				continue
			}
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Broadcast.Start.Before(entries[j].Broadcast.Start)
	})

	return models.ChannelSchedule{ChannelID: channelID, Interval: interval, Entries: entries}, nil
}

// project widens each stored entry with the selected publishers'
// equivalent items.
func (p *Projector) project(ctx context.Context, stored models.ChannelSchedule, selected []string) (models.EquivalentChannelSchedule, error) {
	ids := make([]int64, 0, len(stored.Entries))
	for _, entry := range stored.Entries {
		if entry.Item.Core().ID != nil {
			ids = append(ids, *entry.Item.Core().ID)
		}
	}

	sets, err := p.sets.ResolveSetsForIDs(ctx, ids)
	if err != nil {
		return models.EquivalentChannelSchedule{}, errors.Wrap(err, "failed to resolve equivalence sets")
	}

	out := models.EquivalentChannelSchedule{
		ChannelID: stored.ChannelID,
		Interval:  stored.Interval,
	}
	for _, entry := range stored.Entries {
		out.Entries = append(out.Entries, p.projectEntry(entry, sets, selected))
	}
	return out, nil
}

func (p *Projector) projectEntry(entry models.ItemAndBroadcast, sets map[int64]models.EquivalenceSetRow, selected []string) models.EquivalentScheduleEntry {
	subject := entry.Item.Copy()
	models.SetBroadcastsOf(subject, []models.Broadcast{entry.Broadcast})
	items := []models.Content{subject}

	subjectPublisher := subject.Core().Publisher
	var row models.EquivalenceSetRow
	if entry.Item.Core().ID != nil {
		row = sets[*entry.Item.Core().ID]
	}

	for _, publisher := range selected {
		if publisher == subjectPublisher {
			continue
		}
		if match := p.bestMatch(row, publisher, entry.Broadcast); match != nil {
			items = append(items, match)
		}
	}

	return models.EquivalentScheduleEntry{Broadcast: entry.Broadcast, Items: items}
}

// bestMatch picks the publisher's one set member for the entry. A member
// with an actively published broadcast matching the schedule broadcast
// wins, pruned to its matching broadcasts. When no member matches, the
// first member still comes back with an empty broadcast list so the
// publisher's rendition of the item is present either way.
func (p *Projector) bestMatch(row models.EquivalenceSetRow, publisher string, broadcast models.Broadcast) models.Content {
	var fallback models.Content
	for _, member := range row.Members {
		if member.Core().Publisher != publisher {
			continue
		}
		var matching []models.Broadcast
		for _, candidate := range models.BroadcastsOf(member) {
			if candidate.IsActivelyPublished() && p.matcher.Matches(broadcast, candidate) {
				matching = append(matching, candidate)
			}
		}
		if len(matching) > 0 {
			match := member.Copy()
			models.SetBroadcastsOf(match, matching)
			return match
		}
		if fallback == nil {
			fallback = member
		}
	}
	if fallback == nil {
		return nil
	}
	match := fallback.Copy()
	models.SetBroadcastsOf(match, nil)
	return match
}

func cacheKey(publisher, channelID string, interval models.Interval, selected []string) string {
	key := "schedule:" + publisher + ":" + channelID + ":" + interval.Start.UTC().Format("20060102T150405") + ":" + interval.End.UTC().Format("20060102T150405")
	ordered := append([]string(nil), selected...)
	sort.Strings(ordered)
	for _, s := range ordered {
		key += ":" + s
	}
	return key
}
