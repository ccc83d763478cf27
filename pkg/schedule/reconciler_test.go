package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// fakeWriter stands in for the write engine: assigns ids, keeps them
// stable across rewrites of the same content, and records every write.
type fakeWriter struct {
	nextID  int64
	known   map[string]int64
	written []models.Content
	noop    bool
}

func (w *fakeWriter) WriteContent(_ context.Context, content models.Content) (models.WriteResult, error) {
	c := content.Copy()
	if c.Core().ID == nil {
		if w.known == nil {
			w.known = make(map[string]int64)
		}
		key := c.Core().Publisher + "|" + string(c.Type()) + "|" + c.Core().Title
		id, ok := w.known[key]
		if !ok {
			w.nextID++
			id = w.nextID
			w.known[key] = id
		}
		c.Core().ID = &id
	}
	w.written = append(w.written, c)
	if w.noop {
		return models.NewWriteResult(false, c, c, time.Time{}), nil
	}
	return models.WriteResult{Written: true, Resource: c}, nil
}

// ResolveIDs returns the most recent write for each id, standing in for
// the content store.
func (w *fakeWriter) ResolveIDs(_ context.Context, ids []int64) ([]models.Content, error) {
	var out []models.Content
	for _, id := range ids {
		for i := len(w.written) - 1; i >= 0; i-- {
			c := w.written[i]
			if c.Core().ID != nil && *c.Core().ID == id {
				out = append(out, c.Copy())
				break
			}
		}
	}
	return out, nil
}

// memoryBlocks stores blocks keyed by publisher, channel and start.
type memoryBlocks struct {
	blocks map[string]models.ScheduleBlock
}

func newMemoryBlocks() *memoryBlocks {
	return &memoryBlocks{blocks: make(map[string]models.ScheduleBlock)}
}

func blockKey(publisher, channelID string, start time.Time) string {
	return publisher + "|" + channelID + "|" + start.UTC().Format(time.RFC3339)
}

func (s *memoryBlocks) ResolveBlocks(_ context.Context, publisher, channelID string, interval models.Interval) ([]models.ScheduleBlock, error) {
	var out []models.ScheduleBlock
	for t := interval.Start.Truncate(time.Hour); t.Before(interval.End); t = t.Add(time.Hour) {
		if block, ok := s.blocks[blockKey(publisher, channelID, t)]; ok {
			out = append(out, block)
		}
	}
	return out, nil
}

func (s *memoryBlocks) WriteBlocks(_ context.Context, blocks []models.ScheduleBlock) error {
	for _, block := range blocks {
		s.blocks[blockKey(block.Publisher, block.ChannelID, block.Start)] = block
	}
	return nil
}

func scheduleItem(publisher, title string) *models.Episode {
	return &models.Episode{Item: models.Item{
		ContentCore: models.ContentCore{Publisher: publisher, Title: title},
	}}
}

func sourcedBroadcast(sourceID, channel string, start time.Time, d time.Duration) models.Broadcast {
	b := broadcastAt(channel, start, d)
	b.SourceID = &sourceID
	return b
}

func hierarchy(item models.Content, b models.Broadcast) models.ScheduleHierarchy {
	return models.ScheduleHierarchy{ItemAndBroadcast: models.ItemAndBroadcast{Item: item, Broadcast: b}}
}

func newTestReconciler(writer *fakeWriter, blocks BlockStore) *Reconciler {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewReconciler(logger, writer, writer, blocks, 0)
}

func TestWriteScheduleStoresBlocks(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(2 * time.Hour)}
	writer := &fakeWriter{}
	blocks := newMemoryBlocks()
	reconciler := newTestReconciler(writer, blocks)

	hierarchies := []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
		hierarchy(scheduleItem("bbc", "The End of the World"), sourcedBroadcast("b2", "bbc-one", base.Add(time.Hour), time.Hour)),
	}

	result, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, hierarchies)
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Equal(t, 2, result.EntriesInput)

	stored, err := blocks.ResolveBlocks(context.Background(), "bbc", "bbc-one", interval)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Len(t, stored[0].Entries, 1)
	assert.Equal(t, "Rose", stored[0].Entries[0].Item.Core().Title)
	// Stored entries carry only the single relevant broadcast.
	assert.Len(t, models.BroadcastsOf(stored[0].Entries[0].Item), 1)
}

func TestWriteScheduleValidationFailuresPersistNothing(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(2 * time.Hour)}

	tests := []struct {
		name        string
		hierarchies []models.ScheduleHierarchy
	}{
		{
			name: "wrong publisher",
			hierarchies: []models.ScheduleHierarchy{
				hierarchy(scheduleItem("itv", "Rose"), sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
			},
		},
		{
			name: "missing source id",
			hierarchies: []models.ScheduleHierarchy{
				hierarchy(scheduleItem("bbc", "Rose"), broadcastAt("bbc-one", base, time.Hour)),
			},
		},
		{
			name: "wrong channel",
			hierarchies: []models.ScheduleHierarchy{
				hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-two", base, time.Hour)),
			},
		},
		{
			name: "outside interval",
			hierarchies: []models.ScheduleHierarchy{
				hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base.Add(3*time.Hour), time.Hour)),
			},
		},
		{
			name: "overlapping broadcasts",
			hierarchies: []models.ScheduleHierarchy{
				hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
				hierarchy(scheduleItem("bbc", "Aliens"), sourcedBroadcast("b2", "bbc-one", base.Add(30*time.Minute), time.Hour)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &fakeWriter{}
			blocks := newMemoryBlocks()
			reconciler := newTestReconciler(writer, blocks)

			_, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, tt.hierarchies)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Empty(t, writer.written)
			assert.Empty(t, blocks.blocks)
		})
	}
}

func TestWriteScheduleSharedContainerWrittenOnce(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(2 * time.Hour)}
	writer := &fakeWriter{}
	reconciler := newTestReconciler(writer, newMemoryBlocks())

	brand := &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}}

	hierarchies := []models.ScheduleHierarchy{
		{
			ItemAndBroadcast: models.ItemAndBroadcast{Item: scheduleItem("bbc", "Rose"), Broadcast: sourcedBroadcast("b1", "bbc-one", base, time.Hour)},
			Container:        brand,
		},
		{
			ItemAndBroadcast: models.ItemAndBroadcast{Item: scheduleItem("bbc", "The End of the World"), Broadcast: sourcedBroadcast("b2", "bbc-one", base.Add(time.Hour), time.Hour)},
			Container:        brand,
		},
	}

	_, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, hierarchies)
	require.NoError(t, err)

	brandWrites := 0
	for _, w := range writer.written {
		if w.Type() == models.ContentTypeBrand {
			brandWrites++
		}
	}
	assert.Equal(t, 1, brandWrites)
}

func TestWriteScheduleUnpublishesStaleEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(2 * time.Hour)}
	writer := &fakeWriter{}
	blocks := newMemoryBlocks()
	reconciler := newTestReconciler(writer, blocks)

	// First pass stores two entries.
	first := []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
		hierarchy(scheduleItem("bbc", "The End of the World"), sourcedBroadcast("b2", "bbc-one", base.Add(time.Hour), time.Hour)),
	}
	_, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, first)
	require.NoError(t, err)

	// Second pass replaces the 21:00 slot with a different programme.
	second := []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
		hierarchy(scheduleItem("bbc", "News Special"), sourcedBroadcast("b3", "bbc-one", base.Add(time.Hour), time.Hour)),
	}
	result, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, second)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StaleUnlinked)

	// The displaced item was rewritten with its broadcast unpublished.
	var unpublished models.Content
	for _, w := range writer.written {
		for _, b := range models.BroadcastsOf(w) {
			if b.SourceID != nil && *b.SourceID == "b2" && !b.IsActivelyPublished() {
				unpublished = w
			}
		}
	}
	require.NotNil(t, unpublished)
	assert.Equal(t, "The End of the World", unpublished.Core().Title)

	// The stored block for the slot now holds the replacement only.
	stored, err := blocks.ResolveBlocks(context.Background(), "bbc", "bbc-one", interval)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Len(t, stored[1].Entries, 1)
	assert.Equal(t, "News Special", stored[1].Entries[0].Item.Core().Title)
}

func TestWriteScheduleKeepsEntriesOutsideInterval(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	writer := &fakeWriter{}
	blocks := newMemoryBlocks()
	reconciler := newTestReconciler(writer, blocks)

	// Seed a block holding an entry in its second half hour.
	full := models.Interval{Start: base, End: base.Add(time.Hour)}
	_, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", full, []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base, 30*time.Minute)),
		hierarchy(scheduleItem("bbc", "Aliens of London"), sourcedBroadcast("b2", "bbc-one", base.Add(30*time.Minute), 30*time.Minute)),
	})
	require.NoError(t, err)

	// Reconcile only the first half hour.
	half := models.Interval{Start: base, End: base.Add(30 * time.Minute)}
	_, err = reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", half, []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "News Special"), sourcedBroadcast("b3", "bbc-one", base, 30*time.Minute)),
	})
	require.NoError(t, err)

	stored, err := blocks.ResolveBlocks(context.Background(), "bbc", "bbc-one", full)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Len(t, stored[0].Entries, 2)

	titles := []string{stored[0].Entries[0].Item.Core().Title, stored[0].Entries[1].Item.Core().Title}
	assert.Contains(t, titles, "Aliens of London")
	assert.Contains(t, titles, "News Special")
}

func TestWriteScheduleSpanningBroadcastInEveryOverlappedBlock(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(2 * time.Hour)}
	writer := &fakeWriter{}
	blocks := newMemoryBlocks()
	reconciler := newTestReconciler(writer, blocks)

	// 20:30 to 21:30 crosses the 21:00 block boundary.
	_, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base.Add(30*time.Minute), time.Hour)),
	})
	require.NoError(t, err)

	stored, err := blocks.ResolveBlocks(context.Background(), "bbc", "bbc-one", interval)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Len(t, stored[0].Entries, 1)
	require.Len(t, stored[1].Entries, 1)
	assert.Equal(t, "Rose", stored[0].Entries[0].Item.Core().Title)
	assert.Equal(t, "Rose", stored[1].Entries[0].Item.Core().Title)

	// Reading just the second hour still finds the spanning entry.
	late, err := blocks.ResolveBlocks(context.Background(), "bbc", "bbc-one", models.Interval{Start: base.Add(time.Hour), End: interval.End})
	require.NoError(t, err)
	require.Len(t, late, 1)
	require.Len(t, late[0].Entries, 1)
}

func TestWriteScheduleUnpublishKeepsOtherBroadcasts(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(time.Hour)}
	writer := &fakeWriter{}
	blocks := newMemoryBlocks()
	reconciler := newTestReconciler(writer, blocks)

	// The item also airs on bbc-two; that broadcast rides along on the
	// write but is not part of this channel's schedule.
	item := scheduleItem("bbc", "Rose")
	item.Broadcasts = []models.Broadcast{sourcedBroadcast("b9", "bbc-two", base, time.Hour)}

	_, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, []models.ScheduleHierarchy{
		hierarchy(item, sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
	})
	require.NoError(t, err)

	// Replacing the slot displaces the item from bbc-one.
	_, err = reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "News Special"), sourcedBroadcast("b2", "bbc-one", base, time.Hour)),
	})
	require.NoError(t, err)

	// The unpublish write carries the full item: both broadcasts, the
	// bbc-two one still actively published.
	last := writer.written[len(writer.written)-1]
	assert.Equal(t, "Rose", last.Core().Title)
	broadcasts := models.BroadcastsOf(last)
	require.Len(t, broadcasts, 2)
	for _, b := range broadcasts {
		switch *b.SourceID {
		case "b1":
			assert.False(t, b.IsActivelyPublished())
		case "b9":
			assert.True(t, b.IsActivelyPublished())
		}
	}
}

func TestWriteScheduleReturnsWriteResults(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(2 * time.Hour)}
	writer := &fakeWriter{}
	reconciler := newTestReconciler(writer, newMemoryBlocks())

	brand := &models.Brand{ContentCore: models.ContentCore{Publisher: "bbc", Title: "Doctor Who"}}
	result, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, []models.ScheduleHierarchy{
		{
			ItemAndBroadcast: models.ItemAndBroadcast{Item: scheduleItem("bbc", "Rose"), Broadcast: sourcedBroadcast("b1", "bbc-one", base, time.Hour)},
			Container:        brand,
		},
		{
			ItemAndBroadcast: models.ItemAndBroadcast{Item: scheduleItem("bbc", "The End of the World"), Broadcast: sourcedBroadcast("b2", "bbc-one", base.Add(time.Hour), time.Hour)},
			Container:        brand,
		},
	})
	require.NoError(t, err)

	// One result per underlying write: the shared brand once, then each item.
	require.Len(t, result.Results, 3)
	assert.Equal(t, models.ContentTypeBrand, result.Results[0].Resource.Type())
	for _, r := range result.Results {
		assert.True(t, r.Written)
	}
}

func TestWriteScheduleNoOpSkipsBlockWrite(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	interval := models.Interval{Start: base, End: base.Add(time.Hour)}
	writer := &fakeWriter{noop: true}
	blocks := newMemoryBlocks()
	reconciler := newTestReconciler(writer, blocks)

	result, err := reconciler.WriteSchedule(context.Background(), "bbc", "bbc-one", interval, []models.ScheduleHierarchy{
		hierarchy(scheduleItem("bbc", "Rose"), sourcedBroadcast("b1", "bbc-one", base, time.Hour)),
	})
	require.NoError(t, err)
	assert.False(t, result.Written)
	assert.Empty(t, blocks.blocks)
}
