package writing

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/clock"
	"github.com/Ramsey-B/sorrel/pkg/ids"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

// memoryStore backs the engine with an in-process content table.
type memoryStore struct {
	contents map[int64]models.Content
	writeErr error
	writes   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{contents: make(map[int64]models.Content)}
}

func (s *memoryStore) ResolveIDs(_ context.Context, ids []int64) ([]models.Content, error) {
	var out []models.Content
	for _, id := range ids {
		if c, ok := s.contents[id]; ok {
			out = append(out, c.Copy())
		}
	}
	return out, nil
}

func (s *memoryStore) ResolveAliases(_ context.Context, publisher string, aliases []models.Alias) ([]models.Content, error) {
	var out []models.Content
	for _, c := range s.contents {
		if c.Core().Publisher != publisher {
			continue
		}
		for _, have := range c.Core().Aliases {
			for _, want := range aliases {
				if have == want {
					out = append(out, c.Copy())
				}
			}
		}
	}
	return out, nil
}

func (s *memoryStore) WriteContent(_ context.Context, content, _ models.Content) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	s.contents[*content.Core().ID] = content.Copy()
	return nil
}

type recordingNotifier struct {
	results []models.WriteResult
	err     error
}

func (n *recordingNotifier) NotifyContentChange(_ context.Context, result models.WriteResult) error {
	if n.err != nil {
		return n.err
	}
	n.results = append(n.results, result)
	return nil
}

func newTestEngine(store *memoryStore, notifier ChangeNotifier, at time.Time) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(logger, store, store, ids.NewMemoryAllocator(0), notifier, clock.Fixed{Time: at}, Config{})
}

func TestWriteContentAssignsIDAndTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	notifier := &recordingNotifier{}
	engine := newTestEngine(store, notifier, now)

	brand := &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc",
		Title:     "Doctor Who",
		Aliases:   []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}}

	result, err := engine.WriteContent(context.Background(), brand)
	require.NoError(t, err)

	assert.True(t, result.Written)
	assert.Nil(t, result.Previous)
	core := result.Resource.Core()
	require.NotNil(t, core.ID)
	assert.Equal(t, int64(1), *core.ID)
	assert.Equal(t, now, core.FirstSeen)
	assert.Equal(t, now, core.LastUpdated)
	assert.Equal(t, now, core.ThisOrChildLastUpdated)

	require.Len(t, notifier.results, 1)
	assert.True(t, notifier.results[0].Written)
}

func TestWriteContentUnchangedIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	brand := &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc",
		Title:     "Doctor Who",
		Aliases:   []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}}

	first, err := engine.WriteContent(context.Background(), brand)
	require.NoError(t, err)
	require.True(t, first.Written)
	writesAfterFirst := store.writes

	// Same publisher fields, no id: resolved via alias and skipped.
	second, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc",
		Title:     "Doctor Who",
		Aliases:   []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)

	assert.False(t, second.Written)
	require.NotNil(t, second.Previous)
	assert.Equal(t, *first.Resource.Core().ID, *second.Resource.Core().ID)
	assert.Equal(t, writesAfterFirst, store.writes)
}

func TestWriteContentUpdateKeepsIDAndFirstSeen(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, start)

	first, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc",
		Title:     "Doctor Who",
		Aliases:   []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)

	later := start.Add(time.Hour)
	engine.clock = clock.Fixed{Time: later}

	second, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc",
		Title:     "Doctor Who (2005)",
		Aliases:   []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)

	assert.True(t, second.Written)
	require.NotNil(t, second.Previous)
	core := second.Resource.Core()
	assert.Equal(t, *first.Resource.Core().ID, *core.ID)
	assert.Equal(t, start, core.FirstSeen)
	assert.Equal(t, later, core.LastUpdated)
}

func TestWriteContentDifferentPublishersDontCollide(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	alias := models.Alias{Namespace: "imdb", Value: "tt0436992"}

	first, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who", Aliases: []models.Alias{alias},
	}})
	require.NoError(t, err)

	second, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "itv", Title: "Doctor Who", Aliases: []models.Alias{alias},
	}})
	require.NoError(t, err)

	assert.True(t, second.Written)
	assert.NotEqual(t, *first.Resource.Core().ID, *second.Resource.Core().ID)
}

func TestWriteEpisodeRequiresContainer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	_, err := engine.WriteContent(context.Background(), &models.Episode{Item: models.Item{
		ContentCore: models.ContentCore{Publisher: "bbc", Title: "Rose"},
	}})
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))
}

func TestWriteEpisodeMissingContainerConsumesNoID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	_, err := engine.WriteContent(context.Background(), &models.Episode{
		Item: models.Item{
			ContentCore:  models.ContentCore{Publisher: "bbc", Title: "Rose"},
			ContainerRef: &models.ContentRef{ID: 99, Publisher: "bbc", Type: models.ContentTypeBrand},
		},
	})
	require.Error(t, err)
	assert.True(t, IsMissingResource(err))

	// The failed write must not have burned an id.
	brand, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), *brand.Resource.Core().ID)
}

func TestWriteEpisodeUpdatesContainerRefs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	brand, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)
	brandID := *brand.Resource.Core().ID

	later := now.Add(time.Minute)
	engine.clock = clock.Fixed{Time: later}

	episode, err := engine.WriteContent(context.Background(), &models.Episode{
		Item: models.Item{
			ContentCore:  models.ContentCore{Publisher: "bbc", Title: "Rose", Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "p00wqr12"}}},
			ContainerRef: &models.ContentRef{ID: brandID, Publisher: "bbc", Type: models.ContentTypeBrand},
		},
	})
	require.NoError(t, err)

	ep := episode.Resource.(*models.Episode)
	require.NotNil(t, ep.ContainerSummary)
	assert.Equal(t, brandID, ep.ContainerSummary.ID)
	assert.Equal(t, "Doctor Who", ep.ContainerSummary.Title)

	stored := store.contents[brandID].(*models.Brand)
	require.Len(t, stored.ItemRefs, 1)
	assert.Equal(t, *ep.Core().ID, stored.ItemRefs[0].ID)
	assert.Equal(t, later, stored.Core().ThisOrChildLastUpdated)
	// The brand's own update time is untouched by child writes.
	assert.Equal(t, now, stored.Core().LastUpdated)
}

func TestWriteContentChildRefsSurviveContainerRewrite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	brandInput := &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}}
	brand, err := engine.WriteContent(context.Background(), brandInput)
	require.NoError(t, err)
	brandID := *brand.Resource.Core().ID

	_, err = engine.WriteContent(context.Background(), &models.Episode{
		Item: models.Item{
			ContentCore:  models.ContentCore{Publisher: "bbc", Title: "Rose", Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "p00wqr12"}}},
			ContainerRef: &models.ContentRef{ID: brandID, Publisher: "bbc", Type: models.ContentTypeBrand},
		},
	})
	require.NoError(t, err)

	// A fresh brand write carries no child refs; the stored list survives.
	updated, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who (revived)",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)
	require.True(t, updated.Written)
	assert.Len(t, updated.Resource.(*models.Brand).ItemRefs, 1)
}

func TestWriteEpisodeIdenticalResendIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	brand, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)
	brandID := *brand.Resource.Core().ID

	episode := func() *models.Episode {
		return &models.Episode{Item: models.Item{
			ContentCore:  models.ContentCore{Publisher: "bbc", Title: "Rose", Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "p00wqr12"}}},
			ContainerRef: &models.ContentRef{ID: brandID, Publisher: "bbc", Type: models.ContentTypeBrand},
		}}
	}

	first, err := engine.WriteContent(context.Background(), episode())
	require.NoError(t, err)
	require.True(t, first.Written)
	writesAfterFirst := store.writes

	// The stored version carries the denormalised container summary the
	// publisher never sent; resending the identical episode must still
	// compare equal.
	second, err := engine.WriteContent(context.Background(), episode())
	require.NoError(t, err)

	assert.False(t, second.Written)
	assert.Equal(t, *first.Resource.Core().ID, *second.Resource.Core().ID)
	assert.Equal(t, writesAfterFirst, store.writes)
}

func TestWriteEpisodesPropagateThroughHierarchy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	brand, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
		Aliases: []models.Alias{{Namespace: "bbc:pid", Value: "b006q2x0"}},
	}})
	require.NoError(t, err)
	brandID := *brand.Resource.Core().ID
	brandRef := models.ContentRef{ID: brandID, Publisher: "bbc", Type: models.ContentTypeBrand}

	writeSeries := func(title, pid string) models.ContentRef {
		result, err := engine.WriteContent(context.Background(), &models.Series{
			ContentCore: models.ContentCore{Publisher: "bbc", Title: title, Aliases: []models.Alias{{Namespace: "bbc:pid", Value: pid}}},
			BrandRef:    &brandRef,
		})
		require.NoError(t, err)
		return models.RefOf(result.Resource)
	}
	seriesOne := writeSeries("Series 1", "s1")
	seriesTwo := writeSeries("Series 2", "s2")

	writeEpisode := func(title, pid string, series models.ContentRef, at time.Time) models.WriteResult {
		engine.clock = clock.Fixed{Time: at}
		result, err := engine.WriteContent(context.Background(), &models.Episode{
			Item: models.Item{
				ContentCore:  models.ContentCore{Publisher: "bbc", Title: title, Aliases: []models.Alias{{Namespace: "bbc:pid", Value: pid}}},
				ContainerRef: &brandRef,
			},
			SeriesRef: &series,
		})
		require.NoError(t, err)
		return result
	}

	writeEpisode("Rose", "e1", seriesOne, now.Add(time.Minute))
	writeEpisode("The End of the World", "e2", seriesOne, now.Add(2*time.Minute))
	last := writeEpisode("New Earth", "e3", seriesTwo, now.Add(3*time.Minute))

	// Every episode rippled into the brand, alongside both series refs.
	storedBrand := store.contents[brandID].(*models.Brand)
	assert.Len(t, storedBrand.ItemRefs, 3)
	assert.Len(t, storedBrand.SeriesRefs, 2)

	// The hierarchy timestamp tracks the most recent descendant write.
	assert.Equal(t, last.Resource.Core().LastUpdated, storedBrand.Core().ThisOrChildLastUpdated)

	storedOne := store.contents[seriesOne.ID].(*models.Series)
	storedTwo := store.contents[seriesTwo.ID].(*models.Series)
	assert.Len(t, storedOne.ItemRefs, 2)
	assert.Len(t, storedTwo.ItemRefs, 1)
	assert.Equal(t, last.Resource.Core().LastUpdated, storedTwo.Core().ThisOrChildLastUpdated)
}

func TestWriteContentNotifierFailureDoesNotFailWrite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	notifier := &recordingNotifier{err: assert.AnError}
	engine := newTestEngine(store, notifier, now)

	result, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		Publisher: "bbc", Title: "Doctor Who",
	}})
	require.NoError(t, err)
	assert.True(t, result.Written)
}

func TestWriteContentUnknownIDIsFirstWriteUnderThatID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	id := int64(404)
	result, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		ID: &id, Publisher: "bbc", Title: "Doctor Who",
	}})
	require.NoError(t, err)

	// The supplied id survives; nothing is allocated.
	assert.True(t, result.Written)
	assert.Nil(t, result.Previous)
	require.NotNil(t, result.Resource.Core().ID)
	assert.Equal(t, int64(404), *result.Resource.Core().ID)
	assert.Equal(t, now, result.Resource.Core().FirstSeen)

	_, ok := store.contents[404]
	assert.True(t, ok)
}

func TestWriteContentIDOwnedByAnotherPublisherRejected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	engine := newTestEngine(store, nil, now)

	id := int64(7)
	store.contents[7] = &models.Brand{ContentCore: models.ContentCore{
		ID: &id, Publisher: "itv", Title: "Coronation Street",
	}}

	_, err := engine.WriteContent(context.Background(), &models.Brand{ContentCore: models.ContentCore{
		ID: &id, Publisher: "bbc", Title: "Doctor Who",
	}})
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))
}
