package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentEnvelopeKeepsConcreteType(t *testing.T) {
	id := int64(12)
	episode := &Episode{
		Item: Item{
			ContentCore:  ContentCore{ID: &id, Publisher: "bbc.co.uk", Title: "Rose"},
			ContainerRef: &ContentRef{ID: 3, Publisher: "bbc.co.uk", Type: ContentTypeBrand},
		},
		EpisodeNumber: intPtr(1),
	}

	payload, err := MarshalContent(episode)
	require.NoError(t, err)

	decoded, err := UnmarshalContent(payload)
	require.NoError(t, err)

	restored, ok := decoded.(*Episode)
	require.True(t, ok, "episode came back as %T", decoded)
	assert.Equal(t, ContentTypeEpisode, restored.Type())
	assert.Equal(t, int64(12), *restored.Core().ID)
	require.NotNil(t, restored.ContainerRef)
	assert.Equal(t, int64(3), restored.ContainerRef.ID)
	require.NotNil(t, restored.EpisodeNumber)
	assert.Equal(t, 1, *restored.EpisodeNumber)
}

func TestUnmarshalContentRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalContent([]byte(`{"type": "podcast", "payload": {}}`))
	assert.Error(t, err)
}

func TestItemAndBroadcastSurvivesStorage(t *testing.T) {
	id := int64(5)
	entry := ItemAndBroadcast{
		Item: &Item{ContentCore: ContentCore{ID: &id, Publisher: "bbc.co.uk", Title: "News at Ten"}},
		Broadcast: Broadcast{
			ChannelID: "bbcone",
			Start:     time.Date(2021, time.March, 1, 22, 0, 0, 0, time.UTC),
			End:       time.Date(2021, time.March, 1, 23, 0, 0, 0, time.UTC),
		},
	}

	payload, err := entry.MarshalJSON()
	require.NoError(t, err)

	var restored ItemAndBroadcast
	require.NoError(t, restored.UnmarshalJSON(payload))

	assert.IsType(t, &Item{}, restored.Item)
	assert.Equal(t, int64(5), *restored.Item.Core().ID)
	assert.Equal(t, "bbcone", restored.Broadcast.ChannelID)
}

func TestEquivalentScheduleEntrySurvivesStorage(t *testing.T) {
	subjectID, otherID := int64(5), int64(9)
	entry := EquivalentScheduleEntry{
		Broadcast: Broadcast{
			ChannelID: "bbcone",
			Start:     time.Date(2021, time.March, 1, 22, 0, 0, 0, time.UTC),
			End:       time.Date(2021, time.March, 1, 23, 0, 0, 0, time.UTC),
		},
		Items: []Content{
			&Item{ContentCore: ContentCore{ID: &subjectID, Publisher: "bbc.co.uk"}},
			&Film{Item: Item{ContentCore: ContentCore{ID: &otherID, Publisher: "itv.com"}}},
		},
	}

	payload, err := entry.MarshalJSON()
	require.NoError(t, err)

	var restored EquivalentScheduleEntry
	require.NoError(t, restored.UnmarshalJSON(payload))

	require.Len(t, restored.Items, 2)
	assert.IsType(t, &Item{}, restored.Items[0])
	assert.IsType(t, &Film{}, restored.Items[1])
	assert.Equal(t, int64(9), *restored.Items[1].Core().ID)
}

func intPtr(v int) *int { return &v }
