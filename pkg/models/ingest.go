package models

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Ingest message types, carried in the message_type Kafka header.
const (
	IngestTypeContent     = "content.write"
	IngestTypeEquivalence = "equivalence.assert"
	IngestTypeSchedule    = "schedule.write"
)

// ContentWriteMessage is an incoming request to write one piece of
// content. The content field is a type-tagged envelope.
type ContentWriteMessage struct {
	Content json.RawMessage `json:"content"`
}

// DecodeContent unwraps the envelope.
func (m ContentWriteMessage) DecodeContent() (Content, error) {
	if len(m.Content) == 0 {
		return nil, errors.New("content write message has no content")
	}
	return UnmarshalContent(m.Content)
}

// EquivalenceAssertMessage replaces the subject's asserted equivalents.
// An empty asserted list withdraws all of the subject's assertions.
type EquivalenceAssertMessage struct {
	Subject  ContentRef   `json:"subject"`
	Asserted []ContentRef `json:"asserted,omitempty"`
}

// ScheduleEntryMessage is one incoming schedule entry with its optional
// container hierarchy, all as content envelopes.
type ScheduleEntryMessage struct {
	Item      json.RawMessage `json:"item"`
	Broadcast Broadcast       `json:"broadcast"`
	Container json.RawMessage `json:"container,omitempty"`
	Series    json.RawMessage `json:"series,omitempty"`
}

// ScheduleWriteMessage is an incoming schedule batch for one channel
// interval.
type ScheduleWriteMessage struct {
	Publisher string                 `json:"publisher"`
	ChannelID string                 `json:"channel_id"`
	Interval  Interval               `json:"interval"`
	Entries   []ScheduleEntryMessage `json:"entries"`
}

// Hierarchies decodes the batch entries into schedule hierarchies.
func (m ScheduleWriteMessage) Hierarchies() ([]ScheduleHierarchy, error) {
	out := make([]ScheduleHierarchy, 0, len(m.Entries))
	for i, entry := range m.Entries {
		item, err := UnmarshalContent(entry.Item)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode schedule entry %d", i)
		}
		h := ScheduleHierarchy{
			ItemAndBroadcast: ItemAndBroadcast{Item: item, Broadcast: entry.Broadcast},
		}
		if len(entry.Container) > 0 {
			container, err := UnmarshalContent(entry.Container)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to decode container of entry %d", i)
			}
			h.Container = container
		}
		if len(entry.Series) > 0 {
			series, err := UnmarshalContent(entry.Series)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to decode series of entry %d", i)
			}
			s, ok := series.(*Series)
			if !ok {
				return nil, errors.Errorf("entry %d series envelope is not a series", i)
			}
			h.Series = s
		}
		out = append(out, h)
	}
	return out, nil
}
