package models

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// contentEnvelope wraps serialised content with its variant tag so the
// concrete type survives a round trip through storage.
type contentEnvelope struct {
	Type    ContentType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalContent serialises content into a type-tagged JSON envelope.
func MarshalContent(c Content) ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal content payload")
	}
	return json.Marshal(contentEnvelope{Type: c.Type(), Payload: payload})
}

// UnmarshalContent deserialises a type-tagged envelope back into its
// concrete content variant.
func UnmarshalContent(data []byte) (Content, error) {
	var env contentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal content envelope")
	}

	var c Content
	switch env.Type {
	case ContentTypeBrand:
		c = &Brand{}
	case ContentTypeSeries:
		c = &Series{}
	case ContentTypeItem:
		c = &Item{}
	case ContentTypeEpisode:
		c = &Episode{}
	case ContentTypeFilm:
		c = &Film{}
	case ContentTypeSong:
		c = &Song{}
	case ContentTypeClip:
		c = &Clip{}
	default:
		return nil, errors.Errorf("unknown content type %q", env.Type)
	}

	if err := json.Unmarshal(env.Payload, c); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s payload", env.Type)
	}
	return c, nil
}

// MarshalContents envelopes a content slice.
func MarshalContents(contents []Content) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(contents))
	for _, c := range contents {
		data, err := MarshalContent(c)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// UnmarshalContents decodes a slice of envelopes.
func UnmarshalContents(raw []json.RawMessage) ([]Content, error) {
	out := make([]Content, 0, len(raw))
	for _, data := range raw {
		c, err := UnmarshalContent(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type itemAndBroadcastJSON struct {
	Item      json.RawMessage `json:"item"`
	Broadcast Broadcast       `json:"broadcast"`
}

// MarshalJSON envelopes the item so its concrete variant survives storage.
func (e ItemAndBroadcast) MarshalJSON() ([]byte, error) {
	item, err := MarshalContent(e.Item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(itemAndBroadcastJSON{Item: item, Broadcast: e.Broadcast})
}

func (e *ItemAndBroadcast) UnmarshalJSON(data []byte) error {
	var raw itemAndBroadcastJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	item, err := UnmarshalContent(raw.Item)
	if err != nil {
		return err
	}
	e.Item = item
	e.Broadcast = raw.Broadcast
	return nil
}

type equivalentScheduleEntryJSON struct {
	Broadcast Broadcast         `json:"broadcast"`
	Items     []json.RawMessage `json:"items"`
}

func (e EquivalentScheduleEntry) MarshalJSON() ([]byte, error) {
	items, err := MarshalContents(e.Items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(equivalentScheduleEntryJSON{Broadcast: e.Broadcast, Items: items})
}

func (e *EquivalentScheduleEntry) UnmarshalJSON(data []byte) error {
	var raw equivalentScheduleEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	items, err := UnmarshalContents(raw.Items)
	if err != nil {
		return err
	}
	e.Broadcast = raw.Broadcast
	e.Items = items
	return nil
}
