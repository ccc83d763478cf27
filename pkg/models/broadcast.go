package models

import "time"

// Broadcast is a single transmission of an item on a channel. Identity is
// the publisher source id when present, otherwise channel plus interval.
type Broadcast struct {
	SourceID  *string   `json:"source_id,omitempty"`
	ChannelID string    `json:"channel_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`

	ActivelyPublished *bool `json:"actively_published,omitempty"`
	Repeat            *bool `json:"repeat,omitempty"`
	Live              *bool `json:"live,omitempty"`
	Subtitled         *bool `json:"subtitled,omitempty"`
	HighDefinition    *bool `json:"high_definition,omitempty"`
}

// IsActivelyPublished treats an unset flag as published.
func (b Broadcast) IsActivelyPublished() bool {
	return b.ActivelyPublished == nil || *b.ActivelyPublished
}

// Interval returns the broadcast's transmission interval.
func (b Broadcast) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Equal reports whether two broadcasts are the same transmission. Source
// ids are compared when both sides carry one; otherwise identity falls
// back to channel and exact interval.
func (b Broadcast) Equal(other Broadcast) bool {
	if b.SourceID != nil && other.SourceID != nil {
		return *b.SourceID == *other.SourceID
	}
	return b.ChannelID == other.ChannelID &&
		b.Start.Equal(other.Start) &&
		b.End.Equal(other.End)
}

// WithActivelyPublished returns a copy with the published flag set.
func (b Broadcast) WithActivelyPublished(published bool) Broadcast {
	b.ActivelyPublished = &published
	return b
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether t falls inside the half-open interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Encloses reports whether other lies entirely within the interval.
func (i Interval) Encloses(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}
