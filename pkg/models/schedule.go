package models

import "time"

// ItemAndBroadcast pairs an item with exactly one of its broadcasts. In
// schedule contexts the item's broadcast set is pruned to the single
// relevant transmission.
type ItemAndBroadcast struct {
	Item      Content   `json:"item"`
	Broadcast Broadcast `json:"broadcast"`
}

// ChannelSchedule is the ordered set of transmissions for one channel over
// one interval, for a single publisher.
type ChannelSchedule struct {
	ChannelID string             `json:"channel_id"`
	Interval  Interval           `json:"interval"`
	Entries   []ItemAndBroadcast `json:"entries"`
}

// CopyWithEntries returns a schedule over the same channel and interval
// with the given entries.
func (s ChannelSchedule) CopyWithEntries(entries []ItemAndBroadcast) ChannelSchedule {
	return ChannelSchedule{ChannelID: s.ChannelID, Interval: s.Interval, Entries: entries}
}

// ScheduleHierarchy is one incoming schedule entry together with the
// container hierarchy it hangs off. Container and Series are optional.
type ScheduleHierarchy struct {
	ItemAndBroadcast ItemAndBroadcast `json:"item_and_broadcast"`
	Container        Content          `json:"container,omitempty"`
	Series           *Series          `json:"series,omitempty"`
}

// ScheduleBlock is the storage unit for schedules: all entries for one
// publisher whose broadcasts start inside one fixed-width window on one
// channel.
type ScheduleBlock struct {
	Publisher string             `json:"publisher"`
	ChannelID string             `json:"channel_id"`
	Start     time.Time          `json:"start"`
	Entries   []ItemAndBroadcast `json:"entries"`
}

// EquivalentScheduleEntry is one broadcast with every equivalent rendition
// of the transmitted item, one per contributing publisher at most.
type EquivalentScheduleEntry struct {
	Broadcast Broadcast `json:"broadcast"`
	Items     []Content `json:"items"`
}

// EquivalentChannelSchedule is a channel's schedule with entries resolved
// through the equivalence layer.
type EquivalentChannelSchedule struct {
	ChannelID string                    `json:"channel_id"`
	Interval  Interval                  `json:"interval"`
	Entries   []EquivalentScheduleEntry `json:"entries"`
}

// EquivalentSchedule groups per-channel equivalent schedules resolved for
// one request.
type EquivalentSchedule struct {
	Channels []EquivalentChannelSchedule `json:"channels"`
}
