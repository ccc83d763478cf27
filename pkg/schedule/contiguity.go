package schedule

import (
	"sort"
	"time"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// ContiguityCheck validates that a batch of broadcasts forms a clean run:
// sorted by start, no overlaps, and no gap wider than MaxGap between one
// broadcast's end and the next one's start.
type ContiguityCheck struct {
	MaxGap time.Duration
}

// Check reports the first contiguity violation, or nil. The input is
// inspected in start order without being mutated.
func (c ContiguityCheck) Check(broadcasts []models.Broadcast) error {
	ordered := append([]models.Broadcast(nil), broadcasts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(ordered[j].Start)
	})

	for i := 1; i < len(ordered); i++ {
		prev, next := ordered[i-1], ordered[i]
		if next.Start.Before(prev.End) {
			return NewValidationError("broadcasts overlap on channel %s: %s starts before %s ends",
				next.ChannelID, next.Start.Format(time.RFC3339), prev.End.Format(time.RFC3339))
		}
		if gap := next.Start.Sub(prev.End); gap > c.MaxGap {
			return NewValidationError("gap of %s on channel %s exceeds the allowed %s",
				gap, next.ChannelID, c.MaxGap)
		}
	}
	return nil
}
