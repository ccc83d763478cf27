// Package schedule implements schedule reconciliation: validating incoming
// broadcast batches, replacing the stored schedule for an interval, and
// projecting stored schedules through the equivalence layer.
package schedule

import (
	"time"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// BroadcastMatcher decides whether two broadcasts describe the same
// transmission across publishers.
type BroadcastMatcher interface {
	Matches(a, b models.Broadcast) bool
}

// FlexibleMatcher matches broadcasts on the same channel whose start times
// fall within StartFlex of each other. When EndFlex is set the end times
// must also fall within it.
type FlexibleMatcher struct {
	StartFlex time.Duration
	EndFlex   *time.Duration
}

// NewFlexibleMatcher allows start drift up to startFlex with no end bound.
func NewFlexibleMatcher(startFlex time.Duration) FlexibleMatcher {
	return FlexibleMatcher{StartFlex: startFlex}
}

// NewFlexibleStartEndMatcher bounds drift on both ends.
func NewFlexibleStartEndMatcher(startFlex, endFlex time.Duration) FlexibleMatcher {
	return FlexibleMatcher{StartFlex: startFlex, EndFlex: &endFlex}
}

// ExactStartMatcher requires identical channel and start.
func ExactStartMatcher() FlexibleMatcher {
	return FlexibleMatcher{}
}

// ExactStartEndMatcher requires identical channel, start and end.
func ExactStartEndMatcher() FlexibleMatcher {
	zero := time.Duration(0)
	return FlexibleMatcher{EndFlex: &zero}
}

func (m FlexibleMatcher) Matches(a, b models.Broadcast) bool {
	if a.ChannelID != b.ChannelID {
		return false
	}
	if absDrift(a.Start, b.Start) > m.StartFlex {
		return false
	}
	if m.EndFlex != nil && absDrift(a.End, b.End) > *m.EndFlex {
		return false
	}
	return true
}

func absDrift(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
