package models

import "time"

// WriteResult reports the outcome of a content write. When Written is
// false the incoming content was a no-op against Previous and nothing was
// persisted.
type WriteResult struct {
	Written   bool      `json:"written"`
	Resource  Content   `json:"resource"`
	Previous  Content   `json:"previous,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// NewWriteResult builds a result. A not-written result must always carry
// the previous version it was compared against.
func NewWriteResult(written bool, resource, previous Content, at time.Time) WriteResult {
	if !written && previous == nil {
		panic("not-written result requires a previous version")
	}
	return WriteResult{Written: written, Resource: resource, Previous: previous, WrittenAt: at}
}
