package models

import "time"

// ContentRef is a lightweight pointer to a piece of content. Two refs are
// the same logical content when id, publisher and type all match.
type ContentRef struct {
	ID        int64       `json:"id" db:"id"`
	Publisher string      `json:"publisher" db:"publisher"`
	Type      ContentType `json:"type" db:"type"`
}

// Equal reports identity by id, publisher and type.
func (r ContentRef) Equal(other ContentRef) bool {
	return r.ID == other.ID && r.Publisher == other.Publisher && r.Type == other.Type
}

// RefOf builds the reference for a written piece of content. Callers must
// only pass content that already carries an id.
func RefOf(c Content) ContentRef {
	core := c.Core()
	var id int64
	if core.ID != nil {
		id = *core.ID
	}
	return ContentRef{ID: id, Publisher: core.Publisher, Type: c.Type()}
}

// ChildRef is a container's ordered reference to one of its children.
// SortKey carries the publisher ordering hint (episode number, title).
type ChildRef struct {
	ID      int64       `json:"id"`
	SortKey string      `json:"sort_key,omitempty"`
	Updated time.Time   `json:"updated,omitempty"`
	Type    ContentType `json:"type"`
}

// ChildRefOf builds the child reference an item contributes to its
// container when first written.
func ChildRefOf(c Content, sortKey string, updated time.Time) ChildRef {
	core := c.Core()
	var id int64
	if core.ID != nil {
		id = *core.ID
	}
	return ChildRef{ID: id, SortKey: sortKey, Updated: updated, Type: c.Type()}
}

// ContainerSummary is the denormalised slice of a container carried on its
// items so item reads don't need a second resolve.
type ContainerSummary struct {
	ID          int64       `json:"id"`
	Type        ContentType `json:"type"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
}

// SummaryOf derives the summary a container exposes to its children.
func SummaryOf(c Content) *ContainerSummary {
	core := c.Core()
	var id int64
	if core.ID != nil {
		id = *core.ID
	}
	return &ContainerSummary{
		ID:          id,
		Type:        c.Type(),
		Title:       core.Title,
		Description: core.Description,
	}
}
