// Package models defines the content hierarchy, references, broadcasts,
// equivalence graphs and schedule types shared across the service.
package models

import (
	"time"
)

// ContentType identifies a variant of the content hierarchy. The set is
// closed: write paths dispatch exhaustively over these values.
type ContentType string

const (
	ContentTypeBrand   ContentType = "brand"
	ContentTypeSeries  ContentType = "series"
	ContentTypeItem    ContentType = "item"
	ContentTypeEpisode ContentType = "episode"
	ContentTypeFilm    ContentType = "film"
	ContentTypeSong    ContentType = "song"
	ContentTypeClip    ContentType = "clip"
)

// IsContainer reports whether the type holds child references.
func (t ContentType) IsContainer() bool {
	return t == ContentTypeBrand || t == ContentTypeSeries
}

// Alias is a publisher-scoped secondary key (namespace + value).
type Alias struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

// ContentCore holds the fields common to every content variant.
// The id is assigned once on first write and never changes afterwards.
type ContentCore struct {
	ID          *int64       `json:"id,omitempty"`
	Publisher   string       `json:"publisher"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Aliases     []Alias      `json:"aliases,omitempty"`
	Equivalents []ContentRef `json:"equivalents,omitempty"`

	FirstSeen              time.Time `json:"first_seen,omitempty"`
	LastUpdated            time.Time `json:"last_updated,omitempty"`
	ThisOrChildLastUpdated time.Time `json:"this_or_child_last_updated,omitempty"`
}

// Core returns the shared field block; it satisfies half of the Content
// interface for every variant via embedding.
func (c *ContentCore) Core() *ContentCore { return c }

// Content is the closed interface over the hierarchy variants.
type Content interface {
	Type() ContentType
	Core() *ContentCore
	Copy() Content
}

// Brand is a top-level container (e.g. a programme brand) holding ordered
// child item and series references rather than full children.
type Brand struct {
	ContentCore
	ItemRefs   []ChildRef `json:"item_refs,omitempty"`
	SeriesRefs []ChildRef `json:"series_refs,omitempty"`
}

func (b *Brand) Type() ContentType { return ContentTypeBrand }

func (b *Brand) Copy() Content {
	cp := *b
	cp.ContentCore = copyCore(b.ContentCore)
	cp.ItemRefs = append([]ChildRef(nil), b.ItemRefs...)
	cp.SeriesRefs = append([]ChildRef(nil), b.SeriesRefs...)
	return &cp
}

// Series is a secondary container, optionally nested under a Brand.
type Series struct {
	ContentCore
	SeriesNumber *int        `json:"series_number,omitempty"`
	BrandRef     *ContentRef `json:"brand_ref,omitempty"`
	ItemRefs     []ChildRef  `json:"item_refs,omitempty"`
}

func (s *Series) Type() ContentType { return ContentTypeSeries }

func (s *Series) Copy() Content {
	cp := *s
	cp.ContentCore = copyCore(s.ContentCore)
	cp.ItemRefs = append([]ChildRef(nil), s.ItemRefs...)
	if s.BrandRef != nil {
		ref := *s.BrandRef
		cp.BrandRef = &ref
	}
	return &cp
}

// Item is the generic leaf variant. Leaf subtypes embed it.
type Item struct {
	ContentCore
	ContainerRef     *ContentRef       `json:"container_ref,omitempty"`
	ContainerSummary *ContainerSummary `json:"container_summary,omitempty"`
	Broadcasts       []Broadcast       `json:"broadcasts,omitempty"`
}

func (i *Item) Type() ContentType { return ContentTypeItem }

func (i *Item) Copy() Content {
	cp := i.copyItem()
	return &cp
}

func (i *Item) copyItem() Item {
	cp := *i
	cp.ContentCore = copyCore(i.ContentCore)
	cp.Broadcasts = append([]Broadcast(nil), i.Broadcasts...)
	if i.ContainerRef != nil {
		ref := *i.ContainerRef
		cp.ContainerRef = &ref
	}
	if i.ContainerSummary != nil {
		sum := *i.ContainerSummary
		cp.ContainerSummary = &sum
	}
	return cp
}

// SetBroadcasts replaces the item's broadcast set.
func (i *Item) SetBroadcasts(broadcasts []Broadcast) {
	i.Broadcasts = broadcasts
}

// Episode is an item nested two levels deep: it requires a container and may
// additionally reference a series within that container.
type Episode struct {
	Item
	SeriesRef     *ContentRef `json:"series_ref,omitempty"`
	SeriesNumber  *int        `json:"episode_series_number,omitempty"`
	EpisodeNumber *int        `json:"episode_number,omitempty"`
}

func (e *Episode) Type() ContentType { return ContentTypeEpisode }

func (e *Episode) Copy() Content {
	cp := *e
	cp.Item = e.Item.copyItem()
	if e.SeriesRef != nil {
		ref := *e.SeriesRef
		cp.SeriesRef = &ref
	}
	return &cp
}

// Film is a leaf item for feature content.
type Film struct {
	Item
	Year *int `json:"year,omitempty"`
}

func (f *Film) Type() ContentType { return ContentTypeFilm }

func (f *Film) Copy() Content {
	cp := *f
	cp.Item = f.Item.copyItem()
	return &cp
}

// Song is a leaf item for music content.
type Song struct {
	Item
	ISRC string `json:"isrc,omitempty"`
}

func (s *Song) Type() ContentType { return ContentTypeSong }

func (s *Song) Copy() Content {
	cp := *s
	cp.Item = s.Item.copyItem()
	return &cp
}

// Clip is a short-form leaf item.
type Clip struct {
	Item
}

func (c *Clip) Type() ContentType { return ContentTypeClip }

func (c *Clip) Copy() Content {
	cp := *c
	cp.Item = c.Item.copyItem()
	return &cp
}

func copyCore(core ContentCore) ContentCore {
	cp := core
	if core.ID != nil {
		id := *core.ID
		cp.ID = &id
	}
	cp.Aliases = append([]Alias(nil), core.Aliases...)
	cp.Equivalents = append([]ContentRef(nil), core.Equivalents...)
	return cp
}

// ItemVariant reports whether the content is an item (leaf) variant.
func ItemVariant(c Content) bool {
	switch c.Type() {
	case ContentTypeItem, ContentTypeEpisode, ContentTypeFilm, ContentTypeSong, ContentTypeClip:
		return true
	}
	return false
}

// ContainerRefOf returns the declared container reference of an item
// variant, or nil for containers and items without one.
func ContainerRefOf(c Content) *ContentRef {
	switch v := c.(type) {
	case *Item:
		return v.ContainerRef
	case *Episode:
		return v.ContainerRef
	case *Film:
		return v.ContainerRef
	case *Song:
		return v.ContainerRef
	case *Clip:
		return v.ContainerRef
	}
	return nil
}

// BroadcastsOf returns the broadcast set of an item variant.
func BroadcastsOf(c Content) []Broadcast {
	switch v := c.(type) {
	case *Item:
		return v.Broadcasts
	case *Episode:
		return v.Broadcasts
	case *Film:
		return v.Broadcasts
	case *Song:
		return v.Broadcasts
	case *Clip:
		return v.Broadcasts
	}
	return nil
}

// SetBroadcastsOf replaces the broadcast set of an item variant.
func SetBroadcastsOf(c Content, broadcasts []Broadcast) {
	switch v := c.(type) {
	case *Item:
		v.Broadcasts = broadcasts
	case *Episode:
		v.Broadcasts = broadcasts
	case *Film:
		v.Broadcasts = broadcasts
	case *Song:
		v.Broadcasts = broadcasts
	case *Clip:
		v.Broadcasts = broadcasts
	}
}
