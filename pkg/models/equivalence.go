package models

import "time"

// EquivalenceGraph is a connected set of content refs asserted to describe
// the same logical programme across publishers. The graph's id is the
// minimum member id, which keeps ids stable as edges change.
type EquivalenceGraph struct {
	Members []ContentRef `json:"members"`
}

// SetID returns the canonical id of the graph: the minimum member id.
func (g EquivalenceGraph) SetID() int64 {
	var min int64
	for i, m := range g.Members {
		if i == 0 || m.ID < min {
			min = m.ID
		}
	}
	return min
}

// MemberIDs returns the member ids in declaration order.
func (g EquivalenceGraph) MemberIDs() []int64 {
	ids := make([]int64, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// Contains reports whether the graph holds a member with the given id.
func (g EquivalenceGraph) Contains(id int64) bool {
	for _, m := range g.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// SingletonGraph builds the trivial graph holding only ref. Content with no
// asserted equivalences lives in its own singleton.
func SingletonGraph(ref ContentRef) EquivalenceGraph {
	return EquivalenceGraph{Members: []ContentRef{ref}}
}

// EquivalenceGraphUpdate is the effect of writing a set of equivalence
// assertions: one graph gained the asserting subject, zero or more graphs
// were split off, and zero or more previous graph ids no longer exist.
type EquivalenceGraphUpdate struct {
	Updated EquivalenceGraph   `json:"updated"`
	Created []EquivalenceGraph `json:"created,omitempty"`
	Deleted []int64            `json:"deleted,omitempty"`
}

// AllGraphs returns the updated graph followed by any created graphs.
func (u EquivalenceGraphUpdate) AllGraphs() []EquivalenceGraph {
	graphs := make([]EquivalenceGraph, 0, 1+len(u.Created))
	graphs = append(graphs, u.Updated)
	graphs = append(graphs, u.Created...)
	return graphs
}

// TouchedIDs returns every content id affected by the update: members of
// all surviving graphs plus the ids of deleted graphs. The result is
// deduplicated but unordered.
func (u EquivalenceGraphUpdate) TouchedIDs() []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, g := range u.AllGraphs() {
		for _, m := range g.Members {
			add(m.ID)
		}
	}
	for _, id := range u.Deleted {
		add(id)
	}
	return ids
}

// EquivalenceSetRow is the materialised view of one graph: the full content
// of every resolvable member, keyed by the graph's set id.
type EquivalenceSetRow struct {
	SetID     int64     `json:"set_id"`
	Members   []Content `json:"members"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberWithID returns the row member carrying id, or nil.
func (r EquivalenceSetRow) MemberWithID(id int64) Content {
	for _, m := range r.Members {
		if m.Core().ID != nil && *m.Core().ID == id {
			return m
		}
	}
	return nil
}
