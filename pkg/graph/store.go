package graph

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Store keeps equivalence assertions as a graph: content nodes joined by
// directed ASSERTS edges. Graph membership is connected components over
// those edges regardless of direction.
type Store struct {
	client *Client
	logger ectologger.Logger
}

// NewStore creates a new equivalence graph store
func NewStore(client *Client, logger ectologger.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
	}
}

// WriteAssertions replaces the subject's outgoing assertions with the
// given set and reports how connected components changed: the component
// now holding the subject, any components split off from the old state,
// and the set ids that no longer exist.
func (s *Store) WriteAssertions(ctx context.Context, subject models.ContentRef, asserted []models.ContentRef) (models.EquivalenceGraphUpdate, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.WriteAssertions")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"subject_id": subject.ID,
		"asserted":   len(asserted),
	})

	before, err := s.componentOf(ctx, subject.ID)
	if err != nil {
		return models.EquivalenceGraphUpdate{}, err
	}
	touched := map[int64]struct{}{subject.ID: {}}
	for _, member := range before {
		touched[member.ID] = struct{}{}
	}
	for _, ref := range asserted {
		touched[ref.ID] = struct{}{}
		component, err := s.componentOf(ctx, ref.ID)
		if err != nil {
			return models.EquivalenceGraphUpdate{}, err
		}
		for _, member := range component {
			touched[member.ID] = struct{}{}
		}
	}

	beforeSetIDs, err := s.setIDsOf(ctx, keysOf(touched))
	if err != nil {
		return models.EquivalenceGraphUpdate{}, err
	}

	if err := s.replaceAssertions(ctx, subject, asserted); err != nil {
		return models.EquivalenceGraphUpdate{}, err
	}

	update, afterSetIDs, err := s.componentsAfter(ctx, subject, keysOf(touched))
	if err != nil {
		return models.EquivalenceGraphUpdate{}, err
	}

	for _, setID := range beforeSetIDs {
		if _, survives := afterSetIDs[setID]; !survives {
			update.Deleted = append(update.Deleted, setID)
		}
	}
	sort.Slice(update.Deleted, func(i, j int) bool { return update.Deleted[i] < update.Deleted[j] })

	log.WithFields(map[string]any{
		"created": len(update.Created),
		"deleted": len(update.Deleted),
	}).Info("equivalence assertions written")
	return update, nil
}

// ResolveGraphsForIDs maps each id present in the graph to its connected
// component.
func (s *Store) ResolveGraphsForIDs(ctx context.Context, ids []int64) (map[int64]models.EquivalenceGraph, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.ResolveGraphsForIDs")
	defer span.End()

	out := make(map[int64]models.EquivalenceGraph)
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		members, err := s.componentOf(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			continue
		}
		graph := models.EquivalenceGraph{Members: members}
		for _, member := range members {
			out[member.ID] = graph
		}
	}

	// Only the requested ids belong in the result.
	requested := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}
	for id := range out {
		if _, ok := requested[id]; !ok {
			delete(out, id)
		}
	}
	return out, nil
}

// replaceAssertions rewires the subject's outgoing edges in one write
// transaction.
func (s *Store) replaceAssertions(ctx context.Context, subject models.ContentRef, asserted []models.ContentRef) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		merge := `MERGE (n:Content {id: $id})
			SET n.publisher = $publisher, n.type = $type`
		if _, err := tx.Run(ctx, merge, refParams(subject)); err != nil {
			return nil, err
		}

		clear := `MATCH (n:Content {id: $id})-[r:ASSERTS]->() DELETE r`
		if _, err := tx.Run(ctx, clear, map[string]any{"id": subject.ID}); err != nil {
			return nil, err
		}

		for _, ref := range asserted {
			if ref.ID == subject.ID {
				continue
			}
			if _, err := tx.Run(ctx, merge, refParams(ref)); err != nil {
				return nil, err
			}
			link := `MATCH (a:Content {id: $from}), (b:Content {id: $to})
				MERGE (a)-[:ASSERTS]->(b)`
			if _, err := tx.Run(ctx, link, map[string]any{"from": subject.ID, "to": ref.ID}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to write equivalence assertions")
	}
	return nil
}

// componentOf returns every member of the node's connected component, or
// nil when the node is not in the graph.
func (s *Store) componentOf(ctx context.Context, id int64) ([]models.ContentRef, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `MATCH (n:Content {id: $id})
			OPTIONAL MATCH (n)-[:ASSERTS*0..]-(m:Content)
			RETURN DISTINCT m.id AS id, m.publisher AS publisher, m.type AS type`
		records, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}

		var members []models.ContentRef
		for records.Next(ctx) {
			record := records.Record()
			ref, ok := refFromRecord(record)
			if !ok {
				continue
			}
			members = append(members, ref)
		}
		return members, records.Err()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve component of %d", id)
	}
	members, _ := result.([]models.ContentRef)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

// componentsAfter resolves the post-write components of the touched ids
// into a graph update, subject's component first.
func (s *Store) componentsAfter(ctx context.Context, subject models.ContentRef, touched []int64) (models.EquivalenceGraphUpdate, map[int64]struct{}, error) {
	var update models.EquivalenceGraphUpdate
	afterSetIDs := make(map[int64]struct{})
	seen := make(map[int64]struct{})

	subjectComponent, err := s.componentOf(ctx, subject.ID)
	if err != nil {
		return update, nil, err
	}
	if len(subjectComponent) == 0 {
		subjectComponent = []models.ContentRef{subject}
	}
	update.Updated = models.EquivalenceGraph{Members: subjectComponent}
	afterSetIDs[update.Updated.SetID()] = struct{}{}
	for _, member := range subjectComponent {
		seen[member.ID] = struct{}{}
	}

	for _, id := range touched {
		if _, done := seen[id]; done {
			continue
		}
		component, err := s.componentOf(ctx, id)
		if err != nil {
			return update, nil, err
		}
		if len(component) == 0 {
			continue
		}
		graph := models.EquivalenceGraph{Members: component}
		update.Created = append(update.Created, graph)
		afterSetIDs[graph.SetID()] = struct{}{}
		for _, member := range component {
			seen[member.ID] = struct{}{}
		}
	}
	return update, afterSetIDs, nil
}

// setIDsOf resolves the distinct component set ids covering the given ids.
func (s *Store) setIDsOf(ctx context.Context, ids []int64) ([]int64, error) {
	seen := make(map[int64]struct{})
	var setIDs []int64
	for _, id := range ids {
		if _, done := seen[id]; done {
			continue
		}
		component, err := s.componentOf(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(component) == 0 {
			continue
		}
		graph := models.EquivalenceGraph{Members: component}
		setIDs = append(setIDs, graph.SetID())
		for _, member := range component {
			seen[member.ID] = struct{}{}
		}
	}
	return setIDs, nil
}

func refParams(ref models.ContentRef) map[string]any {
	return map[string]any{
		"id":        ref.ID,
		"publisher": ref.Publisher,
		"type":      string(ref.Type),
	}
}

func refFromRecord(record *neo4j.Record) (models.ContentRef, bool) {
	idValue, ok := record.Get("id")
	if !ok || idValue == nil {
		return models.ContentRef{}, false
	}
	id, ok := idValue.(int64)
	if !ok {
		return models.ContentRef{}, false
	}
	ref := models.ContentRef{ID: id}
	if publisher, ok := record.Get("publisher"); ok {
		if s, ok := publisher.(string); ok {
			ref.Publisher = s
		}
	}
	if typ, ok := record.Get("type"); ok {
		if s, ok := typ.(string); ok {
			ref.Type = models.ContentType(s)
		}
	}
	return ref, true
}

func keysOf(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
