// Package equivalence maintains the materialised equivalence-set view: one
// row per graph holding the full content of every resolvable member.
package equivalence

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/sorrel/pkg/clock"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
	"github.com/Ramsey-B/sorrel/pkg/writing"
)

// GraphResolver loads the equivalence graph each id currently belongs to.
// Ids with no graph are absent from the result.
type GraphResolver interface {
	ResolveGraphsForIDs(ctx context.Context, ids []int64) (map[int64]models.EquivalenceGraph, error)
}

// SetRowStore persists materialised set rows.
type SetRowStore interface {
	// ReplaceRows writes the given rows and removes rows for deleted set
	// ids, clearing stale member associations in the same transaction.
	ReplaceRows(ctx context.Context, rows []models.EquivalenceSetRow, deleted []int64) error
}

// Consolidator applies graph updates and content rewrites to the
// materialised view. All mutation happens under the group lock so
// concurrent updates to overlapping sets serialise.
type Consolidator struct {
	logger   ectologger.Logger
	lock     IDLock
	resolver writing.ContentResolver
	graphs   GraphResolver
	rows     SetRowStore
	clock    clock.Clock
}

func NewConsolidator(
	logger ectologger.Logger,
	resolver writing.ContentResolver,
	graphs GraphResolver,
	rows SetRowStore,
	clk clock.Clock,
) *Consolidator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Consolidator{
		logger:   logger,
		lock:     NewGroupLock(),
		resolver: resolver,
		graphs:   graphs,
		rows:     rows,
		clock:    clk,
	}
}

// UseLock swaps the default in-process lock for a shared one. Multi-instance
// deployments point this at the distributed lock so instances serialise on
// the same id sets.
func (c *Consolidator) UseLock(lock IDLock) {
	c.lock = lock
}

// UpdateEquivalences rebuilds the set rows touched by a graph update. Every
// surviving graph in the update gets a freshly materialised row; rows for
// deleted graph ids are dropped.
func (c *Consolidator) UpdateEquivalences(ctx context.Context, update models.EquivalenceGraphUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "equivalence.Consolidator.UpdateEquivalences")
	defer span.End()

	touched := update.TouchedIDs()
	if err := c.lock.Lock(ctx, touched); err != nil {
		return err
	}
	defer c.lock.Unlock(touched)

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"touched": len(touched),
		"created": len(update.Created),
		"deleted": len(update.Deleted),
	})

	rows, err := c.materialise(ctx, update.AllGraphs())
	if err != nil {
		return err
	}

	if err := c.rows.ReplaceRows(ctx, rows, update.Deleted); err != nil {
		return errors.Wrap(err, "failed to replace equivalence set rows")
	}

	log.Info("equivalence sets consolidated")
	return nil
}

// UpdateContent refreshes the written content inside its current set row.
// Content outside any graph is materialised as its own singleton set.
func (c *Consolidator) UpdateContent(ctx context.Context, content models.Content) error {
	ctx, span := tracing.StartSpan(ctx, "equivalence.Consolidator.UpdateContent")
	defer span.End()

	if content == nil || content.Core().ID == nil {
		return errors.New("content with an id is required")
	}
	id := *content.Core().ID

	graphs, err := c.graphs.ResolveGraphsForIDs(ctx, []int64{id})
	if err != nil {
		return errors.Wrapf(err, "failed to resolve graph for id %d", id)
	}
	graph, ok := graphs[id]
	if !ok {
		graph = models.SingletonGraph(models.RefOf(content))
	}

	memberIDs := graph.MemberIDs()
	if err := c.lock.Lock(ctx, memberIDs); err != nil {
		return err
	}
	defer c.lock.Unlock(memberIDs)

	rows, err := c.materialise(ctx, []models.EquivalenceGraph{graph})
	if err != nil {
		return err
	}

	// The fresh write wins over whatever resolve returned for it.
	replaced := false
	for i := range rows[0].Members {
		member := rows[0].Members[i]
		if member.Core().ID != nil && *member.Core().ID == id {
			rows[0].Members[i] = content
			replaced = true
		}
	}
	if !replaced {
		rows[0].Members = append(rows[0].Members, content)
	}

	if err := c.rows.ReplaceRows(ctx, rows, nil); err != nil {
		return errors.Wrapf(err, "failed to refresh set row for id %d", id)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"content_id": id,
		"set_id":     graph.SetID(),
	}).Debug("equivalence set refreshed for content write")
	return nil
}

// materialise resolves every member of each graph into a set row. Members
// that no longer resolve are skipped rather than failing the row.
func (c *Consolidator) materialise(ctx context.Context, graphs []models.EquivalenceGraph) ([]models.EquivalenceSetRow, error) {
	var allIDs []int64
	for _, g := range graphs {
		allIDs = append(allIDs, g.MemberIDs()...)
	}

	contents, err := c.resolver.ResolveIDs(ctx, allIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve graph members")
	}
	byID := make(map[int64]models.Content, len(contents))
	for _, content := range contents {
		if content.Core().ID != nil {
			byID[*content.Core().ID] = content
		}
	}

	now := c.clock.Now()
	rows := make([]models.EquivalenceSetRow, 0, len(graphs))
	for _, g := range graphs {
		members := make([]models.Content, 0, len(g.Members))
		for _, ref := range g.Members {
			if content, ok := byID[ref.ID]; ok {
				members = append(members, content)
			}
		}
		rows = append(rows, models.EquivalenceSetRow{
			SetID:     g.SetID(),
			Members:   members,
			UpdatedAt: now,
		})
	}
	return rows, nil
}
