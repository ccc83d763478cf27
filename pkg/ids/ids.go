// Package ids hands out content ids. Ids are allocated once, on the first
// write of a piece of content, and are never reused.
package ids

import (
	"context"
	"sync/atomic"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
	"github.com/pkg/errors"
)

// Allocator issues monotonically increasing content ids.
type Allocator interface {
	NextID(ctx context.Context) (int64, error)
}

// SequenceAllocator draws ids from a Postgres sequence so every instance
// of the service allocates from the same space.
type SequenceAllocator struct {
	db       database.DB
	sequence string
}

func NewSequenceAllocator(db database.DB, sequence string) *SequenceAllocator {
	return &SequenceAllocator{db: db, sequence: sequence}
}

func (a *SequenceAllocator) NextID(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "ids.SequenceAllocator.NextID")
	defer span.End()

	var id int64
	if err := a.db.GetContext(ctx, &id, "SELECT nextval($1)", a.sequence); err != nil {
		return 0, errors.Wrapf(err, "failed to advance sequence %s", a.sequence)
	}
	return id, nil
}

// MemoryAllocator issues ids from an in-process counter. Test use only.
type MemoryAllocator struct {
	last atomic.Int64
}

func NewMemoryAllocator(start int64) *MemoryAllocator {
	a := &MemoryAllocator{}
	a.last.Store(start)
	return a
}

func (a *MemoryAllocator) NextID(_ context.Context) (int64, error) {
	return a.last.Add(1), nil
}
