package equivalence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// LockInterruptedError reports a lock acquisition cancelled by its context.
type LockInterruptedError struct {
	ID    int64
	Cause error
}

func (e *LockInterruptedError) Error() string {
	return fmt.Sprintf("interrupted waiting for lock on id %d: %v", e.ID, e.Cause)
}

func (e *LockInterruptedError) Unwrap() error { return e.Cause }

// IsLockInterrupted reports whether err is a cancelled lock acquisition.
func IsLockInterrupted(err error) bool {
	var target *LockInterruptedError
	return errors.As(err, &target)
}

// IDLock serialises work on overlapping sets of content ids.
type IDLock interface {
	// Lock acquires every id in the set, blocking until all are free.
	Lock(ctx context.Context, ids []int64) error
	// Unlock releases the given ids.
	Unlock(ids []int64)
}

// GroupLock serialises work on overlapping sets of content ids within one
// process. Ids are always acquired in sorted order so two callers locking
// overlapping sets cannot deadlock. The lock is not re-entrant.
type GroupLock struct {
	mu     sync.Mutex
	locked map[int64]struct{}
	wake   chan struct{}
}

func NewGroupLock() *GroupLock {
	return &GroupLock{
		locked: make(map[int64]struct{}),
		wake:   make(chan struct{}),
	}
}

// Lock acquires every id in the set, blocking until all are free. On
// cancellation any partially acquired ids are released before returning.
func (l *GroupLock) Lock(ctx context.Context, ids []int64) error {
	ordered := canonicalIDs(ids)
	acquired := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		if err := l.lockOne(ctx, id); err != nil {
			l.Unlock(acquired)
			return err
		}
		acquired = append(acquired, id)
	}
	return nil
}

// Unlock releases the given ids and wakes all waiters.
func (l *GroupLock) Unlock(ids []int64) {
	l.mu.Lock()
	for _, id := range canonicalIDs(ids) {
		delete(l.locked, id)
	}
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
}

func (l *GroupLock) lockOne(ctx context.Context, id int64) error {
	for {
		l.mu.Lock()
		if _, held := l.locked[id]; !held {
			l.locked[id] = struct{}{}
			l.mu.Unlock()
			return nil
		}
		wake := l.wake
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return &LockInterruptedError{ID: id, Cause: ctx.Err()}
		case <-wake:
		}
	}
}

// canonicalIDs sorts and deduplicates the id set.
func canonicalIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	dedup := out[:0]
	var last int64
	for i, id := range out {
		if i > 0 && id == last {
			continue
		}
		dedup = append(dedup, id)
		last = id
	}
	return dedup
}
