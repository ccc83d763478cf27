package equivalence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/redis"
)

const (
	// DefaultDistributedLockTTL bounds how long a crashed instance can hold
	// an id before its locks expire.
	DefaultDistributedLockTTL = 30 * time.Second
	// DefaultDistributedLockWait bounds how long acquisition waits per id.
	DefaultDistributedLockWait = 60 * time.Second
)

// DistributedGroupLock serialises work on overlapping id sets across
// service instances using per-id redis locks. Ids are acquired in sorted
// order, same as GroupLock, so overlapping acquisitions cannot deadlock.
type DistributedGroupLock struct {
	logger ectologger.Logger
	locker *redis.Locker
	ttl    time.Duration
	wait   time.Duration

	mu   sync.Mutex
	held map[int64]*redis.Lock
}

func NewDistributedGroupLock(logger ectologger.Logger, client *redis.Client) *DistributedGroupLock {
	return &DistributedGroupLock{
		logger: logger,
		locker: redis.NewLocker(client, "equivalence:"),
		ttl:    DefaultDistributedLockTTL,
		wait:   DefaultDistributedLockWait,
		held:   make(map[int64]*redis.Lock),
	}
}

// Lock acquires every id in the set. On failure any partially acquired ids
// are released before returning.
func (l *DistributedGroupLock) Lock(ctx context.Context, ids []int64) error {
	ordered := canonicalIDs(ids)
	acquired := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		lock, err := l.locker.TryAcquire(ctx, strconv.FormatInt(id, 10), l.ttl, l.wait)
		if err != nil {
			l.Unlock(acquired)
			return &LockInterruptedError{ID: id, Cause: err}
		}
		l.mu.Lock()
		l.held[id] = lock
		l.mu.Unlock()
		acquired = append(acquired, id)
	}
	return nil
}

// Unlock releases the given ids. Release failures are logged; the redis
// keys expire on their own after the TTL.
func (l *DistributedGroupLock) Unlock(ids []int64) {
	ctx := context.Background()
	for _, id := range canonicalIDs(ids) {
		l.mu.Lock()
		lock, ok := l.held[id]
		delete(l.held, id)
		l.mu.Unlock()
		if !ok {
			continue
		}
		if err := lock.Release(ctx); err != nil {
			l.logger.WithError(err).WithField("content_id", id).Warn("Failed to release distributed lock")
		}
	}
}
