package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

const (
	initialRetryDelay = 10 * time.Millisecond
	maxRetryDelay     = 500 * time.Millisecond
)

// releaseScript deletes the key only while this holder still owns it, so a
// slow caller cannot release a lock that expired and was reacquired by
// someone else.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock is a held distributed lock. It expires on its own after the TTL it
// was acquired with.
type Lock struct {
	client *Client
	key    string
	token  string
}

// Locker hands out distributed locks under a shared key prefix.
type Locker struct {
	client    *Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the lock if nobody holds it, returning ErrLockNotAcquired
// otherwise. The holder token is random so only the acquirer can release.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		client: l.client,
		key:    l.keyPrefix + key,
		token:  uuid.New().String(),
	}

	ok, err := l.client.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).WithField("key", lock.key).Debug("Acquired lock")
	return lock, nil
}

// TryAcquire retries Acquire with capped exponential backoff until timeout
// elapses or the context ends.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)

	for delay := initialRetryDelay; time.Now().Before(deadline); delay = min(delay*2, maxRetryDelay) {
		lock, err := l.Acquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lock, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, ErrLockNotAcquired
}

// Release drops the lock. ErrLockNotHeld means the TTL already expired or
// another holder owns the key now.
func (lock *Lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).WithField("key", lock.key).Debug("Released lock")
	return nil
}
