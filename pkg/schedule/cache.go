package schedule

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/redis"
)

// DefaultCacheTTL bounds staleness when an invalidation is missed.
const DefaultCacheTTL = 5 * time.Minute

// RedisCache stores resolved equivalent schedules in Redis under the
// projector's cache keys.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.EquivalentSchedule, error) {
	value, err := c.client.Get(ctx, key)
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out models.EquivalentSchedule
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, schedule models.EquivalentSchedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

// InvalidateChannel drops every cached projection touching the channel,
// whichever publisher or interval it was resolved for.
func (c *RedisCache) InvalidateChannel(ctx context.Context, channelID string) error {
	return c.deleteByPattern(ctx, "schedule:*:"+channelID+":*")
}

// InvalidateAll drops the whole projection cache.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.deleteByPattern(ctx, "schedule:*")
}

func (c *RedisCache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Redis().Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...)
}
