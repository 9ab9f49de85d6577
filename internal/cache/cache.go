package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carebridge/internal/models"

	"github.com/redis/go-redis/v9"
)

// SlotCache stores generated slot sequences per provider and date.
// Keys are always enumerated exactly; there is no pattern deletion.
type SlotCache interface {
	Get(ctx context.Context, providerID int64, date time.Time) (starts []models.Clock, ok bool, err error)
	Set(ctx context.Context, providerID int64, date time.Time, starts []models.Clock, ttl time.Duration) error
	Invalidate(ctx context.Context, providerID int64, dates ...time.Time) error
}

// Key returns the cache key for a provider and date.
func Key(providerID int64, date time.Time) string {
	return fmt.Sprintf("available_slots:%d:%s", providerID, date.Format(models.DateLayout))
}

// RedisSlotCache keeps slot sequences as JSON strings with a TTL.
type RedisSlotCache struct {
	client redis.Cmdable
}

func NewRedisSlotCache(client redis.Cmdable) *RedisSlotCache {
	return &RedisSlotCache{client: client}
}

func (c *RedisSlotCache) Get(ctx context.Context, providerID int64, date time.Time) ([]models.Clock, bool, error) {
	val, err := c.client.Get(ctx, Key(providerID, date)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var starts []models.Clock
	if err := json.Unmarshal([]byte(val), &starts); err != nil {
		return nil, false, fmt.Errorf("decode cached slots: %w", err)
	}
	return starts, true, nil
}

func (c *RedisSlotCache) Set(ctx context.Context, providerID int64, date time.Time, starts []models.Clock, ttl time.Duration) error {
	if starts == nil {
		// An empty day is a valid cached answer, distinct from a miss.
		starts = []models.Clock{}
	}
	data, err := json.Marshal(starts)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	if err := c.client.Set(ctx, Key(providerID, date), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisSlotCache) Invalidate(ctx context.Context, providerID int64, dates ...time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = Key(providerID, d)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Noop never stores anything. It is used when redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, int64, time.Time) ([]models.Clock, bool, error) {
	return nil, false, nil
}

func (Noop) Set(context.Context, int64, time.Time, []models.Clock, time.Duration) error {
	return nil
}

func (Noop) Invalidate(context.Context, int64, ...time.Time) error {
	return nil
}
