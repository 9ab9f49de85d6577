package cache

import (
	"context"
	"testing"
	"time"

	"carebridge/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisSlotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlotCache(client), mr
}

func TestKey(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "available_slots:7:2026-03-02", Key(7, date))
}

func TestRedisSlotCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	starts := []models.Clock{models.MustClock("09:00"), models.MustClock("09:30")}

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := c.Get(ctx, 1, date)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, 1, date, starts, 5*time.Minute))

		got, ok, err := c.Get(ctx, 1, date)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, starts, got)
		assert.Equal(t, 5*time.Minute, mr.TTL(Key(1, date)))
	})

	t.Run("EmptyDayIsAHit", func(t *testing.T) {
		other := date.AddDate(0, 0, 1)
		require.NoError(t, c.Set(ctx, 1, other, nil, time.Minute))

		got, ok, err := c.Get(ctx, 1, other)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, 2, date, starts, time.Minute))
		mr.FastForward(2 * time.Minute)

		_, ok, err := c.Get(ctx, 2, date)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InvalidateExactKeys", func(t *testing.T) {
		next := date.AddDate(0, 0, 7)
		require.NoError(t, c.Set(ctx, 3, date, starts, time.Minute))
		require.NoError(t, c.Set(ctx, 3, next, starts, time.Minute))
		require.NoError(t, c.Set(ctx, 4, date, starts, time.Minute))

		require.NoError(t, c.Invalidate(ctx, 3, date))

		assert.False(t, mr.Exists(Key(3, date)))
		assert.True(t, mr.Exists(Key(3, next)))
		assert.True(t, mr.Exists(Key(4, date)))
	})

	t.Run("RedisDown", func(t *testing.T) {
		mr.SetError("server down")
		defer mr.SetError("")

		_, _, err := c.Get(ctx, 1, date)
		assert.Error(t, err)
	})
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c SlotCache = Noop{}

	require.NoError(t, c.Set(ctx, 1, time.Now(), []models.Clock{1}, time.Minute))
	_, ok, err := c.Get(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, 1, time.Now()))
}
