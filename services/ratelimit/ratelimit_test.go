package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/config"
)

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounter(client, "test", zap.NewNop()), mr
}

func counters(t *testing.T) map[string]Counter {
	rc, _ := newRedisCounter(t)
	return map[string]Counter{
		"memory": NewMemoryCounter(),
		"redis":  rc,
	}
}

func TestWindow_Start(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC), WindowMinute.Start(at))
	assert.Equal(t, time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), WindowHour.Start(at))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), WindowDay.Start(at))
}

func TestCounter_HitIncludesCurrentRequest(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tenant := uuid.New()
			at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

			counts, err := c.Peek(ctx, tenant, at)
			require.NoError(t, err)
			assert.Zero(t, counts.RequestsLastHour)

			counts, err = c.Hit(ctx, tenant, 120, at)
			require.NoError(t, err)
			assert.Equal(t, int64(1), counts.RequestsLastMinute)
			assert.Equal(t, int64(1), counts.RequestsLastHour)
			assert.Equal(t, int64(1), counts.RequestsLastDay)
			assert.Equal(t, int64(120), counts.TokensLastMinute)
			assert.Equal(t, time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC), counts.HourResetAt)
			assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), counts.DayResetAt)

			counts, err = c.Hit(ctx, tenant, 30, at.Add(10*time.Second))
			require.NoError(t, err)
			assert.Equal(t, int64(2), counts.RequestsLastHour)
			assert.Equal(t, int64(150), counts.TokensLastMinute)

			peeked, err := c.Peek(ctx, tenant, at.Add(10*time.Second))
			require.NoError(t, err)
			assert.Equal(t, counts.RequestsLastHour, peeked.RequestsLastHour)
			assert.Equal(t, counts.TokensLastMinute, peeked.TokensLastMinute)
		})
	}
}

func TestCounter_WindowsRollOver(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tenant := uuid.New()
			at := time.Date(2026, 3, 14, 15, 59, 30, 0, time.UTC)

			_, err := c.Hit(ctx, tenant, 10, at)
			require.NoError(t, err)

			counts, err := c.Hit(ctx, tenant, 10, at.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(1), counts.RequestsLastMinute)
			assert.Equal(t, int64(1), counts.RequestsLastHour)
			assert.Equal(t, int64(2), counts.RequestsLastDay)
			assert.Equal(t, int64(10), counts.TokensLastMinute)
		})
	}
}

func TestCounter_TenantsAreIsolated(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, b := uuid.New(), uuid.New()
			now := time.Now()

			_, err := c.Hit(ctx, a, 0, now)
			require.NoError(t, err)

			counts, err := c.Peek(ctx, b, now)
			require.NoError(t, err)
			assert.Zero(t, counts.RequestsLastDay)

			require.NoError(t, c.Reset(ctx, a))
			counts, err = c.Peek(ctx, a, now)
			require.NoError(t, err)
			assert.Zero(t, counts.RequestsLastDay)
		})
	}
}

func TestCounter_ConcurrentHits(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tenant := uuid.New()
			at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.Hit(ctx, tenant, 1, at)
				}()
			}
			wg.Wait()

			counts, err := c.Peek(ctx, tenant, at)
			require.NoError(t, err)
			assert.Equal(t, int64(50), counts.RequestsLastHour)
			assert.Equal(t, int64(50), counts.TokensLastMinute)
		})
	}
}

func TestRedisCounter_KeysExpire(t *testing.T) {
	c, mr := newRedisCounter(t)
	tenant := uuid.New()
	at := time.Now()

	_, err := c.Hit(context.Background(), tenant, 5, at)
	require.NoError(t, err)

	key := c.key(tenant, WindowHour, at)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 2*time.Hour, mr.TTL(key))

	mr.FastForward(3 * time.Hour)
	assert.False(t, mr.Exists(key))
}

func TestRedisCounter_ErrorsSurface(t *testing.T) {
	c, mr := newRedisCounter(t)
	mr.Close()

	_, err := c.Hit(context.Background(), uuid.New(), 1, time.Now())
	assert.Error(t, err)

	_, err = c.Peek(context.Background(), uuid.New(), time.Now())
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(config.RedisConfig{URL: "redis://" + mr.Addr() + "/0", PoolSize: 4})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, NewRedisCounter(client, "", zap.NewNop()).HealthCheck(context.Background()))

	_, err = NewRedisClient(config.RedisConfig{URL: "http://localhost:6379"})
	assert.Error(t, err)
}
