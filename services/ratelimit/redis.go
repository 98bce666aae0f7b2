package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/config"
)

// RedisCounter keeps window counters in Redis so every replica shares them
type RedisCounter struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

var _ Counter = (*RedisCounter)(nil)

// NewRedisClient parses the URL and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCounter creates a counter over an existing client
func NewRedisCounter(client *redis.Client, prefix string, logger *zap.Logger) *RedisCounter {
	if prefix == "" {
		prefix = "aigov"
	}
	return &RedisCounter{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCounter) key(tenantID uuid.UUID, w Window, at time.Time) string {
	return fmt.Sprintf("%s:window:%s:%s", c.prefix, tenantID, w.bucket(at))
}

func (c *RedisCounter) tokensKey(tenantID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s:tokens:%s:%s", c.prefix, tenantID, WindowMinute.bucket(at))
}

// Peek returns the current counts without recording anything
func (c *RedisCounter) Peek(ctx context.Context, tenantID uuid.UUID, at time.Time) (Counts, error) {
	keys := []string{
		c.key(tenantID, WindowMinute, at),
		c.key(tenantID, WindowHour, at),
		c.key(tenantID, WindowDay, at),
		c.tokensKey(tenantID, at),
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("failed to read window counters: %w", err)
	}

	n := make([]int64, len(vals))
	for i, v := range vals {
		n[i] = parseCount(v)
	}

	counts := emptyCounts(at)
	counts.RequestsLastMinute = n[0]
	counts.RequestsLastHour = n[1]
	counts.RequestsLastDay = n[2]
	counts.TokensLastMinute = n[3]
	return counts, nil
}

// Hit records one request in a single pipeline and returns counts that include it.
// Keys expire one window after their bucket ends.
func (c *RedisCounter) Hit(ctx context.Context, tenantID uuid.UUID, tokens int64, at time.Time) (Counts, error) {
	pipe := c.client.TxPipeline()

	incrs := make([]*redis.IntCmd, len(Windows))
	for i, w := range Windows {
		key := c.key(tenantID, w, at)
		incrs[i] = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*w.Duration())
	}

	if tokens < 0 {
		tokens = 0
	}
	tokensKey := c.tokensKey(tenantID, at)
	tokensCmd := pipe.IncrBy(ctx, tokensKey, tokens)
	pipe.Expire(ctx, tokensKey, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("window counter update failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return Counts{}, fmt.Errorf("failed to update window counters: %w", err)
	}

	counts := emptyCounts(at)
	counts.RequestsLastMinute = incrs[0].Val()
	counts.RequestsLastHour = incrs[1].Val()
	counts.RequestsLastDay = incrs[2].Val()
	counts.TokensLastMinute = tokensCmd.Val()
	return counts, nil
}

// Reset drops the tenant's counters for the current windows
func (c *RedisCounter) Reset(ctx context.Context, tenantID uuid.UUID) error {
	now := time.Now()
	keys := []string{c.tokensKey(tenantID, now)}
	for _, w := range Windows {
		keys = append(keys, c.key(tenantID, w, now))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset window counters: %w", err)
	}
	return nil
}

// HealthCheck pings Redis
func (c *RedisCounter) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func parseCount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
