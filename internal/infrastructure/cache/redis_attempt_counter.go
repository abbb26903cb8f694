package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnihub/backend/internal/infrastructure/config"
)

// RedisAttemptCounter implements AttemptCounter using Redis.
// This is suitable for distributed deployments where multiple instances
// need to share throttle state.
type RedisAttemptCounter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisAttemptCounter creates a new Redis-based attempt counter
func NewRedisAttemptCounter(cfg *config.RedisConfig) (*RedisAttemptCounter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAttemptCounter{
		client:    client,
		keyPrefix: "hub:attempts:",
	}, nil
}

// NewRedisAttemptCounterWithClient creates a counter with an existing Redis
// client. This is useful for testing or when sharing a client across
// components.
func NewRedisAttemptCounterWithClient(client *redis.Client, keyPrefix string) *RedisAttemptCounter {
	if keyPrefix == "" {
		keyPrefix = "hub:attempts:"
	}
	return &RedisAttemptCounter{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Incr increments the key's window counter atomically. INCR and EXPIRE NX
// run in one pipeline so the window TTL starts with the first attempt and
// is never extended by later ones.
func (c *RedisAttemptCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := c.keyPrefix + key

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.ExpireNX(ctx, full, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count attempt: %w", err)
	}
	return incr.Val(), nil
}

// Reset clears the counter, reopening the window
func (c *RedisAttemptCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt counter: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisAttemptCounter) Close() error {
	return c.client.Close()
}
