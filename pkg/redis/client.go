package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/utils"
)

// Default stream configuration
const (
	DefaultStreamMaxLen = 10000 // Default max entries per stream
)

// Client wraps the Redis client for real-time entity notifications (Pub/Sub and Streams).
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64 // Max entries per stream (0 = unlimited)
}

// NewClient connects to the Redis server described by cfg.
// REDIS_STREAM_MAXLEN caps each stream (default: 10000, 0 = unlimited).
func NewClient(ctx context.Context, logger *zap.Logger, cfg config.RedisConfig) (*Client, error) {
	streamMaxLen := utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		// Connection pool
		PoolSize:     10,
		MinIdleConns: 2,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int64("streamMaxLen", streamMaxLen))

	return &Client{
		client:       rdb,
		logger:       logger,
		streamMaxLen: streamMaxLen,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish publishes a message to a Redis Pub/Sub channel.
// This is a best-effort operation - errors are logged but not returned
// so a Redis outage never fails block indexing.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// PSubscribe subscribes to one or more Redis Pub/Sub channel patterns.
// For example: "payoutx:*:payout.claimed" matches every chain.
// The caller is responsible for closing the PubSub object when done.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	c.logger.Debug("Subscribing to Redis patterns", zap.Strings("patterns", patterns))
	return c.client.PSubscribe(ctx, patterns...)
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// XAdd adds an entry to a stream. Uses MAXLEN to cap stream size if configured.
// Returns the entry ID (e.g., "1234567890123-0"), or "" after logging the error.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) string {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}

	// Approximate trimming is much cheaper for Redis.
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}

	id, err := c.client.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Failed to add to Redis stream",
			zap.String("stream", stream),
			zap.Error(err))
		return ""
	}
	return id
}

// XRead reads entries from one stream after lastID.
// Use "0" to read from the beginning, "$" to read only new entries.
// Block is how long to wait for new entries; 0 waits forever and a negative value does not block.
func (c *Client) XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XStream, error) {
	return c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
}
