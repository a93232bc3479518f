package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/windfall/shadowing/internal/cache"
)

// RedisClient wraps the go-redis client as a cache invalidation bus.
type RedisClient struct {
	client  *redis.Client
	channel string
}

// NewRedisClient creates a new Redis client from URL.
// URL format: redis://[:password@]host:port/db
func NewRedisClient(url, channel string) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client, channel: channel}, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Publish sends an invalidation to every instance subscribed to the channel.
func (r *RedisClient) Publish(ctx context.Context, inv cache.Invalidation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Listen subscribes to the channel and hands decoded invalidations to handler
// until ctx is done.
func (r *RedisClient) Listen(ctx context.Context, handler func(cache.Invalidation)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reading messages
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv cache.Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				continue
			}
			handler(inv)
		}
	}
}
