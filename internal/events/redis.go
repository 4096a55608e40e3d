package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultChannel = "organcore.facts"

// RedisPublisher fans facts out over a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to the Redis instance at addr and publishes on
// the given channel (defaultChannel when empty).
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisPublisherWithClient(client, channel), nil
}

// NewRedisPublisherWithClient wraps an existing client. The caller retains
// ownership of the client unless Close is used.
func NewRedisPublisherWithClient(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish serialises the fact as JSON and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, fact Fact) error {
	if fact.OccurredAt.IsZero() {
		fact.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish fact: %w", err)
	}
	return nil
}

// Close releases the underlying client connection.
func (p *RedisPublisher) Close() error { return p.client.Close() }
