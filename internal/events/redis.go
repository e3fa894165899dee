package events

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes on Redis pub/sub. Topic separators "/" become ":"
// to follow Redis channel naming.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.rdb.Publish(ctx, strings.ReplaceAll(topic, "/", ":"), payload).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
