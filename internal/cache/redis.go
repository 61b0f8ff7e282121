package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keeps JSON-encoded values under prefix+id, shared between instances.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis[V any](client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Redis[V] {
	return &Redis[V]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("cache.redis"),
	}
}

func (c *Redis[V]) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

func (c *Redis[V]) Get(ctx context.Context, id uuid.UUID) (V, bool) {
	var out V
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache.get.failed", zap.Stringer("id", id), zap.Error(err))
		}
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("cache.get.decode_failed", zap.Stringer("id", id), zap.Error(err))
		return out, false
	}
	return out, true
}

func (c *Redis[V]) Put(ctx context.Context, id uuid.UUID, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache.put.encode_failed", zap.Stringer("id", id), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(id), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache.put.failed", zap.Stringer("id", id), zap.Error(err))
	}
}

func (c *Redis[V]) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.logger.Warn("cache.invalidate.failed", zap.Stringer("id", id), zap.Error(err))
	}
}
