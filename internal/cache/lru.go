package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

type lruEntry[V any] struct {
	value    V
	storedAt time.Time
}

// LRU is an in-process cache bounded by size, entries expire after ttl.
type LRU[V any] struct {
	mu     sync.Mutex
	cache  *lru.Cache[uuid.UUID, lruEntry[V]]
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewLRU[V any](size int, ttl time.Duration, logger *zap.Logger) (*LRU[V], error) {
	c, err := lru.New[uuid.UUID, lruEntry[V]](size)
	if err != nil {
		logger.Error("cache.init.failed", zap.Error(err), zap.Int("size", size))
		return nil, err
	}
	return &LRU[V]{
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("cache.lru"),
	}, nil
}

func (c *LRU[V]) Get(_ context.Context, id uuid.UUID) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.cache.Get(id)
	if !ok {
		c.logger.Debug("cache.get.miss", zap.Stringer("id", id))
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.cache.Remove(id)
		c.logger.Debug("cache.get.expired", zap.Stringer("id", id))
		return zero, false
	}
	return entry.value, true
}

func (c *LRU[V]) Put(_ context.Context, id uuid.UUID, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(id, lruEntry[V]{value: value, storedAt: c.now()})
}

func (c *LRU[V]) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(id)
}
