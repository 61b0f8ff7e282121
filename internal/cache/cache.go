package cache

import (
	"context"

	"github.com/google/uuid"
)

// Store is a read-through cache keyed by entity id.
// Implementations never fail the caller: errors are logged and read as a miss.
type Store[V any] interface {
	Get(ctx context.Context, id uuid.UUID) (V, bool)
	Put(ctx context.Context, id uuid.UUID, value V)
	Invalidate(ctx context.Context, id uuid.UUID)
}

// Noop never stores anything.
type Noop[V any] struct{}

func (Noop[V]) Get(context.Context, uuid.UUID) (V, bool) {
	var zero V
	return zero, false
}

func (Noop[V]) Put(context.Context, uuid.UUID, V) {}

func (Noop[V]) Invalidate(context.Context, uuid.UUID) {}
