package promptz

import (
	"context"
)

// Store is the conditional-write persistence contract. Every method is a
// single-item atomic operation; there are no multi-item transactions.
type Store interface {
	// Create writes a new entity if no entity with the same id exists,
	// otherwise it returns ErrConflict.
	Create(ctx context.Context, kind Kind, entity *Entity) error

	// Update overwrites the owner-mutable fields, the slug and UpdatedAt of the
	// entity if the stored owner equals owner, otherwise it returns
	// ErrUnauthorized. It returns the post-write state.
	Update(ctx context.Context, kind Kind, owner string, entity *Entity) (*Entity, error)

	// Delete removes the entity if the stored owner equals owner, otherwise it
	// returns ErrUnauthorized. It returns the last stored state.
	Delete(ctx context.Context, kind Kind, id, owner string) (*Entity, error)

	// Increment atomically adds one to the named counter and returns the
	// updated entity, or ErrNotFound.
	Increment(ctx context.Context, kind Kind, id string, counter Counter) (*Entity, error)

	// Get returns the entity or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) (*Entity, error)
}

// Publisher emits domain events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event *Event) error

// Publish calls f(ctx, event).
func (f PublisherFunc) Publish(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
