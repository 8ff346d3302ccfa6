package promptz

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrConflict indicates a create collided with an existing id
	ErrConflict = errors.New("entity already exists")

	// ErrUnauthorized indicates the ownership condition of an update or delete
	// failed. A missing entity reports the same error.
	ErrUnauthorized = errors.New("caller is not the owner")

	// ErrNotFound indicates the referenced entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidRequest indicates a malformed mutation payload
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownKind indicates an entity kind that is not registered
	ErrUnknownKind = errors.New("unknown entity kind")
)

// MutationError represents a failed store mutation for one entity
type MutationError struct {
	Kind string
	ID   string
	Op   string
	Err  error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s operation %s failed for %s: %v", e.Kind, e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// PublishError represents an event that could not be delivered to the bus.
// It is reported to operators and never returned to callers.
type PublishError struct {
	EventType string
	EventID   string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s event %s failed: %v", e.EventType, e.EventID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
