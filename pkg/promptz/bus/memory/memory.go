// Package memory provides an in-process event bus that keeps every published
// event and can replay them. It backs local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
)

// Bus records published events in order.
type Bus struct {
	mu       sync.RWMutex
	events   []*promptz.Event
	capacity int
}

var (
	_ promptz.Publisher = (*Bus)(nil)
	_ bus.Replayer      = (*Bus)(nil)
)

// New creates a bus keeping at most capacity events; zero means unbounded.
func New(capacity int) *Bus {
	return &Bus{capacity: capacity}
}

// Publish records a copy of the event.
func (b *Bus) Publish(ctx context.Context, event *promptz.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *event
	stored.Detail = event.Detail.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, &stored)
	if b.capacity > 0 && len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	return nil
}

// Events returns the recorded events, oldest first.
func (b *Bus) Events() []*promptz.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*promptz.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops every recorded event.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Replay calls fn for each recorded event that matches filter.
func (b *Bus) Replay(ctx context.Context, filter bus.Filter, fn func(*promptz.Event) error) error {
	for _, e := range b.Events() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filter.Match(e) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}
