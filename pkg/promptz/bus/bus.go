// Package bus holds the wire envelope shared by the event bus backends and
// the archive replay contract they implement.
//
// Every backend except the in-memory bus carries a domain event as a
// CloudEvents 1.0 envelope:
//
//	Event.ID          -> id
//	Event.Source      -> source
//	Event.DetailType  -> type         (e.g. "prompt.saved")
//	Event.Time        -> time
//	Event.Detail      -> data         (the entity as JSON, datacontenttype application/json)
//	Event.Detail.ID   -> subject
//	kind name         -> entitykind   (extension attribute)
//
// Archive consumers read detailType from type and detail from data.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
)

// Filter selects archived events for replay. Zero fields match everything.
type Filter struct {
	Since       time.Time
	Until       time.Time
	DetailTypes []string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *promptz.Event) bool {
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Time.Before(f.Until) {
		return false
	}
	if len(f.DetailTypes) == 0 {
		return true
	}
	for _, t := range f.DetailTypes {
		if t == e.DetailType {
			return true
		}
	}
	return false
}

// Replayer reads events back from a durable archive in emission order.
// Replay stops at the first error returned by fn.
type Replayer interface {
	Replay(ctx context.Context, filter Filter, fn func(*promptz.Event) error) error
}

// Republish replays the archived events matching filter into p and returns
// how many were delivered.
func Republish(ctx context.Context, r Replayer, filter Filter, p promptz.Publisher) (int, error) {
	n := 0
	err := r.Replay(ctx, filter, func(e *promptz.Event) error {
		if err := p.Publish(ctx, e); err != nil {
			return fmt.Errorf("republish event %s: %w", e.ID, err)
		}
		n++
		return nil
	})
	return n, err
}
