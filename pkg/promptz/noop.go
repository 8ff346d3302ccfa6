package promptz

import (
	"context"
	"errors"
	"log/slog"
)

// NoopPublisher is a no-operation implementation of Publisher
// Useful when no event bus is configured or for testing
type NoopPublisher struct{}

// NewNoopPublisher creates a new no-operation publisher
func NewNoopPublisher() Publisher {
	return &NoopPublisher{}
}

// Publish does nothing and returns nil
func (n *NoopPublisher) Publish(ctx context.Context, event *Event) error {
	return nil
}

// LogPublisher writes every event to a structured logger instead of a bus.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs events at info level
func NewLogPublisher(logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, event *Event) error {
	p.logger.InfoContext(ctx, "Domain event",
		"source", event.Source,
		"detail_type", event.DetailType,
		"event_id", event.ID,
		"entity_id", event.Detail.ID)
	return nil
}

// FanoutPublisher delivers each event to every publisher in order. One sink
// failing does not stop delivery to the others; the failures are joined.
type FanoutPublisher struct {
	publishers []Publisher
}

// NewFanoutPublisher creates a publisher over the given sinks
func NewFanoutPublisher(publishers ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{publishers: publishers}
}

// Add appends a sink
func (f *FanoutPublisher) Add(p Publisher) {
	f.publishers = append(f.publishers, p)
}

// Len returns the number of sinks
func (f *FanoutPublisher) Len() int {
	return len(f.publishers)
}

// Publish delivers event to all sinks
func (f *FanoutPublisher) Publish(ctx context.Context, event *Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
