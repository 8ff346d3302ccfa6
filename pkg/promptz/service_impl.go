package promptz

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPublishTimeout bounds the publisher stage of a single request.
const DefaultPublishTimeout = 5 * time.Second

// service implements the Service interface
type service struct {
	store          Store
	publisher      Publisher
	logger         *slog.Logger
	metrics        *Metrics
	publishTimeout time.Duration
	resolverConfig ResolverConfig

	resolver *Resolver
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the entity store for the service
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithPublisher sets the event publisher for the service
func WithPublisher(publisher Publisher) Option {
	return func(s *service) {
		s.publisher = publisher
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus collectors for the service
func WithMetrics(metrics *Metrics) Option {
	return func(s *service) {
		s.metrics = metrics
	}
}

// WithEventSource sets the source namespace of published events
func WithEventSource(source string) Option {
	return func(s *service) {
		s.resolverConfig.Source = source
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.resolverConfig.Clock = clock
	}
}

// WithIDGenerator overrides entity id generation
func WithIDGenerator(newID func() string) Option {
	return func(s *service) {
		s.resolverConfig.NewID = newID
	}
}

// WithMaxCreateAttempts bounds id regeneration after create conflicts
func WithMaxCreateAttempts(n int) Option {
	return func(s *service) {
		s.resolverConfig.MaxCreateAttempts = n
	}
}

// WithPublishTimeout bounds each publish call
func WithPublishTimeout(d time.Duration) Option {
	return func(s *service) {
		s.publishTimeout = d
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		publishTimeout: DefaultPublishTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.publisher == nil {
		s.publisher = NewNoopPublisher()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = DefaultPublishTimeout
	}

	s.resolver = NewResolver(s.store, s.resolverConfig)
	return s, nil
}

func (s *service) Save(ctx context.Context, kind Kind, caller string, req SaveRequest) (*Entity, error) {
	op := "create"
	if req.IsUpdate() {
		op = "update"
	}
	entity, event, err := s.resolver.Save(ctx, kind, caller, req)
	return s.finish(ctx, kind, op, entity, event, err)
}

func (s *service) Delete(ctx context.Context, kind Kind, caller, id string) (*Entity, error) {
	entity, event, err := s.resolver.Delete(ctx, kind, caller, id)
	return s.finish(ctx, kind, "delete", entity, event, err)
}

func (s *service) Copy(ctx context.Context, kind Kind, id string) (*Entity, error) {
	entity, event, err := s.resolver.Increment(ctx, kind, id, CounterCopy)
	return s.finish(ctx, kind, "copy", entity, event, err)
}

func (s *service) Download(ctx context.Context, kind Kind, id string) (*Entity, error) {
	entity, event, err := s.resolver.Increment(ctx, kind, id, CounterDownload)
	return s.finish(ctx, kind, "download", entity, event, err)
}

func (s *service) Get(ctx context.Context, kind Kind, id string) (*Entity, error) {
	return s.store.Get(ctx, kind, id)
}

// finish is the publisher stage. A failed store stage short-circuits it; a
// failed publish never changes the result handed back to the caller.
func (s *service) finish(ctx context.Context, kind Kind, op string, entity *Entity, event *Event, err error) (*Entity, error) {
	s.metrics.observeMutation(kind.Name, op, err)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event)
	return entity, nil
}

func (s *service) publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}

	// The store write is committed; the client going away must not drop the event.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pctx, event); err != nil {
		perr := &PublishError{EventType: event.DetailType, EventID: event.ID, Err: err}
		s.logger.Error("Failed to publish event",
			"event_type", event.DetailType,
			"event_id", event.ID,
			"entity_id", event.Detail.ID,
			"error", perr)
		s.metrics.observePublish(event.DetailType, perr)
		return
	}
	s.metrics.observePublish(event.DetailType, nil)
}
