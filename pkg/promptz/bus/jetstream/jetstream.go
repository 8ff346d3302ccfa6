// Package jetstream publishes domain events to a NATS JetStream stream. The
// stream is the durable archive: events are kept for the configured retention
// and can be replayed by time range and detail type.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Defaults
const (
	DefaultStream        = "PROMPTZ_EVENTS"
	DefaultSubjectPrefix = "promptz.events"
	DefaultDuplicates    = 2 * time.Minute

	replayBatch   = 100
	replayMaxWait = time.Second
)

// Config options for the JetStream bus
type Config struct {
	URL           string        // NATS server URL
	Stream        string        // Stream name (default PROMPTZ_EVENTS)
	SubjectPrefix string        // Subject prefix; events go to prefix.<detailType>
	Retention     time.Duration // Stream MaxAge; zero keeps events forever
	Replicas      int           // Stream replicas (default 1)
}

func (c *Config) defaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
}

// Bus is a promptz.Publisher and bus.Replayer backed by JetStream.
type Bus struct {
	nc     *nats.Conn
	owned  bool
	js     jetstream.JetStream
	stream jetstream.Stream
	config Config
}

var (
	_ promptz.Publisher = (*Bus)(nil)
	_ bus.Replayer      = (*Bus)(nil)
)

// Connect dials config.URL and ensures the stream exists. Close drains the
// connection.
func Connect(ctx context.Context, config Config, opts ...nats.Option) (*Bus, error) {
	if config.URL == "" {
		return nil, errors.New("nats url is required")
	}
	opts = append([]nats.Option{nats.Name("promptz")}, opts...)
	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b, err := New(ctx, nc, config)
	if err != nil {
		nc.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// New ensures the stream exists on an existing connection.
func New(ctx context.Context, nc *nats.Conn, config Config) (*Bus, error) {
	config.defaults()

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.Stream,
		Description: "promptz domain events",
		Subjects:    []string{config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      config.Retention,
		Storage:     jetstream.FileStorage,
		Replicas:    config.Replicas,
		Duplicates:  DefaultDuplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", config.Stream, err)
	}

	return &Bus{nc: nc, js: js, stream: stream, config: config}, nil
}

// Publish writes the event as a structured CloudEvent. The event id doubles
// as the JetStream message id, so retries inside the duplicate window are
// stored once.
func (b *Bus) Publish(ctx context.Context, event *promptz.Event) error {
	data, err := bus.Marshal(event)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(bus.Subject(b.config.SubjectPrefix, event))
	msg.Header.Set("Content-Type", "application/cloudevents+json")
	msg.Data = data

	if _, err := b.js.PublishMsg(ctx, msg, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// FilterSubjects maps detail types onto stream subjects. No detail types
// means the whole stream.
func FilterSubjects(prefix string, detailTypes []string) []string {
	if len(detailTypes) == 0 {
		return nil
	}
	subjects := make([]string, 0, len(detailTypes))
	for _, dt := range detailTypes {
		subjects = append(subjects, bus.Subject(prefix, &promptz.Event{DetailType: dt}))
	}
	return subjects
}

// Replay reads the stream with an ephemeral ordered consumer, starting at
// filter.Since, until the events that were stored when the call began are
// exhausted.
func (b *Bus) Replay(ctx context.Context, filter bus.Filter, fn func(*promptz.Event) error) error {
	info, err := b.stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("stream info: %w", err)
	}
	if info.State.Msgs == 0 {
		return nil
	}
	last := info.State.LastSeq

	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: FilterSubjects(b.config.SubjectPrefix, filter.DetailTypes),
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if !filter.Since.IsZero() {
		since := filter.Since
		cfg.DeliverPolicy = jetstream.DeliverByStartTimePolicy
		cfg.OptStartTime = &since
	}

	consumer, err := b.js.OrderedConsumer(ctx, b.config.Stream, cfg)
	if err != nil {
		return fmt.Errorf("create replay consumer: %w", err)
	}

	for {
		msgs, err := consumer.Fetch(replayBatch, jetstream.FetchMaxWait(replayMaxWait))
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}

		received := 0
		for msg := range msgs.Messages() {
			received++
			meta, err := msg.Metadata()
			if err != nil {
				return fmt.Errorf("message metadata: %w", err)
			}

			event, err := bus.Unmarshal(msg.Data())
			if err != nil {
				return fmt.Errorf("decode message %d: %w", meta.Sequence.Stream, err)
			}
			if !filter.Until.IsZero() && !event.Time.Before(filter.Until) {
				return nil
			}
			if filter.Match(event) {
				if err := fn(event); err != nil {
					return err
				}
			}
			if meta.Sequence.Stream >= last {
				return nil
			}
		}

		if err := msgs.Error(); err != nil && !isFetchTimeout(err) {
			return fmt.Errorf("fetch: %w", err)
		}
		if received == 0 {
			return ctx.Err()
		}
	}
}

func isFetchTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Close drains the connection if Connect opened it.
func (b *Bus) Close() error {
	if b.owned {
		return b.nc.Drain()
	}
	return nil
}
