// Package cehttp delivers domain events to an HTTP sink as CloudEvents, e.g.
// a Knative broker or any webhook that accepts CloudEvents.
package cehttp

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	httpproto "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
)

// Config options for the HTTP sink
type Config struct {
	Target     string        // Sink URL
	Structured bool          // Send structured mode instead of binary mode
	Timeout    time.Duration // Per-request timeout; zero uses the caller's context only
}

// Publisher sends each event with one HTTP request.
type Publisher struct {
	client cloudevents.Client
	config Config
}

var _ promptz.Publisher = (*Publisher)(nil)

// New creates a publisher for config.Target.
func New(config Config, opts ...httpproto.Option) (*Publisher, error) {
	if config.Target == "" {
		return nil, errors.New("target url is required")
	}

	opts = append([]httpproto.Option{cloudevents.WithTarget(config.Target)}, opts...)
	client, err := cloudevents.NewClientHTTP(opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}
	return &Publisher{client: client, config: config}, nil
}

// Publish sends the event and requires the sink to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, event *promptz.Event) error {
	ce, err := bus.ToCloudEvent(event)
	if err != nil {
		return err
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	if p.config.Structured {
		ctx = cloudevents.WithEncodingStructured(ctx)
	}

	result := p.client.Send(ctx, ce)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("send %s to %s: %w", event.DetailType, p.config.Target, result)
	}
	if !cloudevents.IsACK(result) {
		var httpResult *httpproto.Result
		if cloudevents.ResultAs(result, &httpResult) {
			return fmt.Errorf("sink %s rejected %s with status %d", p.config.Target, event.DetailType, httpResult.StatusCode)
		}
		return fmt.Errorf("sink %s rejected %s: %w", p.config.Target, event.DetailType, result)
	}
	return nil
}
