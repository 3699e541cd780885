package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Envelope is the wire form of a domain event on the instance events channel.
// Origin identifies the publishing process so relays can drop their own echoes.
type Envelope struct {
	Type        string          `json:"type"`
	Origin      string          `json:"origin"`
	Payload     json.RawMessage `json:"payload"`
	EmittedAtMs int64           `json:"emitted_at_ms"`
}

// PublishEvent publishes an envelope to cohort:{instance}:events.
// Delivery is at-most-once: subscribers that are not connected miss the event.
func (c *Client) PublishEvent(ctx context.Context, env *Envelope) error {
	if env.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.rdb.Publish(ctx, EventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// EventSubscription represents an active Pub/Sub subscription to domain events.
// Caller must call Close() when done to clean up resources.
type EventSubscription struct {
	events <-chan *Envelope
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of event envelopes.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *EventSubscription) Events() <-chan *Envelope {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures; the subscription continues after errors.
func (s *EventSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *EventSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to domain events for this instance.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// The subscription is confirmed with Redis before this method returns, so events
// published after it returns are not missed.
func (c *Client) SubscribeEvents(ctx context.Context) (*EventSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, EventsChannel(c.instanceName))

	// Wait for the subscribe confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	eventsChan := make(chan *Envelope, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &EventSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
