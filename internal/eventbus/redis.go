package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/google/uuid"
)

// Publisher publishes envelopes on the instance events channel.
// *progress.Client satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, env *progress.Envelope) error
}

// Source opens a subscription to the instance events channel.
// *progress.Client satisfies it.
type Source interface {
	SubscribeEvents(ctx context.Context) (*progress.EventSubscription, error)
}

// RedisBridge forwards bus events to Redis Pub/Sub so that buses in other processes
// can receive them through a Relay.
type RedisBridge struct {
	pub    Publisher
	origin string
	now    func() time.Time
}

// NewRedisBridge creates a bridge with a fresh random origin.
func NewRedisBridge(pub Publisher) *RedisBridge {
	return &RedisBridge{
		pub:    pub,
		origin: uuid.New().String(),
		now:    time.Now,
	}
}

// Origin identifies envelopes published by this bridge.
func (r *RedisBridge) Origin() string {
	return r.origin
}

// Forward implements Bridge.
func (r *RedisBridge) Forward(ctx context.Context, eventType Type, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return r.pub.PublishEvent(ctx, &progress.Envelope{
		Type:        string(eventType),
		Origin:      r.origin,
		Payload:     data,
		EmittedAtMs: r.now().UnixMilli(),
	})
}

// Relay re-delivers envelopes received from Redis into a local bus.
// Envelopes whose origin matches the relay's own origin are dropped.
type Relay struct {
	source Source
	bus    *Bus
	origin string
	logger *log.Logger
}

// NewRelay creates a relay into bus. origin is usually the Origin of the bridge
// attached to the same bus, or empty to accept every envelope.
func NewRelay(source Source, bus *Bus, origin string, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default().WithPrefix("relay")
	}
	return &Relay{source: source, bus: bus, origin: origin, logger: logger}
}

// Start subscribes and relays in a background goroutine until ctx is cancelled.
// The subscription is confirmed before Start returns. The returned channel is
// closed when the relay has stopped.
func (r *Relay) Start(ctx context.Context) (<-chan struct{}, error) {
	sub, err := r.source.SubscribeEvents(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()
		r.run(ctx, sub)
	}()

	return done, nil
}

func (r *Relay) run(ctx context.Context, sub *progress.EventSubscription) {
	events := sub.Events()
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("event subscription error", "error", err)
		case env, ok := <-events:
			if !ok {
				return
			}
			if r.origin != "" && env.Origin == r.origin {
				continue
			}

			eventType := Type(env.Type)
			payload, err := DecodePayload(eventType, env.Payload)
			if err != nil {
				r.logger.Warn("dropping undecodable event", "event", env.Type, "error", err)
				continue
			}

			r.logger.Debug("relaying event", "event", env.Type, "origin", env.Origin)
			r.bus.Deliver(eventType, payload)
		}
	}
}
