// Package eventbus is an in-process publish/subscribe bus for domain events.
//
// Delivery is synchronous and best effort: Emit calls every matching subscriber
// before returning, events with no subscribers are discarded, and nothing is queued
// or replayed. A Bridge can be attached to forward events to another transport.
package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Handler receives the payload of one event type.
type Handler func(payload any)

// WildcardHandler receives every event.
type WildcardHandler func(eventType Type, payload any)

// Bridge is a secondary transport that receives a copy of every emitted event.
type Bridge interface {
	Forward(ctx context.Context, eventType Type, payload any) error
}

// DefaultBridgeTimeout bounds each Bridge.Forward call made from Emit.
const DefaultBridgeTimeout = 2 * time.Second

type registration struct {
	id      uint64
	handler Handler
}

type wildcardRegistration struct {
	id      uint64
	handler WildcardHandler
}

// Bus is safe for concurrent use. Construct with New; there is no package-level bus.
type Bus struct {
	mu            sync.RWMutex
	nextID        uint64
	handlers      map[Type][]registration
	wildcard      []wildcardRegistration
	bridges       []Bridge
	bridgeTimeout time.Duration
	logger        *log.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for handler panics and bridge failures.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithBridgeTimeout overrides DefaultBridgeTimeout.
func WithBridgeTimeout(d time.Duration) Option {
	return func(b *Bus) { b.bridgeTimeout = d }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers:      make(map[Type][]registration),
		bridgeTimeout: DefaultBridgeTimeout,
		logger:        log.Default().WithPrefix("eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for eventType and returns a function that removes
// exactly this registration. Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(eventType Type, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			regs := b.handlers[eventType]
			for i, r := range regs {
				if r.id == id {
					b.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
			if len(b.handlers[eventType]) == 0 {
				delete(b.handlers, eventType)
			}
		})
	}
}

// SubscribeToAll registers handler for every event type.
func (b *Bus) SubscribeToAll(handler WildcardHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, wildcardRegistration{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, r := range b.wildcard {
				if r.id == id {
					b.wildcard = append(b.wildcard[:i:i], b.wildcard[i+1:]...)
					break
				}
			}
		})
	}
}

// AddBridge attaches a secondary transport. Bridges see every event passed to Emit
// after local delivery; their errors are logged and never reach the emitter.
func (b *Bus) AddBridge(bridge Bridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridges = append(b.bridges, bridge)
}

// Emit delivers payload to the subscribers of eventType, then to wildcard
// subscribers, in registration order, and finally forwards it to any bridges.
func (b *Bus) Emit(eventType Type, payload any) {
	b.Deliver(eventType, payload)

	b.mu.RLock()
	bridges := append([]Bridge(nil), b.bridges...)
	b.mu.RUnlock()

	for _, bridge := range bridges {
		ctx, cancel := context.WithTimeout(context.Background(), b.bridgeTimeout)
		if err := bridge.Forward(ctx, eventType, payload); err != nil {
			b.logger.Warn("bridge forward failed", "event", eventType, "error", err)
		}
		cancel()
	}
}

// Deliver is Emit without the bridges. Relays use it so that events arriving from
// another transport are not sent back out.
func (b *Bus) Deliver(eventType Type, payload any) {
	b.mu.RLock()
	specific := append([]registration(nil), b.handlers[eventType]...)
	wildcard := append([]wildcardRegistration(nil), b.wildcard...)
	b.mu.RUnlock()

	if len(specific) == 0 && len(wildcard) == 0 {
		b.logger.Debug("event discarded, no subscribers", "event", eventType)
		return
	}

	for _, r := range specific {
		b.invoke(eventType, func() { r.handler(payload) })
	}
	for _, r := range wildcard {
		b.invoke(eventType, func() { r.handler(eventType, payload) })
	}
}

// SubscriberCount returns the number of handlers that would receive eventType.
func (b *Bus) SubscriberCount(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) + len(b.wildcard)
}

// Close drops every registration and bridge. The bus stays usable afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Type][]registration)
	b.wildcard = nil
	b.bridges = nil
}

func (b *Bus) invoke(eventType Type, call func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", eventType,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	call()
}
