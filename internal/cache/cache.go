// Package cache is a keyed in-memory cache whose subscribers are told when a key is
// set or invalidated. Views subscribe to the keys they render; writers invalidate the
// keys their writes affect.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Canonical cache keys.
const (
	KeyDashboard     = "dashboard"
	KeyTasks         = "tasks"
	KeyBatches       = "batches"
	KeyBatchProgress = "batch-progress"
	KeyUserProgress  = "user-progress"
)

// Listener receives the new value of a key, or nil when the key was invalidated.
type Listener func(value any)

// FetchFunc loads the value of a key from its source.
type FetchFunc func(ctx context.Context) (any, error)

type listenerReg struct {
	id       uint64
	listener Listener
}

type notification struct {
	key   string
	value any
}

// Manager is safe for concurrent use.
//
// Notifications are queued in mutation order and drained by whichever caller finds
// the queue idle, so a listener that sets or invalidates a key from inside a
// notification does not reorder what other listeners observe.
type Manager struct {
	mu          sync.Mutex
	entries     map[string]any
	generations map[string]uint64
	listeners   map[string][]listenerReg
	nextID      uint64
	queue       []notification
	dispatching bool
	closed      bool

	group  singleflight.Group
	logger *log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for listener panics.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New creates an empty cache.
func New(opts ...Option) *Manager {
	m := &Manager{
		entries:     make(map[string]any),
		generations: make(map[string]uint64),
		listeners:   make(map[string][]listenerReg),
		logger:      log.Default().WithPrefix("cache"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetCached returns the stored value for key.
func (m *Manager) GetCached(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

// SetCached stores value under key and notifies the key's listeners with it.
// A nil value is treated as Invalidate.
func (m *Manager) SetCached(key string, value any) {
	if value == nil {
		m.Invalidate(key)
		return
	}
	m.mutate(key, value, func() bool {
		m.generations[key]++
		m.entries[key] = value
		return true
	})
}

// Invalidate removes key and notifies its listeners with nil. A Refresh already in
// flight for key neither stores its result nor is shared with later refreshes.
func (m *Manager) Invalidate(key string) {
	m.mutate(key, nil, func() bool {
		m.generations[key]++
		delete(m.entries, key)
		// Listeners notified below may refresh straight away
		m.group.Forget(key)
		return true
	})
}

// Subscribe registers listener for key and returns a function that removes exactly
// this registration. A listener removed before a queued notification is dispatched
// does not receive it.
func (m *Manager) Subscribe(key string, listener Listener) func() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	m.nextID++
	id := m.nextID
	m.listeners[key] = append(m.listeners[key], listenerReg{id: id, listener: listener})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			regs := m.listeners[key]
			for i, r := range regs {
				if r.id == id {
					m.listeners[key] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
			if len(m.listeners[key]) == 0 {
				delete(m.listeners, key)
			}
		})
	}
}

// Refresh fetches key, stores the result and notifies listeners. Concurrent
// refreshes of the same key share one fetch. A failed fetch leaves the stored value
// untouched and returns the error to every waiting caller.
//
// If key is set or invalidated while the fetch runs, the result is returned to the
// callers that shared the fetch but is not stored.
func (m *Manager) Refresh(ctx context.Context, key string, fetch FetchFunc) (any, error) {
	v, err, _ := m.group.Do(key, func() (any, error) {
		gen := m.generation(key)
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, fmt.Errorf("fetch for %q returned no data", key)
		}
		m.mutate(key, value, func() bool {
			if m.generations[key] != gen {
				m.logger.Debug("discarding refresh superseded by a newer write", "key", key)
				return false
			}
			m.generations[key]++
			m.entries[key] = value
			return true
		})
		return value, nil
	})
	return v, err
}

func (m *Manager) generation(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[key]
}

// ListenerCount returns the number of listeners on key.
func (m *Manager) ListenerCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[key])
}

// Close drops every entry, listener and queued notification. Later sets are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]any)
	m.generations = make(map[string]uint64)
	m.listeners = make(map[string][]listenerReg)
	m.queue = nil
}

// mutate runs apply under the lock and queues a notification when it reports a change.
func (m *Manager) mutate(key string, value any, apply func() bool) {
	m.mu.Lock()
	if m.closed || !apply() {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, notification{key: key, value: value})
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	m.mu.Unlock()

	m.drain()
}

func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.dispatching = false
			m.mu.Unlock()
			return
		}
		n := m.queue[0]
		m.queue = m.queue[1:]
		regs := append([]listenerReg(nil), m.listeners[n.key]...)
		m.mu.Unlock()

		for _, r := range regs {
			m.notify(n.key, r.listener, n.value)
		}
	}
}

func (m *Manager) notify(key string, listener Listener, value any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("cache listener panicked", "key", key, "panic", fmt.Sprint(r))
		}
	}()
	listener(value)
}
