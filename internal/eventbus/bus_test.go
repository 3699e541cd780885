package eventbus

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)
	b := New(WithLogger(logger))
	t.Cleanup(b.Close)
	return b, &buf
}

func TestEmitOrdering(t *testing.T) {
	b, _ := newTestBus(t)

	var got []string
	b.SubscribeToAll(func(eventType Type, payload any) { got = append(got, "wildcard-1") })
	b.Subscribe(TaskCompleted, func(payload any) { got = append(got, "specific-1") })
	b.Subscribe(TaskCompleted, func(payload any) { got = append(got, "specific-2") })
	b.SubscribeToAll(func(eventType Type, payload any) { got = append(got, "wildcard-2") })
	b.Subscribe(TaskCreated, func(payload any) { got = append(got, "other") })

	b.Emit(TaskCompleted, TaskCompletedPayload{TaskID: "t1"})

	assert.Equal(t, []string{"specific-1", "specific-2", "wildcard-1", "wildcard-2"}, got)
}

func TestEmitPassesPayload(t *testing.T) {
	b, _ := newTestBus(t)

	var received TaskCompletedPayload
	var wildcardType Type
	b.Subscribe(TaskCompleted, func(payload any) { received = payload.(TaskCompletedPayload) })
	b.SubscribeToAll(func(eventType Type, payload any) { wildcardType = eventType })

	want := TaskCompletedPayload{TaskID: "t1", PointsEarned: 10, NewTotalXP: 110, CurrentStreak: 3}
	b.Emit(TaskCompleted, want)

	assert.Equal(t, want, received)
	assert.Equal(t, TaskCompleted, wildcardType)
}

func TestUnsubscribeRemovesExactlyOneRegistration(t *testing.T) {
	b, _ := newTestBus(t)

	var calls []int
	handler := func(n int) Handler { return func(any) { calls = append(calls, n) } }

	b.Subscribe(TaskCreated, handler(1))
	unsub := b.Subscribe(TaskCreated, handler(2))
	b.Subscribe(TaskCreated, handler(3))

	unsub()
	unsub()
	b.Emit(TaskCreated, nil)

	assert.Equal(t, []int{1, 3}, calls)
	assert.Equal(t, 2, b.SubscriberCount(TaskCreated))
}

func TestUnsubscribeWildcard(t *testing.T) {
	b, _ := newTestBus(t)

	calls := 0
	unsub := b.SubscribeToAll(func(Type, any) { calls++ })
	b.Emit(BatchCreated, nil)
	unsub()
	b.Emit(BatchCreated, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.SubscriberCount(BatchCreated))
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b, logs := newTestBus(t)

	var after, wildcard bool
	b.Subscribe(TaskCompleted, func(any) { panic("boom") })
	b.Subscribe(TaskCompleted, func(any) { after = true })
	b.SubscribeToAll(func(Type, any) { wildcard = true })

	assert.NotPanics(t, func() { b.Emit(TaskCompleted, nil) })
	assert.True(t, after)
	assert.True(t, wildcard)
	assert.Contains(t, logs.String(), "event handler panicked")
	assert.Contains(t, logs.String(), "boom")
}

func TestEmitWithoutSubscribersIsDiscarded(t *testing.T) {
	b, _ := newTestBus(t)
	assert.NotPanics(t, func() { b.Emit(ProgressUpdated, ProgressUpdatePayload{Type: UpdateTaskGraded}) })

	// Subscribing later does not replay
	calls := 0
	b.Subscribe(ProgressUpdated, func(any) { calls++ })
	assert.Equal(t, 0, calls)
}

func TestHandlerMaySubscribeDuringEmit(t *testing.T) {
	b, _ := newTestBus(t)

	late := 0
	b.Subscribe(TaskCreated, func(any) {
		b.Subscribe(TaskCreated, func(any) { late++ })
	})

	b.Emit(TaskCreated, nil)
	assert.Equal(t, 0, late, "registrations made during delivery apply to later events")

	b.Emit(TaskCreated, nil)
	assert.Equal(t, 1, late)
}

func TestCloseDropsRegistrations(t *testing.T) {
	b, _ := newTestBus(t)
	bridge := &recordingBridge{}

	calls := 0
	b.Subscribe(TaskCreated, func(any) { calls++ })
	b.SubscribeToAll(func(Type, any) { calls++ })
	b.AddBridge(bridge)

	b.Close()
	b.Emit(TaskCreated, nil)

	assert.Equal(t, 0, calls)
	assert.Empty(t, bridge.events())
}

func TestConcurrentEmitAndSubscribe(t *testing.T) {
	b, _ := newTestBus(t)

	var mu sync.Mutex
	count := 0
	b.Subscribe(TaskCompleted, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Emit(TaskCompleted, nil)
		}()
		go func() {
			defer wg.Done()
			unsub := b.Subscribe(TaskCreated, func(any) {})
			unsub()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}

type recordingBridge struct {
	mu    sync.Mutex
	types []Type
	err   error
}

func (r *recordingBridge) Forward(ctx context.Context, eventType Type, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return r.err
}

func (r *recordingBridge) events() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Type(nil), r.types...)
}

func TestBridge(t *testing.T) {
	t.Run("receives every emitted event after local delivery", func(t *testing.T) {
		b, _ := newTestBus(t)
		bridge := &recordingBridge{}
		b.AddBridge(bridge)

		var localSeen bool
		b.Subscribe(TaskCreated, func(any) {
			localSeen = true
			assert.Empty(t, bridge.events(), "bridge runs after local subscribers")
		})

		b.Emit(TaskCreated, TaskCreatedPayload{TaskID: "t"})
		b.Emit(BatchCreated, BatchCreatedPayload{BatchID: "b"})

		assert.True(t, localSeen)
		assert.Equal(t, []Type{TaskCreated, BatchCreated}, bridge.events())
	})

	t.Run("bridge errors are logged only", func(t *testing.T) {
		b, logs := newTestBus(t)
		b.AddBridge(&recordingBridge{err: errors.New("redis down")})

		assert.NotPanics(t, func() { b.Emit(TaskCreated, nil) })
		assert.Contains(t, logs.String(), "bridge forward failed")
	})

	t.Run("deliver skips bridges", func(t *testing.T) {
		b, _ := newTestBus(t)
		bridge := &recordingBridge{}
		b.AddBridge(bridge)

		calls := 0
		b.Subscribe(TaskCreated, func(any) { calls++ })
		b.Deliver(TaskCreated, nil)

		assert.Equal(t, 1, calls)
		require.Empty(t, bridge.events())
	})
}
