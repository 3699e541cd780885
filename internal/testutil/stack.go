// Package testutil builds the cohort server stack over miniredis for tests.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/eventbus"
	"github.com/dyluth/cohort/internal/ledger"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// InstanceName is the instance every test store is scoped to.
const InstanceName = "test-instance"

// Stack is a fully wired server-side stack. Everything is closed by t.Cleanup.
type Stack struct {
	Redis   *miniredis.Miniredis
	Store   *progress.Client
	Bus     *eventbus.Bus
	Service *academy.Service
	Logger  *log.Logger
}

// NewStore starts miniredis and connects a progress store to it.
func NewStore(t *testing.T) (*progress.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := progress.NewClient(&redis.Options{Addr: mr.Addr()}, InstanceName)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

// NewStack wires store, bus, ledger and academy with logging discarded.
// now fixes the clock; nil uses the wall clock.
func NewStack(t *testing.T, now func() time.Time) *Stack {
	t.Helper()

	store, mr := NewStore(t)
	logger := log.New(io.Discard)

	bus := eventbus.New(eventbus.WithLogger(logger))
	t.Cleanup(bus.Close)

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	academyOpts := []academy.Option{academy.WithLogger(logger)}
	if now != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithClock(now))
		academyOpts = append(academyOpts, academy.WithClock(now))
	}

	svc := academy.New(store, ledger.New(store, ledgerOpts...), bus, academyOpts...)

	return &Stack{Redis: mr, Store: store, Bus: bus, Service: svc, Logger: logger}
}
