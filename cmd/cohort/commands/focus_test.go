package commands

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

type recordingView struct {
	mu       sync.Mutex
	calls    []string
	focusErr error
}

func (v *recordingView) Focus(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "focus")
	return v.focusErr
}

func (v *recordingView) SetVisible(_ context.Context, visible bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if visible {
		v.calls = append(v.calls, "show")
	} else {
		v.calls = append(v.calls, "hide")
	}
	return nil
}

func (v *recordingView) recorded() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

func TestFollowTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := &recordingView{focusErr: errors.New("api down")}
	events := make(chan focusEvent)
	suspended := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		followTerminal(ctx, view, events, func() { suspended++ }, log.New(io.Discard))
	}()

	events <- viewFocused
	events <- viewHidden
	events <- viewFocused
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("followTerminal did not stop with its context")
	}

	assert.Equal(t, []string{"focus", "hide", "focus"}, view.recorded())
	assert.Equal(t, 1, suspended)
}

func TestReadRefreshKeys(t *testing.T) {
	events := make(chan focusEvent, 4)
	readRefreshKeys(context.Background(), strings.NewReader("\n\nr\n"), events)

	assert.Len(t, events, 3)
	assert.Equal(t, viewFocused, <-events)

	t.Run("stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		readRefreshKeys(ctx, strings.NewReader("\n\n"), make(chan focusEvent))
	})
}
