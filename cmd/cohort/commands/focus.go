package commands

import (
	"bufio"
	"context"
	"io"

	"github.com/charmbracelet/log"
)

type focusEvent int

const (
	// viewFocused means the terminal came back to the user: resumed, resized or
	// Enter pressed.
	viewFocused focusEvent = iota
	// viewHidden means the terminal is about to be suspended.
	viewHidden
)

// focusTarget is the part of *syncer.View the terminal drives.
type focusTarget interface {
	Focus(ctx context.Context) error
	SetVisible(ctx context.Context, visible bool) error
}

// followTerminal applies terminal events to view until ctx is done. suspend runs
// after the view has been hidden.
func followTerminal(ctx context.Context, view focusTarget, events <-chan focusEvent, suspend func(), logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev {
			case viewHidden:
				if err := view.SetVisible(ctx, false); err != nil {
					logger.Debug("hiding view failed", "error", err)
				}
				suspend()
			case viewFocused:
				// Refresh failures are already shown through the view's error handler
				if err := view.Focus(ctx); err != nil {
					logger.Debug("focus refresh failed", "error", err)
				}
			}
		}
	}
}

// readRefreshKeys turns every line read from r into a focus event until r is
// exhausted or ctx is done.
func readRefreshKeys(ctx context.Context, r io.Reader, events chan<- focusEvent) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case events <- viewFocused:
		case <-ctx.Done():
			return
		}
	}
}
