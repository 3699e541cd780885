//go:build unix

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchTerminal reports job control and resize signals as focus events.
func watchTerminal(ctx context.Context, events chan<- focusEvent) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGCONT, syscall.SIGWINCH, syscall.SIGTSTP)

	go func() {
		defer signal.Stop(sigs)
		for {
			var ev focusEvent
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				ev = viewFocused
				switch sig {
				case syscall.SIGTSTP:
					ev = viewHidden
				case syscall.SIGCONT:
					// suspendSelf released SIGTSTP
					signal.Notify(sigs, syscall.SIGTSTP)
				}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// suspendSelf stops the process the way an uncaught SIGTSTP would.
func suspendSelf() {
	signal.Reset(syscall.SIGTSTP)
	_ = syscall.Kill(os.Getpid(), syscall.SIGTSTP)
}
