//go:build !unix

package commands

import "context"

// watchTerminal has no job control signals to follow here; Enter still refreshes.
func watchTerminal(ctx context.Context, events chan<- focusEvent) {}

func suspendSelf() {}
