// Package filter narrows activity histories on the client side.
package filter

import (
	"fmt"
	"path"

	"github.com/dyluth/cohort/pkg/progress"
)

// Criteria defines filtering criteria for activity entries.
// All filters are ANDed together - an entry must match ALL criteria to pass.
type Criteria struct {
	ActionGlob string // Glob pattern for the action, e.g. "task_*", empty = no filter
	TaskRef    string // Exact match on task_ref, empty = no filter
}

// Validate rejects malformed glob patterns.
func (c *Criteria) Validate() error {
	if c.ActionGlob == "" {
		return nil
	}
	if _, err := path.Match(c.ActionGlob, ""); err != nil {
		return fmt.Errorf("invalid action pattern %q: %w", c.ActionGlob, err)
	}
	return nil
}

// Matches returns true if the entry matches all filter criteria.
func (c *Criteria) Matches(e progress.ActivityLogEntry) bool {
	if c.ActionGlob != "" {
		matched, err := path.Match(c.ActionGlob, string(e.Action))
		if err != nil || !matched {
			return false
		}
	}

	if c.TaskRef != "" && e.TaskRef != c.TaskRef {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.ActionGlob != "" || c.TaskRef != ""
}

// Apply returns the matching entries in their original order.
func (c *Criteria) Apply(entries []progress.ActivityLogEntry) []progress.ActivityLogEntry {
	if !c.HasFilters() {
		return entries
	}
	out := make([]progress.ActivityLogEntry, 0, len(entries))
	for _, e := range entries {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
