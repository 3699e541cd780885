// Package resolver expands the short ID prefixes users type into full IDs.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/cohort/pkg/progress"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Catalog lists the IDs prefixes are resolved against.
// *client.Client and *academy.Service satisfy it.
type Catalog interface {
	Batches(ctx context.Context) ([]*progress.Batch, error)
	Tasks(ctx context.Context, batchID string) ([]*progress.Task, error)
}

// ResolveBatchID resolves a batch ID prefix to a full batch ID.
// Full UUIDs are returned unchanged without a lookup.
func ResolveBatchID(ctx context.Context, catalog Catalog, shortID string) (string, error) {
	if isFullID(shortID) {
		return shortID, nil
	}
	if err := checkLength(shortID); err != nil {
		return "", err
	}

	batches, err := catalog.Batches(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list batches: %w", err)
	}
	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	return match("batch", shortID, ids)
}

// ResolveTaskID resolves a task ID prefix within a batch. batchID must be a full ID.
func ResolveTaskID(ctx context.Context, catalog Catalog, batchID, shortID string) (string, error) {
	if isFullID(shortID) {
		return shortID, nil
	}
	if err := checkLength(shortID); err != nil {
		return "", err
	}

	tasks, err := catalog.Tasks(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("failed to list tasks: %w", err)
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return match("task", shortID, ids)
}

func isFullID(id string) bool {
	return len(id) == 36 && strings.Count(id, "-") == 4
}

func checkLength(shortID string) error {
	if len(shortID) < MinShortIDLength {
		return fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}
	return nil
}

func match(kind, shortID string, ids []string) (string, error) {
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, shortID) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Kind: kind, ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Kind: kind, ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates nothing matched the short ID.
type NotFoundError struct {
	Kind    string
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found matching '%s'", e.Kind, e.ShortID)
}

// AmbiguousError indicates several IDs matched the short ID.
type AmbiguousError struct {
	Kind    string
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d %s IDs", e.ShortID, len(e.Matches), e.Kind)
}

// FormatAmbiguousError lists the matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' matches %d %s IDs:\n", err.ShortID, len(err.Matches), err.Kind)

	displayCount := min(len(err.Matches), 10)
	for _, id := range err.Matches[:displayCount] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix.")
	return b.String()
}
