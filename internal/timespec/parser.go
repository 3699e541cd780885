// Package timespec parses the --since and --until flags of `cohort activity`.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses a time specification relative to now.
// Supports:
//   - Go durations, meaning that long ago: "1h", "30m", "1h30m"
//   - whole days, meaning that long ago: "7d"
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
//   - calendar dates, at midnight UTC: "2025-10-29"
func Parse(spec string, now time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, spec); err == nil {
		return t, nil
	}

	if days, ok := strings.CutSuffix(spec, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m' or '7d', or a time like '2025-10-29T13:00:00Z')", spec)
}

// ParseRange parses --since and --until. Empty flags yield zero times, meaning no bound.
// Returns an error if both are given and since is not before until.
func ParseRange(since, until string, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if since != "" {
		if from, err = Parse(since, now); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if to, err = Parse(until, now); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--since must be before --until")
	}

	return from, to, nil
}
