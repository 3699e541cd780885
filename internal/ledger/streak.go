package ledger

import (
	"time"

	"github.com/dyluth/cohort/pkg/progress"
)

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

func (d civilDate) previous(loc *time.Location) civilDate {
	return dateOf(time.Date(d.year, d.month, d.day, 12, 0, 0, 0, loc).AddDate(0, 0, -1))
}

// ComputeStreak returns the number of consecutive calendar days, ending today or
// yesterday, on which the learner submitted or completed a task.
//
// Days are taken in asOf's location. A streak is still alive when the last active
// day is yesterday; once a full day passes with no activity it drops to zero.
func ComputeStreak(activity []progress.ActivityLogEntry, asOf time.Time) int {
	loc := asOf.Location()

	days := make(map[civilDate]struct{})
	for _, entry := range activity {
		if entry.Action != progress.ActionTaskSubmitted && entry.Action != progress.ActionTaskCompleted {
			continue
		}
		days[dateOf(entry.Timestamp.In(loc))] = struct{}{}
	}

	today := dateOf(asOf)
	cursor := today
	if _, ok := days[today]; !ok {
		cursor = today.previous(loc)
		if _, ok := days[cursor]; !ok {
			return 0
		}
	}

	streak := 0
	for {
		if _, ok := days[cursor]; !ok {
			return streak
		}
		streak++
		cursor = cursor.previous(loc)
	}
}
