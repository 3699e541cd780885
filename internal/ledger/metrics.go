package ledger

import (
	"math"
	"sort"

	"github.com/dyluth/cohort/pkg/progress"
)

// ComputeMetrics derives ProgressMetrics from a task progress map.
//
// Entries are visited in task ID order so that the floating point grade sum, and
// therefore the result, is identical across calls on the same map.
func ComputeMetrics(tasks map[string]*progress.TaskProgressEntry) progress.ProgressMetrics {
	ids := make([]string, 0, len(tasks))
	for id, entry := range tasks {
		if entry != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	m := progress.ProgressMetrics{TotalTasks: len(ids)}
	var gradeSum float64

	for _, id := range ids {
		entry := tasks[id]

		if entry.Status != progress.TaskStatusNotStarted {
			m.SubmittedTasks++
		}
		if entry.Status.IsDone() {
			m.CompletedTasks++
		}
		if entry.Grade != nil {
			m.GradedTasks++
			gradeSum += *entry.Grade
		}
		m.TotalPointsEarned += entry.PointsEarned
	}

	if m.TotalTasks > 0 {
		m.CompletionPercentage = int(math.Round(float64(m.CompletedTasks) / float64(m.TotalTasks) * 100))
	}
	if m.GradedTasks > 0 {
		m.AverageGrade = gradeSum / float64(m.GradedTasks)
	}

	return m
}
