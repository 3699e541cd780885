package filter

import (
	"testing"

	"github.com/dyluth/cohort/pkg/progress"
	"github.com/stretchr/testify/assert"
)

func TestCriteriaMatches(t *testing.T) {
	submitted := progress.ActivityLogEntry{Action: progress.ActionTaskSubmitted, TaskRef: "task-1"}
	milestone := progress.ActivityLogEntry{Action: progress.ActionMilestoneReached}

	tests := []struct {
		name     string
		criteria Criteria
		entry    progress.ActivityLogEntry
		want     bool
	}{
		{name: "no filters", criteria: Criteria{}, entry: milestone, want: true},
		{name: "glob match", criteria: Criteria{ActionGlob: "task_*"}, entry: submitted, want: true},
		{name: "glob miss", criteria: Criteria{ActionGlob: "task_*"}, entry: milestone, want: false},
		{name: "exact action", criteria: Criteria{ActionGlob: "task_submitted"}, entry: submitted, want: true},
		{name: "task match", criteria: Criteria{TaskRef: "task-1"}, entry: submitted, want: true},
		{name: "task miss", criteria: Criteria{TaskRef: "task-2"}, entry: submitted, want: false},
		{name: "entry without task", criteria: Criteria{TaskRef: "task-1"}, entry: milestone, want: false},
		{name: "both must match", criteria: Criteria{ActionGlob: "task_graded", TaskRef: "task-1"}, entry: submitted, want: false},
		{name: "bad pattern never matches", criteria: Criteria{ActionGlob: "task_["}, entry: submitted, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(tt.entry))
		})
	}
}

func TestCriteriaValidate(t *testing.T) {
	assert.NoError(t, (&Criteria{}).Validate())
	assert.NoError(t, (&Criteria{ActionGlob: "task_*"}).Validate())
	assert.ErrorContains(t, (&Criteria{ActionGlob: "task_["}).Validate(), "invalid action pattern")
}

func TestCriteriaApply(t *testing.T) {
	entries := []progress.ActivityLogEntry{
		{Action: progress.ActionTaskStarted, TaskRef: "a"},
		{Action: progress.ActionSkillAcquired},
		{Action: progress.ActionTaskSubmitted, TaskRef: "a"},
		{Action: progress.ActionTaskSubmitted, TaskRef: "b"},
	}

	c := Criteria{}
	assert.Equal(t, entries, c.Apply(entries))

	c = Criteria{ActionGlob: "task_*", TaskRef: "a"}
	assert.Equal(t, []progress.ActivityLogEntry{entries[0], entries[2]}, c.Apply(entries))
}
