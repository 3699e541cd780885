package progress

import (
	"strings"
	"testing"
)

func TestKeyPatterns(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"progress", ProgressKey("default-1", "u1", "b1"), "cohort:default-1:progress:u1:b1"},
		{"batch progress index", BatchProgressIndexKey("default-1", "b1"), "cohort:default-1:batch:b1:progress"},
		{"user batches", UserBatchesKey("default-1", "u1"), "cohort:default-1:user:u1:batches"},
		{"user xp", UserXPKey("default-1", "u1"), "cohort:default-1:user:u1:xp"},
		{"task", TaskKey("default-1", "t1"), "cohort:default-1:task:t1"},
		{"batch tasks", BatchTasksKey("default-1", "b1"), "cohort:default-1:batch:b1:tasks"},
		{"batch", BatchKey("default-1", "b1"), "cohort:default-1:batch:b1"},
		{"batches", BatchesKey("default-1"), "cohort:default-1:batches"},
		{"batch members", BatchMembersKey("default-1", "b1"), "cohort:default-1:batch:b1:members"},
		{"submission", SubmissionKey("default-1", "s1"), "cohort:default-1:submission:s1"},
		{"submission index", SubmissionByTaskKey("default-1", "u1", "t1"), "cohort:default-1:submission_by_task:u1:t1"},
		{"events channel", EventsChannel("default-1"), "cohort:default-1:events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, expected %q", tt.got, tt.expected)
			}
		})
	}
}

// TestInstanceIsolation verifies that different instances never share keys
func TestInstanceIsolation(t *testing.T) {
	a := ProgressKey("alpha", "u1", "b1")
	b := ProgressKey("beta", "u1", "b1")

	if a == b {
		t.Fatal("progress keys for different instances must differ")
	}
	if !strings.Contains(a, ":alpha:") || !strings.Contains(b, ":beta:") {
		t.Error("progress keys should embed the instance name")
	}
	if EventsChannel("alpha") == EventsChannel("beta") {
		t.Error("event channels for different instances must differ")
	}
}
