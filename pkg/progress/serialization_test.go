package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressHashRoundTrip(t *testing.T) {
	taskID := uuid.New().String()
	grade := 87.5
	submittedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	p := &UserBatchProgress{
		UserID:  "user-7",
		BatchID: uuid.New().String(),
		Tasks: map[string]*TaskProgressEntry{
			taskID: {
				TaskID:        taskID,
				Status:        TaskStatusGraded,
				SubmissionRef: uuid.New().String(),
				PointsEarned:  20,
				Grade:         &grade,
				Attempts:      1,
				SubmittedAt:   &submittedAt,
			},
		},
		Activity: []ActivityLogEntry{
			{Action: ActionTaskSubmitted, TaskRef: taskID, Description: "submitted", Timestamp: submittedAt,
				Metadata: map[string]any{"points": float64(20)}},
		},
		Metrics:      ProgressMetrics{TotalTasks: 1, CompletedTasks: 1, CompletionPercentage: 100, AverageGrade: 87.5},
		LastActiveAt: submittedAt,
		CreatedAt:    submittedAt.Add(-time.Hour),
		Version:      4,
	}

	hash, err := ProgressToHash(p)
	require.NoError(t, err)

	// Redis returns every field as a string
	stringHash := make(map[string]string, len(hash))
	for k, v := range hash {
		stringHash[k] = fmt.Sprint(v)
	}

	restored, err := HashToProgress(stringHash)
	require.NoError(t, err)

	assert.Equal(t, p.UserID, restored.UserID)
	assert.Equal(t, p.BatchID, restored.BatchID)
	assert.Equal(t, p.Version, restored.Version)
	assert.Equal(t, p.Metrics, restored.Metrics)
	assert.True(t, p.LastActiveAt.Equal(restored.LastActiveAt))
	assert.True(t, p.CreatedAt.Equal(restored.CreatedAt))
	require.Contains(t, restored.Tasks, taskID)
	assert.Equal(t, TaskStatusGraded, restored.Tasks[taskID].Status)
	assert.Equal(t, 87.5, *restored.Tasks[taskID].Grade)
	require.Len(t, restored.Activity, 1)
	assert.Equal(t, ActionTaskSubmitted, restored.Activity[0].Action)
	assert.Equal(t, float64(20), restored.Activity[0].Metadata["points"])
}

func TestHashToProgress_EmptyCollections(t *testing.T) {
	p, err := HashToProgress(map[string]string{"user_id": "u", "batch_id": "b", "version": "1"})
	require.NoError(t, err)
	assert.NotNil(t, p.Tasks)
	assert.NotNil(t, p.Activity)
	assert.True(t, p.LastActiveAt.IsZero())
}

func TestHashToProgress_InvalidFields(t *testing.T) {
	_, err := HashToProgress(map[string]string{"version": "abc"})
	assert.ErrorContains(t, err, "invalid version field")

	_, err = HashToProgress(map[string]string{"version": "1", "tasks": "{broken"})
	assert.ErrorContains(t, err, "failed to unmarshal tasks")
}

func TestSubmissionGradeEncoding(t *testing.T) {
	s := &Submission{ID: "s", UserID: "u", BatchID: "b", TaskID: "t"}
	hash := SubmissionToHash(s)
	assert.Equal(t, "", hash["grade"])

	restored, err := HashToSubmission(map[string]string{"id": "s", "grade": ""})
	require.NoError(t, err)
	assert.Nil(t, restored.Grade)

	restored, err = HashToSubmission(map[string]string{"id": "s", "grade": "92.25"})
	require.NoError(t, err)
	require.NotNil(t, restored.Grade)
	assert.Equal(t, 92.25, *restored.Grade)

	_, err = HashToSubmission(map[string]string{"grade": "A+"})
	assert.ErrorContains(t, err, "invalid grade field")
}

func TestHashToTask_InvalidPoints(t *testing.T) {
	_, err := HashToTask(map[string]string{"points": "ten"})
	assert.ErrorContains(t, err, "invalid points field")
}
