package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubmission(userID, taskID string) *Submission {
	return &Submission{
		ID:            uuid.New().String(),
		UserID:        userID,
		BatchID:       uuid.New().String(),
		TaskID:        taskID,
		Content:       "https://example.com/answer",
		SubmittedAtMs: 1700000000000,
	}
}

func TestCreateSubmission(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	taskID := uuid.New().String()

	first := newTestSubmission("user-1", taskID)
	require.NoError(t, client.CreateSubmission(ctx, first))

	t.Run("second submission for same user and task is rejected", func(t *testing.T) {
		err := client.CreateSubmission(ctx, newTestSubmission("user-1", taskID))
		assert.ErrorIs(t, err, ErrAlreadyExists)

		got, err := client.GetSubmissionByTask(ctx, "user-1", taskID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("other users may submit the same task", func(t *testing.T) {
		assert.NoError(t, client.CreateSubmission(ctx, newTestSubmission("user-2", taskID)))
	})

	t.Run("racing submissions produce exactly one winner", func(t *testing.T) {
		raceTask := uuid.New().String()
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := client.CreateSubmission(ctx, newTestSubmission("user-3", raceTask)); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}

func TestGradeAndDeleteSubmission(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	s := newTestSubmission("user-1", uuid.New().String())
	require.NoError(t, client.CreateSubmission(ctx, s))

	require.NoError(t, client.GradeSubmission(ctx, s.ID, 91, "great work", 1700000100000))

	got, err := client.GetSubmission(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Grade)
	assert.Equal(t, 91.0, *got.Grade)
	assert.Equal(t, "great work", got.Feedback)
	assert.Equal(t, int64(1700000100000), got.GradedAtMs)

	assert.ErrorContains(t, client.GradeSubmission(ctx, s.ID, 150, "", 0), "invalid grade")
	assert.True(t, IsNotFound(client.GradeSubmission(ctx, uuid.New().String(), 50, "", 0)))

	require.NoError(t, client.DeleteSubmission(ctx, s))
	_, err = client.GetSubmission(ctx, s.ID)
	assert.True(t, IsNotFound(err))

	// The index is released, so the learner may submit again
	assert.NoError(t, client.CreateSubmission(ctx, newTestSubmission("user-1", s.TaskID)))
}
