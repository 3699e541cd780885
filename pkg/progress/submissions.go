package progress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CreateSubmission stores a submission if the user has not submitted the task before.
//
// The (user, task) index is claimed with SETNX before the submission document is written,
// so of two racing submissions exactly one wins. The loser gets ErrAlreadyExists.
func (c *Client) CreateSubmission(ctx context.Context, s *Submission) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	indexKey := SubmissionByTaskKey(c.instanceName, s.UserID, s.TaskID)
	claimed, err := c.rdb.SetNX(ctx, indexKey, s.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim submission index: %w", err)
	}
	if !claimed {
		return ErrAlreadyExists
	}

	if err := c.rdb.HSet(ctx, SubmissionKey(c.instanceName, s.ID), SubmissionToHash(s)).Err(); err != nil {
		// Release the index so the learner can retry
		c.rdb.Del(ctx, indexKey)
		return fmt.Errorf("failed to write submission to Redis: %w", err)
	}

	return nil
}

// DeleteSubmission removes a submission and its (user, task) index entry.
// Used to roll back a submission whose progress update failed.
func (c *Client) DeleteSubmission(ctx context.Context, s *Submission) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, SubmissionKey(c.instanceName, s.ID))
		pipe.Del(ctx, SubmissionByTaskKey(c.instanceName, s.UserID, s.TaskID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by ID.
// Returns (nil, redis.Nil) if the submission doesn't exist.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	hashData, err := c.rdb.HGetAll(ctx, SubmissionKey(c.instanceName, submissionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read submission from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	submission, err := HashToSubmission(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize submission: %w", err)
	}

	return submission, nil
}

// GetSubmissionByTask retrieves a user's submission for a task via the index.
// Returns (nil, redis.Nil) if the user has not submitted the task.
func (c *Client) GetSubmissionByTask(ctx context.Context, userID, taskID string) (*Submission, error) {
	submissionID, err := c.rdb.Get(ctx, SubmissionByTaskKey(c.instanceName, userID, taskID)).Result()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read submission index: %w", err)
	}

	return c.GetSubmission(ctx, submissionID)
}

// GradeSubmission records a grade on an existing submission.
// Returns redis.Nil if the submission doesn't exist.
func (c *Client) GradeSubmission(ctx context.Context, submissionID string, grade float64, feedback string, gradedAtMs int64) error {
	if err := ValidateGrade(grade); err != nil {
		return err
	}

	key := SubmissionKey(c.instanceName, submissionID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check submission existence: %w", err)
	}
	if exists == 0 {
		return redis.Nil
	}

	err = c.rdb.HSet(ctx, key,
		"grade", formatGrade(&grade),
		"feedback", feedback,
		"graded_at_ms", gradedAtMs,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write grade to Redis: %w", err)
	}

	return nil
}
