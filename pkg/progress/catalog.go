package progress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CreateTask writes a task to Redis and indexes it under its batch.
// Validates the task before writing.
func (c *Client) CreateTask(ctx context.Context, t *Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, TaskKey(c.instanceName, t.ID), TaskToHash(t))
		pipe.ZAdd(ctx, BatchTasksKey(c.instanceName, t.BatchID), redis.Z{
			Score:  float64(t.CreatedAtMs),
			Member: t.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write task to Redis: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
// Returns (nil, redis.Nil) if the task doesn't exist.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	hashData, err := c.rdb.HGetAll(ctx, TaskKey(c.instanceName, taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	task, err := HashToTask(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}

	return task, nil
}

// ListTasks returns the tasks of a batch in creation order.
// Returns an empty slice if the batch has no tasks (not an error).
func (c *Client) ListTasks(ctx context.Context, batchID string) ([]*Task, error) {
	taskIDs, err := c.rdb.ZRange(ctx, BatchTasksKey(c.instanceName, batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	if len(taskIDs) == 0 {
		return tasks, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(taskIDs))
	for i, taskID := range taskIDs {
		cmds[i] = pipe.HGetAll(ctx, TaskKey(c.instanceName, taskID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read tasks from Redis: %w", err)
	}

	for i, cmd := range cmds {
		hashData := cmd.Val()
		if len(hashData) == 0 {
			continue
		}
		task, err := HashToTask(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize task %s: %w", taskIDs[i], err)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// TaskIDs returns the IDs of a batch's tasks in creation order.
func (c *Client) TaskIDs(ctx context.Context, batchID string) ([]string, error) {
	taskIDs, err := c.rdb.ZRange(ctx, BatchTasksKey(c.instanceName, batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch tasks: %w", err)
	}
	return taskIDs, nil
}

// CreateBatch writes a batch to Redis and adds it to the batch index.
// Validates the batch before writing.
func (c *Client) CreateBatch(ctx context.Context, b *Batch) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, BatchKey(c.instanceName, b.ID), BatchToHash(b))
		pipe.ZAdd(ctx, BatchesKey(c.instanceName), redis.Z{
			Score:  float64(b.CreatedAtMs),
			Member: b.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write batch to Redis: %w", err)
	}

	return nil
}

// GetBatch retrieves a batch by ID.
// Returns (nil, redis.Nil) if the batch doesn't exist.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	hashData, err := c.rdb.HGetAll(ctx, BatchKey(c.instanceName, batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	return HashToBatch(hashData), nil
}

// ListBatches returns all batches in creation order.
func (c *Client) ListBatches(ctx context.Context) ([]*Batch, error) {
	batchIDs, err := c.rdb.ZRange(ctx, BatchesKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch index: %w", err)
	}

	batches := make([]*Batch, 0, len(batchIDs))
	if len(batchIDs) == 0 {
		return batches, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(batchIDs))
	for i, batchID := range batchIDs {
		cmds[i] = pipe.HGetAll(ctx, BatchKey(c.instanceName, batchID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read batches from Redis: %w", err)
	}

	for _, cmd := range cmds {
		if hashData := cmd.Val(); len(hashData) > 0 {
			batches = append(batches, HashToBatch(hashData))
		}
	}

	return batches, nil
}

// AddBatchMembers enrolls users in a batch's member set.
// Returns the users that were not members before the call, in argument order.
func (c *Client) AddBatchMembers(ctx context.Context, batchID string, userIDs ...string) ([]string, error) {
	key := BatchMembersKey(c.instanceName, batchID)

	pipe := c.rdb.TxPipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.SAdd(ctx, key, userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to add batch members: %w", err)
	}

	added := make([]string, 0, len(userIDs))
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			added = append(added, userIDs[i])
		}
	}
	return added, nil
}

// BatchMembers returns the users enrolled in a batch.
func (c *Client) BatchMembers(ctx context.Context, batchID string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, BatchMembersKey(c.instanceName, batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch members: %w", err)
	}
	return members, nil
}
