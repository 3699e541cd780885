package progress

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to enable
// multiple cohort instances to safely coexist on a single Redis server.
//
// Key pattern: cohort:{instance_name}:{entity}:{id}

// ProgressKey returns the Redis key for a learner's progress aggregate in a batch.
// Pattern: cohort:{instance_name}:progress:{user_id}:{batch_id}
func ProgressKey(instanceName, userID, batchID string) string {
	return fmt.Sprintf("cohort:%s:progress:%s:%s", instanceName, userID, batchID)
}

// BatchProgressIndexKey returns the Redis key for the set of users with progress in a batch.
// Pattern: cohort:{instance_name}:batch:{batch_id}:progress
func BatchProgressIndexKey(instanceName, batchID string) string {
	return fmt.Sprintf("cohort:%s:batch:%s:progress", instanceName, batchID)
}

// UserBatchesKey returns the Redis key for the set of batches a user has progress in.
// Pattern: cohort:{instance_name}:user:{user_id}:batches
func UserBatchesKey(instanceName, userID string) string {
	return fmt.Sprintf("cohort:%s:user:%s:batches", instanceName, userID)
}

// UserXPKey returns the Redis key for a user's experience points counter.
// Pattern: cohort:{instance_name}:user:{user_id}:xp
func UserXPKey(instanceName, userID string) string {
	return fmt.Sprintf("cohort:%s:user:%s:xp", instanceName, userID)
}

// TaskKey returns the Redis key for a task.
// Pattern: cohort:{instance_name}:task:{task_id}
func TaskKey(instanceName, taskID string) string {
	return fmt.Sprintf("cohort:%s:task:%s", instanceName, taskID)
}

// BatchTasksKey returns the Redis key for the ZSET of a batch's tasks (score = creation time).
// Pattern: cohort:{instance_name}:batch:{batch_id}:tasks
func BatchTasksKey(instanceName, batchID string) string {
	return fmt.Sprintf("cohort:%s:batch:%s:tasks", instanceName, batchID)
}

// BatchKey returns the Redis key for a batch.
// Pattern: cohort:{instance_name}:batch:{batch_id}
func BatchKey(instanceName, batchID string) string {
	return fmt.Sprintf("cohort:%s:batch:%s", instanceName, batchID)
}

// BatchesKey returns the Redis key for the ZSET of all batches (score = creation time).
// Pattern: cohort:{instance_name}:batches
func BatchesKey(instanceName string) string {
	return fmt.Sprintf("cohort:%s:batches", instanceName)
}

// BatchMembersKey returns the Redis key for the set of users enrolled in a batch.
// Pattern: cohort:{instance_name}:batch:{batch_id}:members
func BatchMembersKey(instanceName, batchID string) string {
	return fmt.Sprintf("cohort:%s:batch:%s:members", instanceName, batchID)
}

// SubmissionKey returns the Redis key for a submission.
// Pattern: cohort:{instance_name}:submission:{submission_id}
func SubmissionKey(instanceName, submissionID string) string {
	return fmt.Sprintf("cohort:%s:submission:%s", instanceName, submissionID)
}

// SubmissionByTaskKey returns the Redis key for the (user, task) -> submission index.
// This is the idempotency boundary for submissions: SETNX on this key decides which
// of two competing submissions wins.
// Pattern: cohort:{instance_name}:submission_by_task:{user_id}:{task_id}
func SubmissionByTaskKey(instanceName, userID, taskID string) string {
	return fmt.Sprintf("cohort:%s:submission_by_task:%s:%s", instanceName, userID, taskID)
}

// EventsChannel returns the Pub/Sub channel name for domain events.
// Pattern: cohort:{instance_name}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("cohort:%s:events", instanceName)
}
