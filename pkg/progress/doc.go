// Package progress provides type-safe Go definitions and Redis schema patterns
// for cohort learning progress.
//
// # Overview
//
// Every learner enrolled in a batch owns exactly one UserBatchProgress aggregate.
// The aggregate holds one TaskProgressEntry per task of the batch, an append-only
// activity log and a ProgressMetrics snapshot derived from the entries. Tasks,
// batches and submissions are simple documents stored next to it.
//
// # Concurrency
//
// The aggregate is the only document with several writers (two browser tabs
// submitting different tasks at once, a mentor grading while the learner submits).
// UpdateProgress runs the caller's mutation inside a WATCH/MULTI/EXEC transaction
// keyed on the aggregate and retries when another writer got there first, so no
// writer ever overwrites a document it did not read.
//
// # Usage Example
//
//	client, err := progress.NewClient(&redis.Options{Addr: "localhost:6379"}, "default-1")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	p, err := client.UpdateProgress(ctx, "user-42", batchID, func(p *progress.UserBatchProgress) error {
//		p.Tasks[taskID].Status = progress.TaskStatusSubmitted
//		return nil
//	})
//
// # Redis Schema
//
// All Redis keys follow the pattern: cohort:{instance_name}:{entity}:{id}
//
// Progress: cohort:{instance_name}:progress:{user_id}:{batch_id}
// Batch progress index: cohort:{instance_name}:batch:{batch_id}:progress
// User batches index: cohort:{instance_name}:user:{user_id}:batches
// User XP: cohort:{instance_name}:user:{user_id}:xp
// Tasks: cohort:{instance_name}:task:{task_id}
// Batch tasks: cohort:{instance_name}:batch:{batch_id}:tasks
// Batches: cohort:{instance_name}:batch:{batch_id}
// Batch members: cohort:{instance_name}:batch:{batch_id}:members
// Submissions: cohort:{instance_name}:submission:{submission_id}
// Submission index: cohort:{instance_name}:submission_by_task:{user_id}:{task_id}
//
// Pub/Sub channel: cohort:{instance_name}:events
package progress
