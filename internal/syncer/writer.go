package syncer

import (
	"context"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/cache"
	"github.com/dyluth/cohort/internal/eventbus"
	"github.com/dyluth/cohort/pkg/progress"
)

// Backend performs the write operations, usually over the network.
type Backend interface {
	SubmitTask(ctx context.Context, req academy.SubmitRequest) (*academy.SubmitResult, error)
	GradeSubmission(ctx context.Context, submissionID string, req academy.GradeRequest) (*academy.GradeResult, error)
	CreateTask(ctx context.Context, req academy.CreateTaskRequest) (*progress.Task, error)
	CreateBatch(ctx context.Context, req academy.CreateBatchRequest) (*academy.BatchResult, error)
	EnrollUsers(ctx context.Context, batchID string, req academy.EnrollRequest) (*academy.BatchResult, error)
}

// Cache keys each write makes stale.
var (
	submitKeys = []string{cache.KeyDashboard, cache.KeyTasks, cache.KeyBatchProgress, cache.KeyUserProgress}
	gradeKeys  = []string{cache.KeyBatchProgress}
	taskKeys   = []string{cache.KeyDashboard, cache.KeyTasks, cache.KeyBatchProgress, cache.KeyUserProgress}
	batchKeys  = []string{cache.KeyBatches, cache.KeyDashboard, cache.KeyBatchProgress}
)

// Writer wraps a Backend so that every successful write invalidates the cache keys
// it affects and emits its domain event on the local bus.
//
// Failed writes leave the cache and bus untouched and return the backend error
// unchanged. Writer never retries.
type Writer struct {
	backend Backend
	cache   *cache.Manager
	bus     *eventbus.Bus
}

// NewWriter creates a writer.
func NewWriter(backend Backend, c *cache.Manager, bus *eventbus.Bus) *Writer {
	return &Writer{backend: backend, cache: c, bus: bus}
}

// SubmitTask submits a task.
func (w *Writer) SubmitTask(ctx context.Context, req academy.SubmitRequest) (*academy.SubmitResult, error) {
	res, err := w.backend.SubmitTask(ctx, req)
	if err != nil {
		return nil, err
	}

	w.invalidate(submitKeys)
	w.bus.Emit(eventbus.TaskCompleted, eventbus.TaskCompletedPayload{
		UserID:        req.UserID,
		BatchID:       req.BatchID,
		TaskID:        req.TaskID,
		PointsEarned:  res.PointsEarned,
		NewTotalXP:    res.NewTotalXP,
		CurrentStreak: res.CurrentStreak,
	})
	return res, nil
}

// GradeSubmission grades a submission.
func (w *Writer) GradeSubmission(ctx context.Context, submissionID string, req academy.GradeRequest) (*academy.GradeResult, error) {
	res, err := w.backend.GradeSubmission(ctx, submissionID, req)
	if err != nil {
		return nil, err
	}

	w.invalidate(gradeKeys)
	grade := req.Grade
	payload := eventbus.ProgressUpdatePayload{Type: eventbus.UpdateTaskGraded, Grade: &grade}
	if res.Submission != nil {
		payload.UserID = res.Submission.UserID
		payload.BatchID = res.Submission.BatchID
		payload.TaskID = res.Submission.TaskID
	}
	w.bus.Emit(eventbus.ProgressUpdated, payload)
	return res, nil
}

// CreateTask creates a task.
func (w *Writer) CreateTask(ctx context.Context, req academy.CreateTaskRequest) (*progress.Task, error) {
	task, err := w.backend.CreateTask(ctx, req)
	if err != nil {
		return nil, err
	}

	w.invalidate(taskKeys)
	w.bus.Emit(eventbus.TaskCreated, eventbus.TaskCreatedPayload{
		TaskID:  task.ID,
		BatchID: task.BatchID,
		Points:  task.Points,
	})
	return task, nil
}

// CreateBatch creates a batch.
func (w *Writer) CreateBatch(ctx context.Context, req academy.CreateBatchRequest) (*academy.BatchResult, error) {
	res, err := w.backend.CreateBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	w.invalidate(batchKeys)
	w.bus.Emit(eventbus.BatchCreated, eventbus.BatchCreatedPayload{
		BatchID:            res.Batch.ID,
		TotalUsersAffected: res.TotalUsersAffected,
	})
	return res, nil
}

// EnrollUsers enrolls users in a batch.
func (w *Writer) EnrollUsers(ctx context.Context, batchID string, req academy.EnrollRequest) (*academy.BatchResult, error) {
	res, err := w.backend.EnrollUsers(ctx, batchID, req)
	if err != nil {
		return nil, err
	}

	w.invalidate(batchKeys)
	w.bus.Emit(eventbus.BatchEnrolled, eventbus.BatchEnrolledPayload{
		BatchID:            batchID,
		UserIDs:            res.Enrolled,
		TotalUsersAffected: res.TotalUsersAffected,
	})
	return res, nil
}

func (w *Writer) invalidate(keys []string) {
	for _, key := range keys {
		w.cache.Invalidate(key)
	}
}
