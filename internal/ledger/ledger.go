// Package ledger owns the per-user-per-batch progress aggregate. Every change to a
// learner's progress goes through one of the recording operations here, which append
// to the activity log and recompute the derived metrics in the same atomic update.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/pkg/progress"
)

// Store is the document store the ledger persists aggregates in.
// UpdateProgress must apply the mutation atomically with respect to other writers.
type Store interface {
	CreateProgress(ctx context.Context, p *progress.UserBatchProgress) error
	GetProgress(ctx context.Context, userID, batchID string) (*progress.UserBatchProgress, error)
	UpdateProgress(ctx context.Context, userID, batchID string, mutate func(*progress.UserBatchProgress) error) (*progress.UserBatchProgress, error)
}

// Ledger records learner activity against progress aggregates.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger *log.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for activity timestamps and streaks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a ledger backed by store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: log.Default().WithPrefix("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SubmissionInput describes an accepted submission to record.
type SubmissionInput struct {
	UserID        string
	BatchID       string
	TaskID        string
	SubmissionRef string
	PointsAwarded int
	AutoComplete  bool // Task completes on submit without waiting for a grade
}

// SubmissionResult is the aggregate after a submission plus the learner's streak.
type SubmissionResult struct {
	Progress *progress.UserBatchProgress
	Streak   int
}

// Initialize creates the aggregate for a newly enrolled learner with one not-started
// entry per task and an "enrolled" milestone.
// Returns ErrAlreadyInitialized if the learner already has progress in the batch.
func (l *Ledger) Initialize(ctx context.Context, userID, batchID string, taskIDs []string) (*progress.UserBatchProgress, error) {
	now := l.now()

	tasks := make(map[string]*progress.TaskProgressEntry, len(taskIDs))
	for _, taskID := range taskIDs {
		tasks[taskID] = progress.NewTaskProgressEntry(taskID)
	}

	p := &progress.UserBatchProgress{
		UserID:  userID,
		BatchID: batchID,
		Tasks:   tasks,
		Activity: []progress.ActivityLogEntry{{
			Action:      progress.ActionMilestoneReached,
			Description: "enrolled",
			Metadata:    map[string]any{"tasks": len(tasks)},
			Timestamp:   now,
		}},
		Metrics:      ComputeMetrics(tasks),
		LastActiveAt: now,
		CreatedAt:    now,
	}

	if err := l.store.CreateProgress(ctx, p); err != nil {
		if errors.Is(err, progress.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: user %s in batch %s", ErrAlreadyInitialized, userID, batchID)
		}
		return nil, fmt.Errorf("failed to initialize progress: %w", err)
	}

	l.logger.Info("progress initialized", "user_id", userID, "batch_id", batchID, "tasks", len(tasks))
	return p, nil
}

// AddTask gives a learner a not-started entry for a task added to the batch after
// enrollment. Adding a task the learner already has is a no-op.
func (l *Ledger) AddTask(ctx context.Context, userID, batchID, taskID string) (*progress.UserBatchProgress, error) {
	updated, err := l.store.UpdateProgress(ctx, userID, batchID, func(p *progress.UserBatchProgress) error {
		if _, ok := p.Tasks[taskID]; ok {
			return nil
		}
		p.Tasks[taskID] = progress.NewTaskProgressEntry(taskID)
		p.Metrics = ComputeMetrics(p.Tasks)
		return nil
	})
	if err != nil {
		return nil, l.wrapUpdateError(err, userID, batchID)
	}
	return updated, nil
}

// RecordSubmission marks a task as submitted (or completed for auto-complete tasks),
// records the points, and returns the updated aggregate with the current streak.
//
// A task added to the batch after enrollment gets its entry created here.
// Returns ErrProgressNotFound if the learner is not enrolled and ErrDuplicateSubmission
// if the task already carries a submission.
func (l *Ledger) RecordSubmission(ctx context.Context, in SubmissionInput) (*SubmissionResult, error) {
	updated, err := l.store.UpdateProgress(ctx, in.UserID, in.BatchID, func(p *progress.UserBatchProgress) error {
		entry, ok := p.Tasks[in.TaskID]
		if !ok {
			entry = progress.NewTaskProgressEntry(in.TaskID)
			p.Tasks[in.TaskID] = entry
		}
		if entry.SubmissionRef != "" {
			return fmt.Errorf("%w: user %s task %s", ErrDuplicateSubmission, in.UserID, in.TaskID)
		}

		now := l.now()
		entry.Status = progress.TaskStatusSubmitted
		entry.SubmissionRef = in.SubmissionRef
		entry.PointsEarned = in.PointsAwarded
		entry.Attempts++
		entry.SubmittedAt = &now

		p.Activity = append(p.Activity, progress.ActivityLogEntry{
			Action:      progress.ActionTaskSubmitted,
			TaskRef:     in.TaskID,
			Description: "submitted task",
			Metadata: map[string]any{
				"submission_ref": in.SubmissionRef,
				"points":         in.PointsAwarded,
				"attempt":        entry.Attempts,
			},
			Timestamp: now,
		})

		if in.AutoComplete {
			entry.Status = progress.TaskStatusCompleted
			p.Activity = append(p.Activity, progress.ActivityLogEntry{
				Action:      progress.ActionTaskCompleted,
				TaskRef:     in.TaskID,
				Description: "completed task",
				Timestamp:   now,
			})
		}

		p.Metrics = ComputeMetrics(p.Tasks)
		p.LastActiveAt = now
		return nil
	})
	if err != nil {
		return nil, l.wrapUpdateError(err, in.UserID, in.BatchID)
	}

	streak := ComputeStreak(updated.Activity, l.now())

	l.logger.Info("submission recorded",
		"user_id", in.UserID,
		"batch_id", in.BatchID,
		"task_id", in.TaskID,
		"completion", updated.Metrics.CompletionPercentage,
		"streak", streak,
		"version", updated.Version,
	)

	return &SubmissionResult{Progress: updated, Streak: streak}, nil
}

// RecordGrade grades a task entry and recomputes the metrics.
// Returns ErrProgressNotFound if the aggregate or the task entry does not exist.
func (l *Ledger) RecordGrade(ctx context.Context, userID, batchID, taskID string, grade float64, feedback string) (*progress.UserBatchProgress, error) {
	if err := progress.ValidateGrade(grade); err != nil {
		return nil, err
	}

	updated, err := l.store.UpdateProgress(ctx, userID, batchID, func(p *progress.UserBatchProgress) error {
		entry, ok := p.Tasks[taskID]
		if !ok {
			return fmt.Errorf("%w: no entry for task %s", ErrProgressNotFound, taskID)
		}

		now := l.now()
		g := grade
		entry.Status = progress.TaskStatusGraded
		entry.Grade = &g
		entry.Feedback = feedback
		entry.GradedAt = &now

		p.Activity = append(p.Activity, progress.ActivityLogEntry{
			Action:      progress.ActionTaskGraded,
			TaskRef:     taskID,
			Description: "task graded",
			Metadata:    map[string]any{"grade": grade},
			Timestamp:   now,
		})

		p.Metrics = ComputeMetrics(p.Tasks)
		return nil
	})
	if err != nil {
		return nil, l.wrapUpdateError(err, userID, batchID)
	}

	l.logger.Info("grade recorded",
		"user_id", userID,
		"batch_id", batchID,
		"task_id", taskID,
		"grade", grade,
		"average", updated.Metrics.AverageGrade,
	)

	return updated, nil
}

// RecordActivity appends an activity that does not change task state, such as a task
// being opened or a skill being acquired. Submission, grading and completion must go
// through RecordSubmission and RecordGrade.
func (l *Ledger) RecordActivity(ctx context.Context, userID, batchID string, entry progress.ActivityLogEntry) (*progress.UserBatchProgress, error) {
	switch entry.Action {
	case progress.ActionTaskSubmitted, progress.ActionTaskGraded, progress.ActionTaskCompleted:
		return nil, fmt.Errorf("%w: activity %q must be recorded through its dedicated operation", progress.ErrInvalid, entry.Action)
	}
	if err := entry.Action.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", progress.ErrInvalid, err)
	}

	updated, err := l.store.UpdateProgress(ctx, userID, batchID, func(p *progress.UserBatchProgress) error {
		e := entry
		if e.Timestamp.IsZero() {
			e.Timestamp = l.now()
		}
		p.Activity = append(p.Activity, e)
		p.Metrics = ComputeMetrics(p.Tasks)
		p.LastActiveAt = e.Timestamp
		return nil
	})
	if err != nil {
		return nil, l.wrapUpdateError(err, userID, batchID)
	}

	return updated, nil
}

// Get returns a learner's progress in a batch.
func (l *Ledger) Get(ctx context.Context, userID, batchID string) (*progress.UserBatchProgress, error) {
	p, err := l.store.GetProgress(ctx, userID, batchID)
	if err != nil {
		if progress.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user %s in batch %s", ErrProgressNotFound, userID, batchID)
		}
		return nil, err
	}
	return p, nil
}

// Streak returns the learner's current streak in a batch as of now.
func (l *Ledger) Streak(ctx context.Context, userID, batchID string) (int, error) {
	p, err := l.Get(ctx, userID, batchID)
	if err != nil {
		return 0, err
	}
	return ComputeStreak(p.Activity, l.now()), nil
}

func (l *Ledger) wrapUpdateError(err error, userID, batchID string) error {
	switch {
	case progress.IsNotFound(err):
		return fmt.Errorf("%w: user %s in batch %s", ErrProgressNotFound, userID, batchID)
	case errors.Is(err, ErrDuplicateSubmission), errors.Is(err, ErrProgressNotFound):
		return err
	case errors.Is(err, progress.ErrConflict):
		l.logger.Warn("progress update lost to concurrent writers", "user_id", userID, "batch_id", batchID)
		return err
	default:
		return fmt.Errorf("failed to update progress: %w", err)
	}
}
