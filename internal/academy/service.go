// Package academy implements the write and read operations behind the cohort API.
// Writes go through the ledger, which owns every change to learner progress; each
// successful write emits its domain event on the server bus.
package academy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/eventbus"
	"github.com/dyluth/cohort/internal/ledger"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/google/uuid"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrBatchNotFound      = errors.New("batch not found")
)

// Store is the document store for tasks, batches, submissions and XP.
// *progress.Client satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	CreateTask(ctx context.Context, t *progress.Task) error
	GetTask(ctx context.Context, taskID string) (*progress.Task, error)
	ListTasks(ctx context.Context, batchID string) ([]*progress.Task, error)
	TaskIDs(ctx context.Context, batchID string) ([]string, error)

	CreateBatch(ctx context.Context, b *progress.Batch) error
	GetBatch(ctx context.Context, batchID string) (*progress.Batch, error)
	ListBatches(ctx context.Context) ([]*progress.Batch, error)
	AddBatchMembers(ctx context.Context, batchID string, userIDs ...string) ([]string, error)
	BatchMembers(ctx context.Context, batchID string) ([]string, error)

	CreateSubmission(ctx context.Context, s *progress.Submission) error
	DeleteSubmission(ctx context.Context, s *progress.Submission) error
	GetSubmission(ctx context.Context, submissionID string) (*progress.Submission, error)
	GradeSubmission(ctx context.Context, submissionID string, grade float64, feedback string, gradedAtMs int64) error

	IncrementXP(ctx context.Context, userID string, delta int) (int64, error)
	GetXP(ctx context.Context, userID string) (int64, error)

	ListBatchProgress(ctx context.Context, batchID string) ([]*progress.UserBatchProgress, error)
	ListUserProgress(ctx context.Context, userID string) ([]*progress.UserBatchProgress, error)
}

// Service is safe for concurrent use; it keeps no in-process state of its own.
type Service struct {
	store  Store
	ledger *ledger.Ledger
	bus    *eventbus.Bus
	now    func() time.Time
	logger *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a service. bus receives one event per successful write.
func New(store Store, l *ledger.Ledger, bus *eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: l,
		bus:    bus,
		now:    time.Now,
		logger: log.Default().WithPrefix("academy"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health reports whether the document store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SubmitTask accepts a learner's submission and records it in their progress.
//
// The (user, task) submission index is claimed first; a learner who already submitted
// the task gets ledger.ErrDuplicateSubmission. If the ledger rejects the submission,
// the stored submission is rolled back so the learner can retry.
func (s *Service) SubmitTask(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := progress.ValidateUserID(req.UserID); err != nil {
		return nil, err
	}

	task, err := s.store.GetTask(ctx, req.TaskID)
	if err != nil {
		if progress.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrTaskNotFound, req.TaskID)
		}
		return nil, err
	}
	if task.BatchID != req.BatchID {
		return nil, fmt.Errorf("%w: task %s is not part of batch %s", ledger.ErrTaskNotFound, req.TaskID, req.BatchID)
	}

	submission := &progress.Submission{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		BatchID:       req.BatchID,
		TaskID:        req.TaskID,
		Content:       req.Content,
		SubmittedAtMs: s.now().UnixMilli(),
	}
	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		if errors.Is(err, progress.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: user %s task %s", ledger.ErrDuplicateSubmission, req.UserID, req.TaskID)
		}
		return nil, err
	}

	recorded, err := s.ledger.RecordSubmission(ctx, ledger.SubmissionInput{
		UserID:        req.UserID,
		BatchID:       req.BatchID,
		TaskID:        req.TaskID,
		SubmissionRef: submission.ID,
		PointsAwarded: task.Points,
		AutoComplete:  task.AutoComplete,
	})
	if err != nil {
		if rbErr := s.store.DeleteSubmission(ctx, submission); rbErr != nil {
			s.logger.Error("failed to roll back submission", "submission_id", submission.ID, "error", rbErr)
		}
		return nil, err
	}

	totalXP, err := s.store.IncrementXP(ctx, req.UserID, task.Points)
	if err != nil {
		// The submission is already recorded; XP is reconciled on the next award
		s.logger.Warn("failed to award XP", "user_id", req.UserID, "points", task.Points, "error", err)
	}

	result := &SubmitResult{
		Submission:    submission,
		Progress:      recorded.Progress,
		PointsEarned:  task.Points,
		NewTotalXP:    totalXP,
		CurrentStreak: recorded.Streak,
	}

	s.bus.Emit(eventbus.TaskCompleted, eventbus.TaskCompletedPayload{
		UserID:        req.UserID,
		BatchID:       req.BatchID,
		TaskID:        req.TaskID,
		PointsEarned:  task.Points,
		NewTotalXP:    totalXP,
		CurrentStreak: recorded.Streak,
	})

	return result, nil
}

// GradeSubmission grades a submission and the corresponding progress entry.
//
// The progress entry is graded first and is authoritative. If the grade then cannot be
// copied onto the submission document, the failure is logged and the grade still
// stands; grading the submission again repairs the document.
func (s *Service) GradeSubmission(ctx context.Context, submissionID string, req GradeRequest) (*GradeResult, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		if progress.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, submissionID)
		}
		return nil, err
	}

	updated, err := s.ledger.RecordGrade(ctx, submission.UserID, submission.BatchID, submission.TaskID, req.Grade, req.Feedback)
	if err != nil {
		return nil, err
	}

	gradedAt := s.now().UnixMilli()
	if err := s.store.GradeSubmission(ctx, submissionID, req.Grade, req.Feedback, gradedAt); err != nil {
		s.logger.Warn("failed to store grade on submission",
			"submission_id", submissionID,
			"user_id", submission.UserID,
			"task_id", submission.TaskID,
			"grade", req.Grade,
			"error", err,
		)
	}

	grade := req.Grade
	submission.Grade = &grade
	submission.Feedback = req.Feedback
	submission.GradedAtMs = gradedAt

	s.bus.Emit(eventbus.ProgressUpdated, eventbus.ProgressUpdatePayload{
		Type:    eventbus.UpdateTaskGraded,
		UserID:  submission.UserID,
		BatchID: submission.BatchID,
		TaskID:  submission.TaskID,
		Grade:   &grade,
	})

	return &GradeResult{Submission: submission, Progress: updated}, nil
}

// CreateTask adds a task to a batch and gives every current member a not-started entry.
func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (*progress.Task, error) {
	if _, err := s.getBatch(ctx, req.BatchID); err != nil {
		return nil, err
	}

	task := &progress.Task{
		ID:           uuid.New().String(),
		BatchID:      req.BatchID,
		Title:        req.Title,
		Description:  req.Description,
		Points:       req.Points,
		AutoComplete: req.AutoComplete,
		CreatedAtMs:  s.now().UnixMilli(),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	members, err := s.store.BatchMembers(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	for _, userID := range members {
		if _, err := s.ledger.AddTask(ctx, userID, req.BatchID, task.ID); err != nil {
			// Learners still being enrolled read the task from the batch's task list
			if errors.Is(err, ledger.ErrProgressNotFound) {
				continue
			}
			return nil, err
		}
	}

	s.logger.Info("task created", "task_id", task.ID, "batch_id", task.BatchID, "members", len(members))

	s.bus.Emit(eventbus.TaskCreated, eventbus.TaskCreatedPayload{
		TaskID:  task.ID,
		BatchID: task.BatchID,
		Points:  task.Points,
	})

	return task, nil
}

// CreateBatch creates a batch and initializes progress for each initial member.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResult, error) {
	batch := &progress.Batch{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAtMs: s.now().UnixMilli(),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	enrolled, err := s.enroll(ctx, batch.ID, req.UserIDs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch created", "batch_id", batch.ID, "name", batch.Name, "members", len(enrolled))

	s.bus.Emit(eventbus.BatchCreated, eventbus.BatchCreatedPayload{
		BatchID:            batch.ID,
		TotalUsersAffected: len(enrolled),
	})

	return &BatchResult{Batch: batch, Enrolled: enrolled, TotalUsersAffected: len(enrolled)}, nil
}

// EnrollUsers adds users to an existing batch. Users who are already members are
// skipped and not counted, unless an earlier enrollment failed before their progress
// was created, in which case it is created now and they are counted.
func (s *Service) EnrollUsers(ctx context.Context, batchID string, req EnrollRequest) (*BatchResult, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enroll(ctx, batchID, req.UserIDs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("users enrolled", "batch_id", batchID, "requested", len(req.UserIDs), "enrolled", len(enrolled))

	s.bus.Emit(eventbus.BatchEnrolled, eventbus.BatchEnrolledPayload{
		BatchID:            batchID,
		UserIDs:            enrolled,
		TotalUsersAffected: len(enrolled),
	})

	return &BatchResult{Batch: batch, Enrolled: enrolled, TotalUsersAffected: len(enrolled)}, nil
}

// enroll makes userIDs members of the batch and creates progress for each member that
// has none. It returns the users whose progress it created, in argument order.
//
// A task created concurrently is either in the task list read after membership is
// written, in the list read again after progress is created, or created late enough
// that CreateTask finds the progress and adds its own entry.
func (s *Service) enroll(ctx context.Context, batchID string, userIDs []string) ([]string, error) {
	for _, userID := range userIDs {
		if err := progress.ValidateUserID(userID); err != nil {
			return nil, err
		}
	}
	if len(userIDs) == 0 {
		return []string{}, nil
	}

	if _, err := s.store.AddBatchMembers(ctx, batchID, userIDs...); err != nil {
		return nil, err
	}

	taskIDs, err := s.store.TaskIDs(ctx, batchID)
	if err != nil {
		return nil, err
	}

	// Existing members go through Initialize too, so a member left without progress
	// by a failed enrollment is repaired on retry
	enrolled := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		if _, err := s.ledger.Initialize(ctx, userID, batchID, taskIDs); err != nil {
			if errors.Is(err, ledger.ErrAlreadyInitialized) {
				continue
			}
			return nil, err
		}
		enrolled = append(enrolled, userID)
	}

	if len(enrolled) > 0 {
		if err := s.addLateTasks(ctx, batchID, enrolled, taskIDs); err != nil {
			return nil, err
		}
	}
	return enrolled, nil
}

// addLateTasks gives userIDs an entry for every task created after known was read.
func (s *Service) addLateTasks(ctx context.Context, batchID string, userIDs, known []string) error {
	current, err := s.store.TaskIDs(ctx, batchID)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(known))
	for _, id := range known {
		seen[id] = struct{}{}
	}
	for _, taskID := range current {
		if _, ok := seen[taskID]; ok {
			continue
		}
		for _, userID := range userIDs {
			if _, err := s.ledger.AddTask(ctx, userID, batchID, taskID); err != nil {
				return err
			}
		}
		s.logger.Debug("task created during enrollment", "task_id", taskID, "batch_id", batchID, "users", len(userIDs))
	}
	return nil
}

// Dashboard summarizes a learner's progress, streaks and XP across batches.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	xp, err := s.store.GetXP(ctx, userID)
	if err != nil {
		return nil, err
	}

	aggregates, err := s.store.ListUserProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := &Dashboard{UserID: userID, XP: xp, Batches: make([]DashboardBatch, 0, len(aggregates))}
	for _, p := range aggregates {
		entry := DashboardBatch{
			BatchID:      p.BatchID,
			Metrics:      p.Metrics,
			Streak:       ledger.ComputeStreak(p.Activity, now),
			LastActiveAt: p.LastActiveAt,
		}
		if batch, err := s.store.GetBatch(ctx, p.BatchID); err == nil {
			entry.Name = batch.Name
		}
		d.Batches = append(d.Batches, entry)
	}

	return d, nil
}

// Batches lists every batch in creation order.
func (s *Service) Batches(ctx context.Context) ([]*progress.Batch, error) {
	return s.store.ListBatches(ctx)
}

// Tasks lists a batch's tasks in creation order.
func (s *Service) Tasks(ctx context.Context, batchID string) ([]*progress.Task, error) {
	if _, err := s.getBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, batchID)
}

// BatchProgress lists every member's progress in a batch, ordered by user.
func (s *Service) BatchProgress(ctx context.Context, batchID string) ([]*progress.UserBatchProgress, error) {
	if _, err := s.getBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.ListBatchProgress(ctx, batchID)
}

// UserProgress lists a learner's progress in every batch they belong to.
func (s *Service) UserProgress(ctx context.Context, userID string) ([]*progress.UserBatchProgress, error) {
	return s.store.ListUserProgress(ctx, userID)
}

// Activity returns a learner's activity in a batch, oldest first. Zero bounds are open.
func (s *Service) Activity(ctx context.Context, userID, batchID string, since, until time.Time) ([]progress.ActivityLogEntry, error) {
	p, err := s.ledger.Get(ctx, userID, batchID)
	if err != nil {
		return nil, err
	}

	entries := make([]progress.ActivityLogEntry, 0, len(p.Activity))
	for _, e := range p.Activity {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RecordActivity records a non-grading activity such as a task being opened.
func (s *Service) RecordActivity(ctx context.Context, userID, batchID string, entry progress.ActivityLogEntry) (*progress.UserBatchProgress, error) {
	return s.ledger.RecordActivity(ctx, userID, batchID, entry)
}

func (s *Service) getBatch(ctx context.Context, batchID string) (*progress.Batch, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		if progress.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		return nil, err
	}
	return batch, nil
}
