// Package progress provides type-safe Go definitions and the Redis-backed
// document store for cohort learning progress. The store is the single source of
// truth shared by the server, the CLI and any process relaying events.
//
// All Redis keys and channels are namespaced by instance name to enable multiple
// cohort instances to safely coexist on a single Redis server.
package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityAction identifies what happened in an activity log entry.
type ActivityAction string

const (
	// ActionTaskStarted records that a learner opened a task
	ActionTaskStarted ActivityAction = "task_started"

	// ActionTaskSubmitted records an accepted submission
	ActionTaskSubmitted ActivityAction = "task_submitted"

	// ActionTaskGraded records a grade given by a mentor
	ActionTaskGraded ActivityAction = "task_graded"

	// ActionTaskCompleted records a task reaching the completed state without grading
	ActionTaskCompleted ActivityAction = "task_completed"

	// ActionSkillAcquired records a skill badge earned by the learner
	ActionSkillAcquired ActivityAction = "skill_acquired"

	// ActionMilestoneReached records milestones such as enrollment
	ActionMilestoneReached ActivityAction = "milestone_reached"
)

// Validate checks if the ActivityAction is a valid enum value.
func (a ActivityAction) Validate() error {
	switch a {
	case ActionTaskStarted, ActionTaskSubmitted, ActionTaskGraded,
		ActionTaskCompleted, ActionSkillAcquired, ActionMilestoneReached:
		return nil
	default:
		return fmt.Errorf("unknown activity action: %q", a)
	}
}

// ActivityLogEntry is an immutable record in a learner's activity history.
// Entries are only ever appended; their order of insertion is the only ordering guarantee.
type ActivityLogEntry struct {
	Action      ActivityAction `json:"action"`
	TaskRef     string         `json:"task_ref,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Validate checks if the ActivityLogEntry has valid field values.
func (e *ActivityLogEntry) Validate() error {
	if err := e.Action.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	if e.TaskRef != "" && !isValidUUID(e.TaskRef) {
		return fmt.Errorf("invalid task ref: not a valid UUID")
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("activity timestamp cannot be zero")
	}

	return nil
}

// TaskStatus is the lifecycle state of a task for one learner.
// Tasks progress: not_started → submitted → graded. Completed is terminal and is
// reached either through grading or through auto-completion on submit.
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusSubmitted  TaskStatus = "submitted"
	TaskStatusGraded     TaskStatus = "graded"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Validate checks if the TaskStatus is a valid enum value.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusNotStarted, TaskStatusSubmitted, TaskStatusGraded, TaskStatusCompleted:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// IsDone reports whether the status counts towards completion.
func (s TaskStatus) IsDone() bool {
	return s == TaskStatusGraded || s == TaskStatusCompleted
}

// TaskProgressEntry is one learner's progress on one task of a batch.
type TaskProgressEntry struct {
	TaskID        string     `json:"task_id"`
	Status        TaskStatus `json:"status"`
	SubmissionRef string     `json:"submission_ref,omitempty"`
	PointsEarned  int        `json:"points_earned"`
	Grade         *float64   `json:"grade,omitempty"` // 0-100, nil until graded
	Feedback      string     `json:"feedback,omitempty"`
	Attempts      int        `json:"attempts"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	GradedAt      *time.Time `json:"graded_at,omitempty"`
}

// NewTaskProgressEntry returns a not-started entry for a task.
func NewTaskProgressEntry(taskID string) *TaskProgressEntry {
	return &TaskProgressEntry{
		TaskID: taskID,
		Status: TaskStatusNotStarted,
	}
}

// Validate checks if the TaskProgressEntry has valid field values.
func (e *TaskProgressEntry) Validate() error {
	if !isValidUUID(e.TaskID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if err := e.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if e.Attempts < 0 {
		return fmt.Errorf("invalid attempts: must be >= 0, got %d", e.Attempts)
	}

	if e.Grade != nil {
		if err := ValidateGrade(*e.Grade); err != nil {
			return err
		}
	}

	return nil
}

// ProgressMetrics is the derived summary of a task progress map.
// It is never authored directly; see ledger.ComputeMetrics.
type ProgressMetrics struct {
	TotalTasks           int     `json:"total_tasks"`
	CompletedTasks       int     `json:"completed_tasks"`
	SubmittedTasks       int     `json:"submitted_tasks"`
	GradedTasks          int     `json:"graded_tasks"`
	TotalPointsEarned    int     `json:"total_points_earned"`
	CompletionPercentage int     `json:"completion_percentage"`
	AverageGrade         float64 `json:"average_grade"`
}

// UserBatchProgress is the aggregate root holding one learner's progress in one batch.
// Version is owned by the store and bumped on every successful write.
type UserBatchProgress struct {
	UserID       string                        `json:"user_id"`
	BatchID      string                        `json:"batch_id"`
	Tasks        map[string]*TaskProgressEntry `json:"tasks"`
	Activity     []ActivityLogEntry            `json:"activity"`
	Metrics      ProgressMetrics               `json:"metrics"`
	LastActiveAt time.Time                     `json:"last_active_at"`
	CreatedAt    time.Time                     `json:"created_at"`
	Version      int64                         `json:"version"`
}

// Validate checks if the UserBatchProgress has valid field values.
func (p *UserBatchProgress) Validate() error {
	if err := ValidateUserID(p.UserID); err != nil {
		return err
	}

	if !isValidUUID(p.BatchID) {
		return fmt.Errorf("invalid batch ID: not a valid UUID")
	}

	for taskID, entry := range p.Tasks {
		if entry == nil {
			return fmt.Errorf("task %s: nil progress entry", taskID)
		}
		if entry.TaskID != taskID {
			return fmt.Errorf("task %s: entry keyed under mismatched ID %s", taskID, entry.TaskID)
		}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
	}

	for i := range p.Activity {
		if err := p.Activity[i].Validate(); err != nil {
			return fmt.Errorf("invalid activity at index %d: %w", i, err)
		}
	}

	return nil
}

// Task is an assignment that belongs to one batch.
type Task struct {
	ID           string `json:"id"`
	BatchID      string `json:"batch_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Points       int    `json:"points"`
	AutoComplete bool   `json:"auto_complete"` // Submissions complete the task without grading
	CreatedAtMs  int64  `json:"created_at_ms"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if !isValidUUID(t.BatchID) {
		return fmt.Errorf("invalid batch ID: not a valid UUID")
	}

	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title cannot be empty")
	}

	if t.Points < 0 {
		return fmt.Errorf("invalid points: must be >= 0, got %d", t.Points)
	}

	return nil
}

// Batch is a cohort of learners working through the same tasks.
// Members are stored separately as a Redis set.
type Batch struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Validate checks if the Batch has valid field values.
func (b *Batch) Validate() error {
	if !isValidUUID(b.ID) {
		return fmt.Errorf("invalid batch ID: not a valid UUID")
	}

	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("batch name cannot be empty")
	}

	return nil
}

// Submission is a learner's answer to a task. At most one exists per (user, task).
type Submission struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	BatchID       string   `json:"batch_id"`
	TaskID        string   `json:"task_id"`
	Content       string   `json:"content"`
	SubmittedAtMs int64    `json:"submitted_at_ms"`
	Grade         *float64 `json:"grade,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
	GradedAtMs    int64    `json:"graded_at_ms,omitempty"`
}

// Validate checks if the Submission has valid field values.
func (s *Submission) Validate() error {
	if !isValidUUID(s.ID) {
		return fmt.Errorf("invalid submission ID: not a valid UUID")
	}

	if err := ValidateUserID(s.UserID); err != nil {
		return err
	}

	if !isValidUUID(s.BatchID) {
		return fmt.Errorf("invalid batch ID: not a valid UUID")
	}

	if !isValidUUID(s.TaskID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if s.Grade != nil {
		if err := ValidateGrade(*s.Grade); err != nil {
			return err
		}
	}

	return nil
}

// ValidateUserID checks a user ID. User IDs come from the identity provider and are opaque,
// but they are embedded in Redis keys so they may not contain separators or whitespace.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user ID cannot be empty", ErrInvalid)
	}
	if strings.ContainsAny(userID, ": \t\n") {
		return fmt.Errorf("%w: invalid user ID %q, must not contain ':' or whitespace", ErrInvalid, userID)
	}
	return nil
}

// ValidateGrade checks that a grade lies in [0, 100].
func ValidateGrade(grade float64) error {
	if grade < 0 || grade > 100 {
		return fmt.Errorf("%w: invalid grade %v, must be between 0 and 100", ErrInvalid, grade)
	}
	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
