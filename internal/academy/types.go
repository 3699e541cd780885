package academy

import (
	"time"

	"github.com/dyluth/cohort/pkg/progress"
)

// SubmitRequest is a learner's answer to a task.
type SubmitRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	BatchID string `json:"batch_id" validate:"required,uuid"`
	TaskID  string `json:"task_id" validate:"required,uuid"`
	Content string `json:"content" validate:"required"`
}

// SubmitResult is returned after a submission is accepted and recorded.
type SubmitResult struct {
	Submission    *progress.Submission        `json:"submission"`
	Progress      *progress.UserBatchProgress `json:"progress"`
	PointsEarned  int                         `json:"points_earned"`
	NewTotalXP    int64                       `json:"new_total_xp"`
	CurrentStreak int                         `json:"current_streak"`
}

// GradeRequest grades a submission.
type GradeRequest struct {
	Grade    float64 `json:"grade" validate:"gte=0,lte=100"`
	Feedback string  `json:"feedback"`
}

// GradeResult is returned after a grade is recorded.
type GradeResult struct {
	Submission *progress.Submission        `json:"submission"`
	Progress   *progress.UserBatchProgress `json:"progress"`
}

// CreateTaskRequest adds a task to a batch.
type CreateTaskRequest struct {
	BatchID      string `json:"batch_id" validate:"required,uuid"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	Points       int    `json:"points" validate:"gte=0"`
	AutoComplete bool   `json:"auto_complete"`
}

// CreateBatchRequest creates a batch with its initial members.
type CreateBatchRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	UserIDs     []string `json:"user_ids" validate:"dive,required"`
}

// EnrollRequest adds users to an existing batch.
type EnrollRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
}

// BatchResult is returned by batch creation and enrollment.
// Enrolled lists only users whose progress was initialized by the call.
type BatchResult struct {
	Batch              *progress.Batch `json:"batch"`
	Enrolled           []string        `json:"enrolled"`
	TotalUsersAffected int             `json:"total_users_affected"`
}

// Dashboard summarizes a learner across all of their batches.
type Dashboard struct {
	UserID  string           `json:"user_id"`
	XP      int64            `json:"xp"`
	Batches []DashboardBatch `json:"batches"`
}

// DashboardBatch is one batch on a learner's dashboard.
type DashboardBatch struct {
	BatchID      string                   `json:"batch_id"`
	Name         string                   `json:"name"`
	Metrics      progress.ProgressMetrics `json:"metrics"`
	Streak       int                      `json:"streak"`
	LastActiveAt time.Time                `json:"last_active_at"`
}
