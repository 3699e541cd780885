package progress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Nested structures such as the
// task progress map and the activity log are JSON-encoded into single hash fields.
// Timestamps are stored as Unix milliseconds.

// ProgressToHash converts a UserBatchProgress aggregate to a Redis hash format.
func ProgressToHash(p *UserBatchProgress) (map[string]interface{}, error) {
	tasks := p.Tasks
	if tasks == nil {
		tasks = map[string]*TaskProgressEntry{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}

	activity := p.Activity
	if activity == nil {
		activity = []ActivityLogEntry{}
	}
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}

	metricsJSON, err := json.Marshal(p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	hash := map[string]interface{}{
		"user_id":           p.UserID,
		"batch_id":          p.BatchID,
		"tasks":             string(tasksJSON),
		"activity":          string(activityJSON),
		"metrics":           string(metricsJSON),
		"last_active_at_ms": toMillis(p.LastActiveAt),
		"created_at_ms":     toMillis(p.CreatedAt),
		"version":           p.Version,
	}

	return hash, nil
}

// HashToProgress converts a Redis hash to a UserBatchProgress aggregate.
func HashToProgress(hash map[string]string) (*UserBatchProgress, error) {
	version, err := strconv.ParseInt(hash["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	tasks := map[string]*TaskProgressEntry{}
	if raw := hash["tasks"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
		}
	}

	activity := []ActivityLogEntry{}
	if raw := hash["activity"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &activity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
		}
	}

	var metrics ProgressMetrics
	if raw := hash["metrics"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	lastActiveMs, _ := strconv.ParseInt(hash["last_active_at_ms"], 10, 64)
	createdMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &UserBatchProgress{
		UserID:       hash["user_id"],
		BatchID:      hash["batch_id"],
		Tasks:        tasks,
		Activity:     activity,
		Metrics:      metrics,
		LastActiveAt: fromMillis(lastActiveMs),
		CreatedAt:    fromMillis(createdMs),
		Version:      version,
	}, nil
}

// TaskToHash converts a Task struct to a Redis hash format.
func TaskToHash(t *Task) map[string]interface{} {
	return map[string]interface{}{
		"id":            t.ID,
		"batch_id":      t.BatchID,
		"title":         t.Title,
		"description":   t.Description,
		"points":        t.Points,
		"auto_complete": strconv.FormatBool(t.AutoComplete),
		"created_at_ms": t.CreatedAtMs,
	}
}

// HashToTask converts a Redis hash to a Task struct.
func HashToTask(hash map[string]string) (*Task, error) {
	points, err := strconv.Atoi(hash["points"])
	if err != nil {
		return nil, fmt.Errorf("invalid points field: %w", err)
	}

	autoComplete, _ := strconv.ParseBool(hash["auto_complete"])
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Task{
		ID:           hash["id"],
		BatchID:      hash["batch_id"],
		Title:        hash["title"],
		Description:  hash["description"],
		Points:       points,
		AutoComplete: autoComplete,
		CreatedAtMs:  createdAtMs,
	}, nil
}

// BatchToHash converts a Batch struct to a Redis hash format.
func BatchToHash(b *Batch) map[string]interface{} {
	return map[string]interface{}{
		"id":            b.ID,
		"name":          b.Name,
		"description":   b.Description,
		"created_at_ms": b.CreatedAtMs,
	}
}

// HashToBatch converts a Redis hash to a Batch struct.
func HashToBatch(hash map[string]string) *Batch {
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Batch{
		ID:          hash["id"],
		Name:        hash["name"],
		Description: hash["description"],
		CreatedAtMs: createdAtMs,
	}
}

// SubmissionToHash converts a Submission struct to a Redis hash format.
// A missing grade is stored as an empty string.
func SubmissionToHash(s *Submission) map[string]interface{} {
	return map[string]interface{}{
		"id":              s.ID,
		"user_id":         s.UserID,
		"batch_id":        s.BatchID,
		"task_id":         s.TaskID,
		"content":         s.Content,
		"submitted_at_ms": s.SubmittedAtMs,
		"grade":           formatGrade(s.Grade),
		"feedback":        s.Feedback,
		"graded_at_ms":    s.GradedAtMs,
	}
}

// HashToSubmission converts a Redis hash to a Submission struct.
func HashToSubmission(hash map[string]string) (*Submission, error) {
	grade, err := parseGrade(hash["grade"])
	if err != nil {
		return nil, err
	}

	submittedAtMs, _ := strconv.ParseInt(hash["submitted_at_ms"], 10, 64)
	gradedAtMs, _ := strconv.ParseInt(hash["graded_at_ms"], 10, 64)

	return &Submission{
		ID:            hash["id"],
		UserID:        hash["user_id"],
		BatchID:       hash["batch_id"],
		TaskID:        hash["task_id"],
		Content:       hash["content"],
		SubmittedAtMs: submittedAtMs,
		Grade:         grade,
		Feedback:      hash["feedback"],
		GradedAtMs:    gradedAtMs,
	}, nil
}

func formatGrade(grade *float64) string {
	if grade == nil {
		return ""
	}
	return strconv.FormatFloat(*grade, 'f', -1, 64)
}

func parseGrade(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	grade, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid grade field: %w", err)
	}
	return &grade, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
