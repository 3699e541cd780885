package eventbus

import (
	"encoding/json"
	"fmt"
)

// Type names a domain event. The string values are the wire names shared with
// every subscriber, local or remote.
type Type string

const (
	TaskCompleted   Type = "taskCompleted"
	TaskCreated     Type = "taskCreated"
	BatchCreated    Type = "batchCreated"
	BatchEnrolled   Type = "batchEnrolled"
	ProgressUpdated Type = "progressUpdate"
)

// ProgressUpdate kinds carried in ProgressUpdatePayload.Type.
const (
	UpdateTaskGraded = "taskGraded"
)

// TaskCompletedPayload is emitted after a submission is recorded.
type TaskCompletedPayload struct {
	UserID        string `json:"userId"`
	BatchID       string `json:"batchId"`
	TaskID        string `json:"taskId"`
	PointsEarned  int    `json:"pointsEarned"`
	NewTotalXP    int64  `json:"newTotalXP"`
	CurrentStreak int    `json:"currentStreak"`
}

// TaskCreatedPayload is emitted after a task is added to a batch.
type TaskCreatedPayload struct {
	TaskID  string `json:"taskId"`
	BatchID string `json:"batchId"`
	Points  int    `json:"points"`
}

// BatchCreatedPayload is emitted after a batch is created with its initial members.
type BatchCreatedPayload struct {
	BatchID            string `json:"batchId"`
	TotalUsersAffected int    `json:"totalUsersAffected"`
}

// BatchEnrolledPayload is emitted after users join an existing batch.
// Users that were already members are not listed.
type BatchEnrolledPayload struct {
	BatchID            string   `json:"batchId"`
	UserIDs            []string `json:"userIds"`
	TotalUsersAffected int      `json:"totalUsersAffected"`
}

// ProgressUpdatePayload is a generic progress change, discriminated by Type.
type ProgressUpdatePayload struct {
	Type    string   `json:"type"`
	UserID  string   `json:"userId,omitempty"`
	BatchID string   `json:"batchId,omitempty"`
	TaskID  string   `json:"taskId,omitempty"`
	Grade   *float64 `json:"grade,omitempty"`
}

// DecodePayload converts a JSON payload received from a remote transport back into
// the typed payload for eventType. Unknown event types decode to map[string]any.
func DecodePayload(eventType Type, raw json.RawMessage) (any, error) {
	var target any
	switch eventType {
	case TaskCompleted:
		target = &TaskCompletedPayload{}
	case TaskCreated:
		target = &TaskCreatedPayload{}
	case BatchCreated:
		target = &BatchCreatedPayload{}
	case BatchEnrolled:
		target = &BatchEnrolledPayload{}
	case ProgressUpdated:
		target = &ProgressUpdatePayload{}
	default:
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
		}
		return generic, nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
	}

	// Deliver values, matching what local emitters pass
	switch p := target.(type) {
	case *TaskCompletedPayload:
		return *p, nil
	case *TaskCreatedPayload:
		return *p, nil
	case *BatchCreatedPayload:
		return *p, nil
	case *BatchEnrolledPayload:
		return *p, nil
	case *ProgressUpdatePayload:
		return *p, nil
	}
	return target, nil
}
