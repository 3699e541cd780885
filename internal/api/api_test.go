package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/ledger"
	"github.com/dyluth/cohort/internal/testutil"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	stack := testutil.NewStack(t, func() time.Time { return testNow })
	return NewServer(Options{Academy: stack.Service, Logger: stack.Logger, LogRequests: true}), stack.Redis
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Code)
	assert.NotEmpty(t, resp.Error)
	return resp
}

// seed creates a batch with the given members and one task per points value.
func seed(t *testing.T, s *Server, users []string, points ...int) (*progress.Batch, []*progress.Task) {
	t.Helper()

	rec := doRequest(t, s, http.MethodPost, "/v1/batches", academy.CreateBatchRequest{Name: "Go 101", UserIDs: users})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decode[academy.BatchResult](t, rec).Batch

	tasks := make([]*progress.Task, len(points))
	for i, p := range points {
		rec := doRequest(t, s, http.MethodPost, "/v1/tasks", academy.CreateTaskRequest{BatchID: batch.ID, Title: "task", Points: p})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		tasks[i] = decode[*progress.Task](t, rec)
	}
	return batch, tasks
}

func TestHealth(t *testing.T) {
	s, mr := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBatchRoutes(t *testing.T) {
	s, _ := setupTestServer(t)

	t.Run("create batch enrolls initial members", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/batches", academy.CreateBatchRequest{Name: "Go 101", UserIDs: []string{"ana", "ben"}})
		require.Equal(t, http.StatusCreated, rec.Code)

		res := decode[academy.BatchResult](t, rec)
		assert.Equal(t, "Go 101", res.Batch.Name)
		assert.Equal(t, 2, res.TotalUsersAffected)
	})

	t.Run("enroll counts only new members", func(t *testing.T) {
		batch, _ := seed(t, s, []string{"ana"})

		rec := doRequest(t, s, http.MethodPost, "/v1/batches/"+batch.ID+"/enroll", academy.EnrollRequest{UserIDs: []string{"ana", "cy"}})
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[academy.BatchResult](t, rec)
		assert.Equal(t, []string{"cy"}, res.Enrolled)
		assert.Equal(t, 1, res.TotalUsersAffected)
	})

	t.Run("enroll into unknown batch", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/batches/"+uuid.New().String()+"/enroll", academy.EnrollRequest{UserIDs: []string{"ana"}})
		assertError(t, rec, http.StatusNotFound, CodeBatchNotFound)
	})

	t.Run("enroll requires users", func(t *testing.T) {
		batch, _ := seed(t, s, nil)
		rec := doRequest(t, s, http.MethodPost, "/v1/batches/"+batch.ID+"/enroll", academy.EnrollRequest{})
		resp := assertError(t, rec, http.StatusBadRequest, CodeValidationFailed)
		assert.Contains(t, resp.Fields, "user_ids")
	})

	t.Run("list batches and tasks", func(t *testing.T) {
		batch, tasks := seed(t, s, nil, 10, 20)

		rec := doRequest(t, s, http.MethodGet, "/v1/batches", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decode[[]*progress.Batch](t, rec))

		rec = doRequest(t, s, http.MethodGet, "/v1/batches/"+batch.ID+"/tasks/", nil)
		require.Equal(t, http.StatusOK, rec.Code, "trailing slash is tolerated")
		listed := decode[[]*progress.Task](t, rec)
		require.Len(t, listed, 2)
		assert.Equal(t, tasks[0].ID, listed[0].ID)
	})

	t.Run("create task in unknown batch", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/tasks", academy.CreateTaskRequest{BatchID: uuid.New().String(), Title: "t"})
		assertError(t, rec, http.StatusNotFound, CodeBatchNotFound)
	})
}

func TestSubmissionRoutes(t *testing.T) {
	s, _ := setupTestServer(t)
	batch, tasks := seed(t, s, []string{"ana"}, 10, 20)

	var submissionID string

	t.Run("submit records progress", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{
			UserID: "ana", BatchID: batch.ID, TaskID: tasks[0].ID, Content: "answer",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		res := decode[academy.SubmitResult](t, rec)
		submissionID = res.Submission.ID
		assert.Equal(t, 10, res.PointsEarned)
		assert.Equal(t, int64(10), res.NewTotalXP)
		assert.Equal(t, 1, res.CurrentStreak)
		assert.Equal(t, progress.TaskStatusSubmitted, res.Progress.Tasks[tasks[0].ID].Status)
	})

	t.Run("second submission is a conflict", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{
			UserID: "ana", BatchID: batch.ID, TaskID: tasks[0].ID, Content: "again",
		})
		assertError(t, rec, http.StatusConflict, CodeDuplicateSubmission)
	})

	t.Run("missing fields are reported by json name", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{UserID: "ana", BatchID: batch.ID})
		resp := assertError(t, rec, http.StatusBadRequest, CodeValidationFailed)
		assert.Contains(t, resp.Fields, "task_id")
		assert.Contains(t, resp.Fields, "content")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", `{"user_id":`)
		assertError(t, rec, http.StatusBadRequest, CodeBadRequest)
	})

	t.Run("task from another batch", func(t *testing.T) {
		other, _ := seed(t, s, []string{"ana"})
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{
			UserID: "ana", BatchID: other.ID, TaskID: tasks[1].ID, Content: "x",
		})
		assertError(t, rec, http.StatusNotFound, CodeTaskNotFound)
	})

	t.Run("learner not enrolled", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{
			UserID: "zed", BatchID: batch.ID, TaskID: tasks[1].ID, Content: "x",
		})
		assertError(t, rec, http.StatusNotFound, CodeProgressNotFound)
	})

	t.Run("invalid user ID", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{
			UserID: "a:b", BatchID: batch.ID, TaskID: tasks[1].ID, Content: "x",
		})
		assertError(t, rec, http.StatusBadRequest, CodeValidationFailed)
	})

	t.Run("grade out of range", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions/"+submissionID+"/grade", academy.GradeRequest{Grade: 150})
		resp := assertError(t, rec, http.StatusBadRequest, CodeValidationFailed)
		assert.Equal(t, "failed lte=100", resp.Fields["grade"])
	})

	t.Run("grade unknown submission", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions/"+uuid.New().String()+"/grade", academy.GradeRequest{Grade: 90})
		assertError(t, rec, http.StatusNotFound, CodeSubmissionNotFound)
	})

	t.Run("grade updates metrics", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/v1/submissions/"+submissionID+"/grade", academy.GradeRequest{Grade: 90, Feedback: "nice"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := decode[academy.GradeResult](t, rec)
		require.NotNil(t, res.Submission.Grade)
		assert.Equal(t, 90.0, *res.Submission.Grade)
		assert.Equal(t, 90.0, res.Progress.Metrics.AverageGrade)
		assert.Equal(t, 50.0, res.Progress.Metrics.CompletionPercentage)
	})
}

func TestUserRoutes(t *testing.T) {
	s, _ := setupTestServer(t)
	batch, tasks := seed(t, s, []string{"ana"}, 10)

	rec := doRequest(t, s, http.MethodPost, "/v1/submissions", academy.SubmitRequest{
		UserID: "ana", BatchID: batch.ID, TaskID: tasks[0].ID, Content: "answer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("dashboard", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/v1/users/ana/dashboard", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		d := decode[academy.Dashboard](t, rec)
		assert.Equal(t, int64(10), d.XP)
		require.Len(t, d.Batches, 1)
		assert.Equal(t, "Go 101", d.Batches[0].Name)
		assert.Equal(t, 1, d.Batches[0].Streak)
	})

	t.Run("user and batch progress", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/v1/users/ana/progress", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]*progress.UserBatchProgress](t, rec), 1)

		rec = doRequest(t, s, http.MethodGet, "/v1/batches/"+batch.ID+"/progress", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]*progress.UserBatchProgress](t, rec)
		require.Len(t, list, 1)
		assert.Equal(t, "ana", list[0].UserID)
	})

	t.Run("activity with time filters", func(t *testing.T) {
		path := "/v1/users/ana/batches/" + batch.ID + "/activity"

		rec := doRequest(t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decode[[]progress.ActivityLogEntry](t, rec)
		require.Len(t, entries, 2)
		assert.Equal(t, progress.ActionMilestoneReached, entries[0].Action)
		assert.Equal(t, progress.ActionTaskSubmitted, entries[1].Action)

		rec = doRequest(t, s, http.MethodGet, path+"?since="+testNow.Add(time.Hour).Format(time.RFC3339), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]progress.ActivityLogEntry](t, rec))

		rec = doRequest(t, s, http.MethodGet, path+"?since=yesterday", nil)
		assertError(t, rec, http.StatusBadRequest, CodeBadRequest)
	})

	t.Run("record activity", func(t *testing.T) {
		path := "/v1/users/ana/batches/" + batch.ID + "/activity"

		rec := doRequest(t, s, http.MethodPost, path, ActivityRequest{Action: progress.ActionTaskStarted, TaskRef: tasks[0].ID})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		p := decode[*progress.UserBatchProgress](t, rec)
		assert.Equal(t, progress.ActionTaskStarted, p.Activity[len(p.Activity)-1].Action)

		rec = doRequest(t, s, http.MethodPost, path, ActivityRequest{Action: progress.ActionTaskGraded})
		assertError(t, rec, http.StatusBadRequest, CodeValidationFailed)
	})

	t.Run("activity for unknown enrollment", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/v1/users/zed/batches/"+batch.ID+"/activity", nil)
		assertError(t, rec, http.StatusNotFound, CodeProgressNotFound)
	})
}

func TestErrorForCode(t *testing.T) {
	assert.ErrorIs(t, ErrorForCode(CodeDuplicateSubmission), ledger.ErrDuplicateSubmission)
	assert.ErrorIs(t, ErrorForCode(CodeBatchNotFound), academy.ErrBatchNotFound)
	assert.ErrorIs(t, ErrorForCode(CodeUpdateConflict), progress.ErrConflict)
	assert.Nil(t, ErrorForCode(CodeInternal))
	assert.Nil(t, ErrorForCode("nonsense"))
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	s := NewServer(Options{Academy: failingAcademy{}, Logger: log.New(io.Discard)})

	rec := doRequest(t, s, http.MethodGet, "/v1/batches", nil)
	resp := assertError(t, rec, http.StatusInternalServerError, CodeInternal)
	assert.NotContains(t, resp.Error, "secret", "internal details must not leak")
}

type failingAcademy struct{ Academy }

func (failingAcademy) Batches(context.Context) ([]*progress.Batch, error) {
	return nil, errors.New("secret connection string in error")
}
