package api

import (
	"net/http"
	"time"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/labstack/echo/v4"
)

// ActivityRequest records a non-grading activity for a learner.
type ActivityRequest struct {
	Action      progress.ActivityAction `json:"action" validate:"required"`
	TaskRef     string                  `json:"task_ref" validate:"omitempty,uuid"`
	Description string                  `json:"description"`
	Metadata    map[string]any          `json:"metadata"`
}

func (s *Server) registerSubmissionRoutes(g *echo.Group) {
	g.POST("/submissions", s.submitTask)
	g.POST("/submissions/:id/grade", s.gradeSubmission)
	g.POST("/tasks", s.createTask)
}

func (s *Server) registerBatchRoutes(g *echo.Group) {
	g.GET("/batches", s.listBatches)
	g.POST("/batches", s.createBatch)
	g.POST("/batches/:id/enroll", s.enrollUsers)
	g.GET("/batches/:id/tasks", s.listTasks)
	g.GET("/batches/:id/progress", s.batchProgress)
}

func (s *Server) registerUserRoutes(g *echo.Group) {
	g.GET("/users/:id/dashboard", s.dashboard)
	g.GET("/users/:id/progress", s.userProgress)
	g.GET("/users/:id/batches/:batch/activity", s.listActivity)
	g.POST("/users/:id/batches/:batch/activity", s.recordActivity)
}

func (s *Server) submitTask(ctx echo.Context) error {
	var req academy.SubmitRequest
	if err := s.bind(ctx, &req); err != nil {
		return err
	}
	res, err := s.opts.Academy.SubmitTask(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (s *Server) gradeSubmission(ctx echo.Context) error {
	var req academy.GradeRequest
	if err := s.bind(ctx, &req); err != nil {
		return err
	}
	res, err := s.opts.Academy.GradeSubmission(ctx.Request().Context(), ctx.Param("id"), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) createTask(ctx echo.Context) error {
	var req academy.CreateTaskRequest
	if err := s.bind(ctx, &req); err != nil {
		return err
	}
	task, err := s.opts.Academy.CreateTask(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (s *Server) createBatch(ctx echo.Context) error {
	var req academy.CreateBatchRequest
	if err := s.bind(ctx, &req); err != nil {
		return err
	}
	res, err := s.opts.Academy.CreateBatch(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (s *Server) enrollUsers(ctx echo.Context) error {
	var req academy.EnrollRequest
	if err := s.bind(ctx, &req); err != nil {
		return err
	}
	res, err := s.opts.Academy.EnrollUsers(ctx.Request().Context(), ctx.Param("id"), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) listBatches(ctx echo.Context) error {
	batches, err := s.opts.Academy.Batches(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (s *Server) listTasks(ctx echo.Context) error {
	tasks, err := s.opts.Academy.Tasks(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (s *Server) batchProgress(ctx echo.Context) error {
	list, err := s.opts.Academy.BatchProgress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, list)
}

func (s *Server) dashboard(ctx echo.Context) error {
	d, err := s.opts.Academy.Dashboard(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (s *Server) userProgress(ctx echo.Context) error {
	list, err := s.opts.Academy.UserProgress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, list)
}

func (s *Server) listActivity(ctx echo.Context) error {
	since, err := parseTimeParam(ctx, "since")
	if err != nil {
		return err
	}
	until, err := parseTimeParam(ctx, "until")
	if err != nil {
		return err
	}

	entries, err := s.opts.Academy.Activity(ctx.Request().Context(), ctx.Param("id"), ctx.Param("batch"), since, until)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (s *Server) recordActivity(ctx echo.Context) error {
	var req ActivityRequest
	if err := s.bind(ctx, &req); err != nil {
		return err
	}
	p, err := s.opts.Academy.RecordActivity(ctx.Request().Context(), ctx.Param("id"), ctx.Param("batch"), progress.ActivityLogEntry{
		Action:      req.Action,
		TaskRef:     req.TaskRef,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

// parseTimeParam reads an RFC 3339 query parameter. A missing parameter is the zero time.
func parseTimeParam(ctx echo.Context, name string) (time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339 time")
	}
	return t, nil
}
