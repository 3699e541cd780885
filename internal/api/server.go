// Package api serves the academy operations as a JSON API over HTTP.
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Academy is the set of operations the API exposes. *academy.Service satisfies it.
type Academy interface {
	Health(ctx context.Context) error

	SubmitTask(ctx context.Context, req academy.SubmitRequest) (*academy.SubmitResult, error)
	GradeSubmission(ctx context.Context, submissionID string, req academy.GradeRequest) (*academy.GradeResult, error)
	CreateTask(ctx context.Context, req academy.CreateTaskRequest) (*progress.Task, error)
	CreateBatch(ctx context.Context, req academy.CreateBatchRequest) (*academy.BatchResult, error)
	EnrollUsers(ctx context.Context, batchID string, req academy.EnrollRequest) (*academy.BatchResult, error)
	RecordActivity(ctx context.Context, userID, batchID string, entry progress.ActivityLogEntry) (*progress.UserBatchProgress, error)

	Dashboard(ctx context.Context, userID string) (*academy.Dashboard, error)
	Batches(ctx context.Context) ([]*progress.Batch, error)
	Tasks(ctx context.Context, batchID string) ([]*progress.Task, error)
	BatchProgress(ctx context.Context, batchID string) ([]*progress.UserBatchProgress, error)
	UserProgress(ctx context.Context, userID string) ([]*progress.UserBatchProgress, error)
	Activity(ctx context.Context, userID, batchID string, since, until time.Time) ([]progress.ActivityLogEntry, error)
}

// Options configures a Server.
type Options struct {
	Address     string
	Academy     Academy
	Logger      *log.Logger
	LogRequests bool
}

// Server is the cohort HTTP API.
type Server struct {
	opts     Options
	app      *echo.Echo
	validate *validator.Validate
	logger   *log.Logger
}

// NewServer builds the API and registers its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("api")
	}

	s := &Server{
		opts:     opts,
		app:      echo.New(),
		validate: newValidator(),
		logger:   logger,
	}
	s.setup()
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.HTTPErrorHandler = s.httpErrorHandler
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.Recover())
	if s.opts.LogRequests {
		s.app.Use(s.requestLogger)
	}

	s.app.GET("/healthz", s.health)

	v1 := s.app.Group("/v1")
	s.registerSubmissionRoutes(v1)
	s.registerBatchRoutes(v1)
	s.registerUserRoutes(v1)
}

// Start serves until Stop is called. It returns http.ErrServerClosed after a clean stop.
func (s *Server) Start() error {
	s.logger.Info("API listening", "address", s.opts.Address)
	return s.app.Start(s.opts.Address)
}

// Stop gracefully shuts the server down, waiting for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// ServeHTTP lets tests drive the API without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		s.logger.Info("request",
			"method", ctx.Request().Method,
			"path", ctx.Path(),
			"status", ctx.Response().Status,
			"duration", time.Since(start),
		)
		return nil
	}
}

func (s *Server) health(ctx echo.Context) error {
	if err := s.opts.Academy.Health(ctx.Request().Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unhealthy", "error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// bind decodes the request body into v and validates it.
func (s *Server) bind(ctx echo.Context, v interface{}) error {
	if err := ctx.Bind(v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}
