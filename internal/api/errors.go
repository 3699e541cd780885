package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/ledger"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Error codes carried in the "code" field of every error response.
const (
	CodeAlreadyInitialized  = "already_initialized"
	CodeDuplicateSubmission = "duplicate_submission"
	CodeProgressNotFound    = "progress_not_found"
	CodeTaskNotFound        = "task_not_found"
	CodeSubmissionNotFound  = "submission_not_found"
	CodeBatchNotFound       = "batch_not_found"
	CodeUpdateConflict      = "update_conflict"
	CodeValidationFailed    = "validation_failed"
	CodeBadRequest          = "bad_request"
	CodeInternal            = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

type sentinel struct {
	err    error
	code   string
	status int
}

var sentinels = []sentinel{
	{ledger.ErrAlreadyInitialized, CodeAlreadyInitialized, http.StatusConflict},
	{ledger.ErrDuplicateSubmission, CodeDuplicateSubmission, http.StatusConflict},
	{ledger.ErrProgressNotFound, CodeProgressNotFound, http.StatusNotFound},
	{ledger.ErrTaskNotFound, CodeTaskNotFound, http.StatusNotFound},
	{academy.ErrSubmissionNotFound, CodeSubmissionNotFound, http.StatusNotFound},
	{academy.ErrBatchNotFound, CodeBatchNotFound, http.StatusNotFound},
	{progress.ErrConflict, CodeUpdateConflict, http.StatusConflict},
}

// ErrorForCode returns the sentinel error an API error code stands for, or nil for
// codes without one.
func ErrorForCode(code string) error {
	for _, s := range sentinels {
		if s.code == code {
			return s.err
		}
	}
	return nil
}

func (s *Server) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	var (
		status = http.StatusInternalServerError
		body   = ErrorResponse{Error: "internal server error", Code: CodeInternal}
	)

	var (
		httpErr *echo.HTTPError
		valErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body = ErrorResponse{Error: fmt.Sprint(httpErr.Message), Code: CodeBadRequest}
		if status >= http.StatusInternalServerError {
			body.Code = CodeInternal
		}
	case errors.As(err, &valErrs):
		status = http.StatusBadRequest
		body = ErrorResponse{Error: "invalid request", Code: CodeValidationFailed, Fields: fieldErrors(valErrs)}
	case errors.Is(err, progress.ErrInvalid):
		status = http.StatusBadRequest
		body = ErrorResponse{Error: err.Error(), Code: CodeValidationFailed}
	default:
		matched := false
		for _, s := range sentinels {
			if errors.Is(err, s.err) {
				status = s.status
				body = ErrorResponse{Error: err.Error(), Code: s.code}
				matched = true
				break
			}
		}
		if !matched {
			s.logger.Error("request failed", "method", ctx.Request().Method, "path", ctx.Path(), "error", err)
		}
	}

	if ctx.Request().Method == http.MethodHead {
		err = ctx.NoContent(status)
	} else {
		err = ctx.JSON(status, body)
	}
	if err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		if fe.Param() != "" {
			fields[fe.Field()] = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		} else {
			fields[fe.Field()] = fmt.Sprintf("failed %s", fe.Tag())
		}
	}
	return fields
}
