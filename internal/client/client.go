// Package client talks to the cohort API over HTTP.
//
// Errors the API reports with a known code come back as the same sentinel errors the
// server raised, so callers can use errors.Is regardless of which side of the wire
// they are on. Anything that prevents a response from arriving is ErrNetworkFailure.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/api"
	"github.com/dyluth/cohort/pkg/progress"
)

// DefaultTimeout bounds a single request when the caller's context has no deadline.
const DefaultTimeout = 10 * time.Second

// ErrNetworkFailure is returned when the API could not be reached or its response
// could not be read.
var ErrNetworkFailure = errors.New("network failure")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s (%d %s): %v", e.Message, e.Status, e.Code, e.Fields)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// Unwrap maps the API error code back to its sentinel.
func (e *APIError) Unwrap() error {
	return api.ErrorForCode(e.Code)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health checks that the API and its store are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// SubmitTask submits a learner's answer.
func (c *Client) SubmitTask(ctx context.Context, req academy.SubmitRequest) (*academy.SubmitResult, error) {
	var res academy.SubmitResult
	if err := c.do(ctx, http.MethodPost, "/v1/submissions", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GradeSubmission grades a submission.
func (c *Client) GradeSubmission(ctx context.Context, submissionID string, req academy.GradeRequest) (*academy.GradeResult, error) {
	var res academy.GradeResult
	if err := c.do(ctx, http.MethodPost, "/v1/submissions/"+url.PathEscape(submissionID)+"/grade", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateTask adds a task to a batch.
func (c *Client) CreateTask(ctx context.Context, req academy.CreateTaskRequest) (*progress.Task, error) {
	var task progress.Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateBatch creates a batch.
func (c *Client) CreateBatch(ctx context.Context, req academy.CreateBatchRequest) (*academy.BatchResult, error) {
	var res academy.BatchResult
	if err := c.do(ctx, http.MethodPost, "/v1/batches", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EnrollUsers adds users to a batch.
func (c *Client) EnrollUsers(ctx context.Context, batchID string, req academy.EnrollRequest) (*academy.BatchResult, error) {
	var res academy.BatchResult
	if err := c.do(ctx, http.MethodPost, "/v1/batches/"+url.PathEscape(batchID)+"/enroll", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RecordActivity records a non-grading activity.
func (c *Client) RecordActivity(ctx context.Context, userID, batchID string, req api.ActivityRequest) (*progress.UserBatchProgress, error) {
	var p progress.UserBatchProgress
	if err := c.do(ctx, http.MethodPost, activityPath(userID, batchID), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Dashboard returns a learner's dashboard.
func (c *Client) Dashboard(ctx context.Context, userID string) (*academy.Dashboard, error) {
	var d academy.Dashboard
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Batches lists every batch.
func (c *Client) Batches(ctx context.Context) ([]*progress.Batch, error) {
	var batches []*progress.Batch
	if err := c.do(ctx, http.MethodGet, "/v1/batches", nil, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// Tasks lists a batch's tasks.
func (c *Client) Tasks(ctx context.Context, batchID string) ([]*progress.Task, error) {
	var tasks []*progress.Task
	if err := c.do(ctx, http.MethodGet, "/v1/batches/"+url.PathEscape(batchID)+"/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// BatchProgress lists every member's progress in a batch.
func (c *Client) BatchProgress(ctx context.Context, batchID string) ([]*progress.UserBatchProgress, error) {
	var list []*progress.UserBatchProgress
	if err := c.do(ctx, http.MethodGet, "/v1/batches/"+url.PathEscape(batchID)+"/progress", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// UserProgress lists a learner's progress across batches.
func (c *Client) UserProgress(ctx context.Context, userID string) ([]*progress.UserBatchProgress, error) {
	var list []*progress.UserBatchProgress
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/progress", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Activity returns a learner's activity in a batch. Zero bounds are open.
func (c *Client) Activity(ctx context.Context, userID, batchID string, since, until time.Time) ([]progress.ActivityLogEntry, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if !until.IsZero() {
		q.Set("until", until.UTC().Format(time.RFC3339Nano))
	}
	path := activityPath(userID, batchID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []progress.ActivityLogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func activityPath(userID, batchID string) string {
	return "/v1/users/" + url.PathEscape(userID) + "/batches/" + url.PathEscape(batchID) + "/activity"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetworkFailure, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrNetworkFailure, err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		// Not one of ours, e.g. a proxy error page
		return &APIError{Status: status, Code: api.CodeInternal, Message: strings.TrimSpace(http.StatusText(status))}
	}
	return &APIError{Status: status, Code: body.Code, Message: body.Error, Fields: body.Fields}
}
