package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/api"
	"github.com/dyluth/cohort/internal/client"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/dyluth/cohort/internal/syncer"
	"github.com/dyluth/cohort/internal/testutil"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	client *client.Client
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

// setupTestEnv starts an API over miniredis, points the CLI at it and captures
// printer output.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	stack := testutil.NewStack(t, nil)
	srv := httptest.NewServer(api.NewServer(api.Options{Academy: stack.Service, Logger: stack.Logger}))
	t.Cleanup(srv.Close)

	prevURL := apiURLFlag
	apiURLFlag = srv.URL
	t.Cleanup(func() { apiURLFlag = prevURL })

	var out, errOut bytes.Buffer
	prevOut, prevErr, prevNoColor := printer.Stdout, printer.Stderr, color.NoColor
	printer.Stdout, printer.Stderr, color.NoColor = &out, &errOut, true
	t.Cleanup(func() { printer.Stdout, printer.Stderr, color.NoColor = prevOut, prevErr, prevNoColor })

	c, err := client.New(srv.URL)
	require.NoError(t, err)
	return &testEnv{client: c, out: &out, errOut: &errOut}
}

func (e *testEnv) reset() {
	e.out.Reset()
	e.errOut.Reset()
}

// seed creates a batch with ana and ben and one 10-point task.
func (e *testEnv) seed(t *testing.T) (batchID, taskID string) {
	t.Helper()
	ctx := context.Background()

	b, err := e.client.CreateBatch(ctx, academy.CreateBatchRequest{Name: "Go 101", UserIDs: []string{"ana", "ben"}})
	require.NoError(t, err)
	task, err := e.client.CreateTask(ctx, academy.CreateTaskRequest{BatchID: b.Batch.ID, Title: "Hello, World", Points: 10})
	require.NoError(t, err)
	return b.Batch.ID, task.ID
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Usage:")
	for _, sub := range []string{"up", "down", "list", "submit", "grade", "task", "batch", "progress", "activity", "watch"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestAPIURL(t *testing.T) {
	prev := apiURLFlag
	t.Cleanup(func() { apiURLFlag = prev })

	apiURLFlag = ""
	t.Setenv("COHORT_API_URL", "")
	assert.Equal(t, defaultAPIURL, apiURL())

	t.Setenv("COHORT_API_URL", "http://cohort.internal:9000")
	assert.Equal(t, "http://cohort.internal:9000", apiURL())

	apiURLFlag = "http://localhost:1234"
	assert.Equal(t, "http://localhost:1234", apiURL())
}

func TestLoadConfig(t *testing.T) {
	prev := configPathFlag
	t.Cleanup(func() { configPathFlag = prev })

	dir := t.TempDir()
	path := filepath.Join(dir, "cohort.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\nsync:\n  student_poll_interval: 10s\n"), 0o644))

	configPathFlag = path
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "10s", cfg.Sync.StudentPollInterval.String())

	sc := syncConfig(cfg)
	assert.Equal(t, cfg.Sync.StudentPollInterval, pollFor(sc, syncer.RoleStudent))
	assert.Equal(t, cfg.Sync.OversightPollInterval, pollFor(sc, syncer.RoleMentor))

	configPathFlag = filepath.Join(dir, "missing.yml")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "1.0", cfg.Version)

	_, stderr := captureErrors(t)
	require.NoError(t, os.WriteFile(path, []byte("version: \"2.0\"\n"), 0o644))
	configPathFlag = path
	_, err = loadConfig()
	require.EqualError(t, err, "invalid cohort.yml")
	assert.Contains(t, stderr.String(), "unsupported version")
}

func captureErrors(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := printer.Stdout, printer.Stderr
	printer.Stdout, printer.Stderr = &out, &errOut
	t.Cleanup(func() { printer.Stdout, printer.Stderr = prevOut, prevErr })
	return &out, &errOut
}

func TestBatchCommands(t *testing.T) {
	env := setupTestEnv(t)

	batchName, batchDescription, batchUsers = "Go 101", "", []string{"ana"}
	require.NoError(t, runBatchCreate(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "Batch created:")
	assert.Contains(t, env.out.String(), "1 new member(s): ana")

	batches, err := env.client.Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	id := batches[0].ID

	env.reset()
	enrollUsers = []string{"ana", "ben"}
	require.NoError(t, runBatchEnroll(&cobra.Command{}, []string{id}))
	assert.Contains(t, env.out.String(), "1 new member(s): ben")

	env.reset()
	enrollUsers = []string{"ana"}
	require.NoError(t, runBatchEnroll(&cobra.Command{}, []string{id[:8]}))
	assert.Contains(t, env.out.String(), "No new members")

	env.reset()
	err = runBatchEnroll(&cobra.Command{}, []string{"zzzzzzzz"})
	require.EqualError(t, err, "batch not found")
	assert.Contains(t, env.errOut.String(), "cohort batch list")

	env.reset()
	require.NoError(t, runBatchList(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), id)
	assert.Contains(t, env.out.String(), "Go 101")
}

func TestTaskCommands(t *testing.T) {
	env := setupTestEnv(t)
	batchID, _ := env.seed(t)

	taskBatch, taskTitle, taskDescription, taskPoints, taskAutoComplete = batchID, "Read the tour", "", 5, true
	require.NoError(t, runTaskCreate(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "Task created:")

	env.reset()
	taskListBatch = batchID
	require.NoError(t, runTaskList(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "Hello, World")
	assert.Contains(t, env.out.String(), "Read the tour")
}

func TestSubmitAndGrade(t *testing.T) {
	env := setupTestEnv(t)
	batchID, taskID := env.seed(t)

	submitUser, submitBatch, submitTask, submitContent, submitFile = "ana", batchID, taskID, "https://github.com/ana/hello", ""
	require.NoError(t, runSubmit(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "Status:     submitted")
	assert.Contains(t, env.out.String(), "+10 (total XP 10)")

	t.Run("second submission is rejected with a hint", func(t *testing.T) {
		env.reset()
		err := runSubmit(&cobra.Command{}, nil)
		require.EqualError(t, err, "submission failed")
		assert.Contains(t, env.errOut.String(), "Code: duplicate_submission")
		assert.Contains(t, env.errOut.String(), "cohort grade")
	})

	t.Run("content from stdin", func(t *testing.T) {
		env.reset()
		cmd := &cobra.Command{}
		cmd.SetIn(bytes.NewBufferString("my answer"))
		submitUser, submitContent, submitFile = "ben", "", "-"
		t.Cleanup(func() { submitFile = "" })
		require.NoError(t, runSubmit(cmd, nil))
		assert.Contains(t, env.out.String(), "recorded")
	})

	p, err := env.client.UserProgress(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, p, 1)
	submissionID := p[0].Tasks[taskID].SubmissionRef

	t.Run("grade out of range", func(t *testing.T) {
		env.reset()
		gradeValue, gradeFeedback = 120, ""
		err := runGrade(&cobra.Command{}, []string{submissionID})
		require.EqualError(t, err, "grading failed")
		assert.Contains(t, env.errOut.String(), "Code: validation_failed")
		assert.Contains(t, env.errOut.String(), "Field grade:")
	})

	env.reset()
	gradeValue, gradeFeedback = 85, "Clean solution"
	require.NoError(t, runGrade(&cobra.Command{}, []string{submissionID}))
	assert.Contains(t, env.out.String(), "now at 100% complete, average grade 85.0")
}

func TestProgressCommand(t *testing.T) {
	env := setupTestEnv(t)
	batchID, taskID := env.seed(t)

	_, err := env.client.SubmitTask(context.Background(), academy.SubmitRequest{UserID: "ana", BatchID: batchID, TaskID: taskID, Content: "done"})
	require.NoError(t, err)

	progressUser, progressBatch = "", batchID
	require.NoError(t, runProgress(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "ana")
	assert.Contains(t, env.out.String(), "ben")

	env.reset()
	progressUser, progressBatch = "ana", ""
	require.NoError(t, runProgress(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "ana: 10 XP")
	assert.Contains(t, env.out.String(), "Go 101")

	env.reset()
	progressUser, progressBatch = "ana", batchID
	require.NoError(t, runProgress(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), taskID)
	assert.Contains(t, env.out.String(), "submitted")

	env.reset()
	progressUser, progressBatch = "cy", batchID
	err = runProgress(&cobra.Command{}, nil)
	require.EqualError(t, err, "learner not enrolled")
}

func TestActivityCommand(t *testing.T) {
	env := setupTestEnv(t)
	batchID, taskID := env.seed(t)

	_, err := env.client.SubmitTask(context.Background(), academy.SubmitRequest{UserID: "ana", BatchID: batchID, TaskID: taskID, Content: "done"})
	require.NoError(t, err)

	activityUser, activityBatch, activitySince, activityUntil = "ana", batchID, "1h", ""
	require.NoError(t, runActivity(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), string(progress.ActionTaskSubmitted))

	env.reset()
	activityAction, activityTask = "task_graded", taskID[:8]
	require.NoError(t, runActivity(&cobra.Command{}, nil))
	assert.Contains(t, env.out.String(), "No activity in range")
	activityAction, activityTask = "", ""

	env.reset()
	activitySince, activityUntil = "1h", "2h"
	err = runActivity(&cobra.Command{}, nil)
	require.EqualError(t, err, "invalid time range")
	assert.Contains(t, env.errOut.String(), "--since must be before --until")

	env.reset()
	activityUser, activitySince, activityUntil = "nobody", "", ""
	err = runActivity(&cobra.Command{}, nil)
	require.EqualError(t, err, "loading activity failed")
	assert.Contains(t, env.errOut.String(), "Code: progress_not_found")
	assert.Contains(t, env.errOut.String(), "cohort batch enroll")
}

func TestUnreachableAPI(t *testing.T) {
	_, errOut := captureErrors(t)
	prev := apiURLFlag
	t.Cleanup(func() { apiURLFlag = prev })

	srv := httptest.NewServer(nil)
	apiURLFlag = srv.URL
	srv.Close()

	err := runBatchList(&cobra.Command{}, nil)
	require.EqualError(t, err, "cohort API unreachable")
	assert.Contains(t, errOut.String(), "Could not reach cohortd at "+srv.URL)
}

func TestResolveRedisRequiresInstanceName(t *testing.T) {
	prevRedis, prevInstance := watchRedis, watchInstance
	t.Cleanup(func() { watchRedis, watchInstance = prevRedis, prevInstance })
	t.Setenv("COHORT_INSTANCE_NAME", "")

	watchRedis, watchInstance = "redis://localhost:6379", ""
	_, _, err := resolveRedis(context.Background())
	assert.ErrorContains(t, err, "--instance")

	watchInstance = "spring-2024"
	url, name, err := resolveRedis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379", url)
	assert.Equal(t, "spring-2024", name)
}
