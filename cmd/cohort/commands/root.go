package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/client"
	"github.com/dyluth/cohort/internal/config"
	"github.com/dyluth/cohort/internal/ledger"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/dyluth/cohort/internal/resolver"
	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8080"

var (
	apiURLFlag     string
	configPathFlag string
)

var rootCmd = &cobra.Command{
	Use:   "cohort",
	Short: "cohort - learner progress tracking for cohort-based courses",
	Long: `cohort tracks learners' progress through the tasks of a batch.

Learners submit tasks, mentors grade them, and every change is recorded in a
per-learner progress ledger with an activity history, completion metrics and
streaks. Views such as 'cohort watch' stay current as the ledger changes.

The CLI talks to a cohortd server (COHORT_API_URL, default ` + defaultAPIURL + `).
'cohort up' starts a local Redis for cohortd to use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Cobra's own error printing is silenced since
// commands print formatted errors through the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api", "", "cohortd URL (default $COHORT_API_URL or "+defaultAPIURL+")")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Path to cohort.yml (default $COHORT_CONFIG or ./cohort.yml)")
}

func apiURL() string {
	if apiURLFlag != "" {
		return apiURLFlag
	}
	if env := os.Getenv("COHORT_API_URL"); env != "" {
		return env
	}
	return defaultAPIURL
}

func loadConfig() (*config.CohortConfig, error) {
	path := configPathFlag
	if path == "" {
		path = os.Getenv("COHORT_CONFIG")
	}
	if path == "" {
		path = "cohort.yml"
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, printer.Error(
			"invalid cohort.yml",
			fmt.Sprintf("Could not load %s: %v", path, err),
			[]string{"Fix the file or remove it to use the defaults"},
		)
	}
	return cfg, nil
}

func newAPIClient() (*client.Client, error) {
	c, err := client.New(apiURL())
	if err != nil {
		return nil, printer.Error(
			"invalid API URL",
			err.Error(),
			[]string{"Use a full URL such as " + defaultAPIURL},
		)
	}
	return c, nil
}

// reportError prints err the way users need to see it and returns the error for cobra.
func reportError(action string, err error) error {
	if errors.Is(err, client.ErrNetworkFailure) {
		return printer.Error(
			"cohort API unreachable",
			fmt.Sprintf("Could not reach cohortd at %s.", apiURL()),
			[]string{
				"Start the server:\n  COHORT_INSTANCE_NAME=default-1 REDIS_URL=redis://localhost:6379 cohortd",
				"Point the CLI at a running server:\n  export COHORT_API_URL=http://host:8080",
			},
		)
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return printer.Error(action+" failed", err.Error(), nil)
	}

	details := map[string]string{"Code": apiErr.Code}
	fields := make([]string, 0, len(apiErr.Fields))
	for field := range apiErr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		details["Field "+field] = apiErr.Fields[field]
	}

	return printer.ErrorWithContext(action+" failed", apiErr.Message, details, suggestionsFor(err))
}

func suggestionsFor(err error) []string {
	switch {
	case errors.Is(err, ledger.ErrDuplicateSubmission):
		return []string{"Each task takes one submission per learner. Ask a mentor to grade it:\n  cohort grade <submission-id> --grade <0-100>"}
	case errors.Is(err, ledger.ErrProgressNotFound):
		return []string{"Enroll the learner first:\n  cohort batch enroll <batch-id> --user <user-id>"}
	case errors.Is(err, ledger.ErrTaskNotFound):
		return []string{"List the batch's tasks:\n  cohort task list --batch <batch-id>"}
	case errors.Is(err, academy.ErrBatchNotFound):
		return []string{"List batches:\n  cohort batch list"}
	default:
		return nil
	}
}

// resolveBatch expands a batch ID prefix, printing a formatted error on failure.
func resolveBatch(ctx context.Context, c *client.Client, shortID string) (string, error) {
	id, err := resolver.ResolveBatchID(ctx, c, shortID)
	if err != nil {
		return "", reportResolveError("batch", err)
	}
	return id, nil
}

// resolveTask expands a task ID prefix within batchID.
func resolveTask(ctx context.Context, c *client.Client, batchID, shortID string) (string, error) {
	id, err := resolver.ResolveTaskID(ctx, c, batchID, shortID)
	if err != nil {
		return "", reportResolveError("task", err)
	}
	return id, nil
}

func reportResolveError(kind string, err error) error {
	var amb *resolver.AmbiguousError
	var nf *resolver.NotFoundError
	switch {
	case errors.As(err, &amb):
		return printer.Error("ambiguous "+kind+" ID", resolver.FormatAmbiguousError(amb), nil)
	case errors.As(err, &nf):
		return printer.Error(kind+" not found", err.Error(), []string{"List them:\n  cohort " + kind + " list"})
	case errors.Is(err, client.ErrNetworkFailure):
		return reportError("resolving "+kind+" ID", err)
	default:
		return printer.Error("invalid "+kind+" ID", err.Error(), nil)
	}
}
