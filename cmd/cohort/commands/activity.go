package commands

import (
	"context"
	"time"

	"github.com/dyluth/cohort/internal/filter"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/dyluth/cohort/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	activityUser   string
	activityBatch  string
	activitySince  string
	activityUntil  string
	activityAction string
	activityTask   string
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show a learner's activity history in a batch",
	Long: `Show a learner's activity history in a batch, oldest first.

--since and --until accept RFC3339 timestamps, dates (2024-05-01), day counts
(7d) or durations (90m, 2h) meaning that long ago.

Examples:
  cohort activity --user ana --batch <batch-id>
  cohort activity --user ana --batch <batch-id> --since 7d
  cohort activity --user ana --batch <batch-id> --since 2024-05-01 --until 2024-05-08
  cohort activity --user ana --batch <batch-id> --action 'task_*' --task <task-id>`,
	RunE: runActivity,
}

func init() {
	activityCmd.Flags().StringVarP(&activityUser, "user", "u", "", "Learner user ID (required)")
	activityCmd.Flags().StringVarP(&activityBatch, "batch", "b", "", "Batch ID (required)")
	activityCmd.Flags().StringVar(&activitySince, "since", "", "Only show activity at or after this time")
	activityCmd.Flags().StringVar(&activityUntil, "until", "", "Only show activity at or before this time")
	activityCmd.Flags().StringVar(&activityAction, "action", "", "Only show actions matching this glob, e.g. 'task_*'")
	activityCmd.Flags().StringVar(&activityTask, "task", "", "Only show activity for this task")
	_ = activityCmd.MarkFlagRequired("user")
	_ = activityCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(activityCmd)
}

func runActivity(cmd *cobra.Command, args []string) error {
	since, until, err := timespec.ParseRange(activitySince, activityUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), []string{"Use e.g. --since 7d or --since 2024-05-01T09:00:00Z"})
	}

	criteria := filter.Criteria{ActionGlob: activityAction}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid --action", err.Error(), []string{"Use a glob such as 'task_*'"})
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	batchID, err := resolveBatch(ctx, c, activityBatch)
	if err != nil {
		return err
	}

	if activityTask != "" {
		if criteria.TaskRef, err = resolveTask(ctx, c, batchID, activityTask); err != nil {
			return err
		}
	}

	entries, err := c.Activity(ctx, activityUser, batchID, since, until)
	if err != nil {
		return reportError("loading activity", err)
	}
	entries = criteria.Apply(entries)

	if len(entries) == 0 {
		printer.Info("No activity in range\n")
		return nil
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{formatTime(e.Timestamp), string(e.Action), e.TaskRef, e.Description}
	}
	return printer.Table([]string{"Time", "Action", "Task", "Description"}, rows)
}
