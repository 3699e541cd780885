package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/spf13/cobra"
)

var (
	progressUser  string
	progressBatch string
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show learner progress",
	Long: `Show learner progress.

With --batch, lists every member of the batch. With --user, shows the learner's
dashboard across all their batches. With both, shows the learner's tasks in that
batch.

Examples:
  cohort progress --batch <batch-id>
  cohort progress --user ana
  cohort progress --user ana --batch <batch-id>`,
	RunE: runProgress,
}

func init() {
	progressCmd.Flags().StringVarP(&progressUser, "user", "u", "", "Learner user ID")
	progressCmd.Flags().StringVarP(&progressBatch, "batch", "b", "", "Batch ID")
	progressCmd.MarkFlagsOneRequired("user", "batch")
	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, err := newAPIClient()
	if err != nil {
		return err
	}

	batchID := progressBatch
	if batchID != "" {
		if batchID, err = resolveBatch(ctx, c, batchID); err != nil {
			return err
		}
	}

	switch {
	case progressUser != "" && batchID != "":
		list, err := c.UserProgress(ctx, progressUser)
		if err != nil {
			return reportError("loading progress", err)
		}
		for _, p := range list {
			if p.BatchID == batchID {
				return printTaskTable(p)
			}
		}
		return printer.Error(
			"learner not enrolled",
			fmt.Sprintf("%s has no progress in batch %s.", progressUser, batchID),
			[]string{"Enroll the learner first:\n  cohort batch enroll " + batchID + " --user " + progressUser},
		)

	case progressUser != "":
		d, err := c.Dashboard(ctx, progressUser)
		if err != nil {
			return reportError("loading dashboard", err)
		}
		return printDashboard(d)

	default:
		list, err := c.BatchProgress(ctx, batchID)
		if err != nil {
			return reportError("loading progress", err)
		}
		return printBatchProgress(list)
	}
}

func printDashboard(d *academy.Dashboard) error {
	printer.Info("%s: %d XP\n\n", d.UserID, d.XP)
	rows := make([][]string, len(d.Batches))
	for i, b := range d.Batches {
		rows[i] = []string{
			b.Name,
			fmt.Sprintf("%d/%d", b.Metrics.CompletedTasks, b.Metrics.TotalTasks),
			strconv.Itoa(b.Metrics.CompletionPercentage) + "%",
			formatGrade(b.Metrics),
			strconv.Itoa(b.Streak),
			formatTime(b.LastActiveAt),
		}
	}
	return printer.Table([]string{"Batch", "Done", "Completion", "Avg grade", "Streak", "Last active"}, rows)
}

func printBatchProgress(list []*progress.UserBatchProgress) error {
	rows := make([][]string, len(list))
	for i, p := range list {
		m := p.Metrics
		rows[i] = []string{
			p.UserID,
			fmt.Sprintf("%d/%d", m.CompletedTasks, m.TotalTasks),
			strconv.Itoa(m.SubmittedTasks),
			strconv.Itoa(m.CompletionPercentage) + "%",
			formatGrade(m),
			strconv.Itoa(m.TotalPointsEarned),
			formatTime(p.LastActiveAt),
		}
	}
	return printer.Table([]string{"User", "Done", "Awaiting grade", "Completion", "Avg grade", "Points", "Last active"}, rows)
}

func printTaskTable(p *progress.UserBatchProgress) error {
	ids := make([]string, 0, len(p.Tasks))
	for id := range p.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, len(ids))
	for i, id := range ids {
		e := p.Tasks[id]
		grade := "-"
		if e.Grade != nil {
			grade = strconv.FormatFloat(*e.Grade, 'f', 1, 64)
		}
		rows[i] = []string{id, printer.Status(string(e.Status)), grade, strconv.Itoa(e.PointsEarned), strconv.Itoa(e.Attempts)}
	}
	return printer.Table([]string{"Task", "Status", "Grade", "Points", "Attempts"}, rows)
}

func formatGrade(m progress.ProgressMetrics) string {
	if m.GradedTasks == 0 {
		return "-"
	}
	return strconv.FormatFloat(m.AverageGrade, 'f', 1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
