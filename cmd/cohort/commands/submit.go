package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var (
	submitUser    string
	submitBatch   string
	submitTask    string
	submitContent string
	submitFile    string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a learner's answer to a task",
	Long: `Submit a learner's answer to a task.

Each learner can submit a task once. The answer is taken from --content, or
from --file ('-' reads stdin).

Examples:
  cohort submit --user ana --batch <batch-id> --task <task-id> --content "https://github.com/ana/hello"
  cohort submit --user ana --batch <batch-id> --task <task-id> --file answer.md`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitUser, "user", "u", "", "Learner user ID (required)")
	submitCmd.Flags().StringVarP(&submitBatch, "batch", "b", "", "Batch ID (required)")
	submitCmd.Flags().StringVarP(&submitTask, "task", "t", "", "Task ID (required)")
	submitCmd.Flags().StringVarP(&submitContent, "content", "c", "", "Submission content")
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Read submission content from a file ('-' for stdin)")
	submitCmd.MarkFlagsMutuallyExclusive("content", "file")
	_ = submitCmd.MarkFlagRequired("user")
	_ = submitCmd.MarkFlagRequired("batch")
	_ = submitCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	content := submitContent
	if submitFile != "" {
		data, err := readInput(cmd, submitFile)
		if err != nil {
			return printer.Error("cannot read submission", err.Error(), nil)
		}
		content = string(data)
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}

	batchID, err := resolveBatch(ctx, c, submitBatch)
	if err != nil {
		return err
	}
	taskID, err := resolveTask(ctx, c, batchID, submitTask)
	if err != nil {
		return err
	}

	res, err := c.SubmitTask(ctx, academy.SubmitRequest{
		UserID:  submitUser,
		BatchID: batchID,
		TaskID:  taskID,
		Content: content,
	})
	if err != nil {
		return reportError("submission", err)
	}

	entry := res.Progress.Tasks[taskID]
	printer.Success("Submission %s recorded\n", res.Submission.ID)
	printer.Info("  Status:     %s\n", printer.Status(string(entry.Status)))
	printer.Info("  Points:     +%d (total XP %d)\n", res.PointsEarned, res.NewTotalXP)
	printer.Info("  Streak:     %d day(s)\n", res.CurrentStreak)
	printer.Info("  Completion: %d%%\n", res.Progress.Metrics.CompletionPercentage)
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
