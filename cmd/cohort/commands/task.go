package commands

import (
	"context"
	"strconv"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var (
	taskBatch        string
	taskTitle        string
	taskDescription  string
	taskPoints       int
	taskAutoComplete bool
	taskListBatch    string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage a batch's tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a task to a batch",
	Long: `Add a task to a batch. Every learner already in the batch gets a
not-started entry for it.

Auto-complete tasks are completed as soon as they are submitted.

Examples:
  cohort task create --batch <batch-id> --title "Hello, World" --points 10`,
	RunE: runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a batch's tasks",
	RunE:  runTaskList,
}

func init() {
	taskCreateCmd.Flags().StringVarP(&taskBatch, "batch", "b", "", "Batch ID (required)")
	taskCreateCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskCreateCmd.Flags().StringVar(&taskDescription, "description", "", "Task description")
	taskCreateCmd.Flags().IntVar(&taskPoints, "points", 0, "XP awarded on submission")
	taskCreateCmd.Flags().BoolVar(&taskAutoComplete, "auto-complete", false, "Complete the task on submission without grading")
	_ = taskCreateCmd.MarkFlagRequired("batch")
	_ = taskCreateCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVarP(&taskListBatch, "batch", "b", "", "Batch ID (required)")
	_ = taskListCmd.MarkFlagRequired("batch")

	taskCmd.AddCommand(taskCreateCmd, taskListCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	batchID, err := resolveBatch(ctx, c, taskBatch)
	if err != nil {
		return err
	}

	task, err := c.CreateTask(ctx, academy.CreateTaskRequest{
		BatchID:      batchID,
		Title:        taskTitle,
		Description:  taskDescription,
		Points:       taskPoints,
		AutoComplete: taskAutoComplete,
	})
	if err != nil {
		return reportError("task creation", err)
	}

	printer.Success("Task created: %s\n", task.ID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	batchID, err := resolveBatch(ctx, c, taskListBatch)
	if err != nil {
		return err
	}

	tasks, err := c.Tasks(ctx, batchID)
	if err != nil {
		return reportError("listing tasks", err)
	}

	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{t.ID, t.Title, strconv.Itoa(t.Points), strconv.FormatBool(t.AutoComplete)}
	}
	return printer.Table([]string{"ID", "Title", "Points", "Auto-complete"}, rows)
}
