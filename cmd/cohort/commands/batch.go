package commands

import (
	"context"
	"strings"
	"time"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var (
	batchName        string
	batchDescription string
	batchUsers       []string
	enrollUsers      []string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage batches and their members",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a batch",
	Long: `Create a batch, optionally with initial members.

Examples:
  cohort batch create --name "Go 101" --user ana --user ben`,
	RunE: runBatchCreate,
}

var batchEnrollCmd = &cobra.Command{
	Use:   "enroll <batch-id>",
	Short: "Enroll learners in a batch",
	Long: `Enroll learners in a batch. Learners who are already members are skipped.

Examples:
  cohort batch enroll <batch-id> --user cy,dee`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchEnroll,
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batches",
	RunE:  runBatchList,
}

func init() {
	batchCreateCmd.Flags().StringVar(&batchName, "name", "", "Batch name (required)")
	batchCreateCmd.Flags().StringVar(&batchDescription, "description", "", "Batch description")
	batchCreateCmd.Flags().StringSliceVarP(&batchUsers, "user", "u", nil, "Initial member user IDs (repeatable)")
	_ = batchCreateCmd.MarkFlagRequired("name")

	batchEnrollCmd.Flags().StringSliceVarP(&enrollUsers, "user", "u", nil, "User IDs to enroll (repeatable, required)")
	_ = batchEnrollCmd.MarkFlagRequired("user")

	batchCmd.AddCommand(batchCreateCmd, batchEnrollCmd, batchListCmd)
	rootCmd.AddCommand(batchCmd)
}

func runBatchCreate(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	res, err := c.CreateBatch(context.Background(), academy.CreateBatchRequest{
		Name:        batchName,
		Description: batchDescription,
		UserIDs:     batchUsers,
	})
	if err != nil {
		return reportError("batch creation", err)
	}

	printer.Success("Batch created: %s\n", res.Batch.ID)
	printEnrolled(res)
	return nil
}

func runBatchEnroll(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	batchID, err := resolveBatch(ctx, c, args[0])
	if err != nil {
		return err
	}

	res, err := c.EnrollUsers(ctx, batchID, academy.EnrollRequest{UserIDs: enrollUsers})
	if err != nil {
		return reportError("enrollment", err)
	}

	printer.Success("Enrolled in %s\n", res.Batch.Name)
	printEnrolled(res)
	return nil
}

func printEnrolled(res *academy.BatchResult) {
	if res.TotalUsersAffected == 0 {
		printer.Info("  No new members\n")
		return
	}
	printer.Info("  %d new member(s): %s\n", res.TotalUsersAffected, strings.Join(res.Enrolled, ", "))
}

func runBatchList(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	batches, err := c.Batches(context.Background())
	if err != nil {
		return reportError("listing batches", err)
	}

	rows := make([][]string, len(batches))
	for i, b := range batches {
		rows[i] = []string{b.ID, b.Name, time.UnixMilli(b.CreatedAtMs).Format(time.DateTime)}
	}
	return printer.Table([]string{"ID", "Name", "Created"}, rows)
}
