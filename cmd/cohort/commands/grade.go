package commands

import (
	"context"

	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var (
	gradeValue    float64
	gradeFeedback string
)

var gradeCmd = &cobra.Command{
	Use:   "grade <submission-id>",
	Short: "Grade a submission",
	Long: `Grade a submission from 0 to 100.

Examples:
  cohort grade <submission-id> --grade 85 --feedback "Clean solution"`,
	Args: cobra.ExactArgs(1),
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().Float64VarP(&gradeValue, "grade", "g", 0, "Grade from 0 to 100 (required)")
	gradeCmd.Flags().StringVar(&gradeFeedback, "feedback", "", "Feedback for the learner")
	_ = gradeCmd.MarkFlagRequired("grade")
	rootCmd.AddCommand(gradeCmd)
}

func runGrade(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	res, err := c.GradeSubmission(context.Background(), args[0], academy.GradeRequest{
		Grade:    gradeValue,
		Feedback: gradeFeedback,
	})
	if err != nil {
		return reportError("grading", err)
	}

	m := res.Progress.Metrics
	printer.Success("Graded %s: %.1f\n", res.Submission.ID, gradeValue)
	printer.Info("  Learner %s now at %d%% complete, average grade %.1f\n",
		res.Submission.UserID, m.CompletionPercentage, m.AverageGrade)
	return nil
}
