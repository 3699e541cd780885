package commands

import (
	"strings"

	"github.com/dyluth/cohort/internal/printer"
	"github.com/dyluth/cohort/internal/scaffold"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter cohort.yml",
	Long: `Write a cohort.yml in the current directory listing every setting with
its default value.

Examples:
  cohort init
  cohort init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing cohort.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := scaffold.Initialize(".", initForce)
	if err != nil {
		title, detail, _ := strings.Cut(err.Error(), "\n\n")
		return printer.Error(title, strings.TrimSpace(detail), nil)
	}

	printer.Success("Created %s\n", path)
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Start Redis:       cohort up\n")
	printer.Info("  2. Start cohortd:     run the command 'cohort up' prints\n")
	printer.Info("  3. Create a batch:    cohort batch create --name <name> --user <user-id>\n")
	return nil
}
