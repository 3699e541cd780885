package commands

import (
	"context"
	"errors"
	"fmt"

	dockerpkg "github.com/dyluth/cohort/internal/docker"
	"github.com/dyluth/cohort/internal/instance"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var downInstanceName string

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove a cohort instance's Redis",
	Long: `Stop and remove the containers of a cohort instance.

The instance is inferred when exactly one exists. Data held in the instance's
Redis is removed with it.

Examples:
  cohort down
  cohort down --name spring-2024`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVarP(&downInstanceName, "name", "n", "", "Target instance name (inferred if omitted)")
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), dockerpkg.DaemonHints)
	}
	defer cli.Close()

	name := downInstanceName
	if name == "" {
		name, err = instance.Infer(ctx, cli)
		switch {
		case errors.Is(err, instance.ErrNoInstances):
			return printer.Error("no cohort instances found", "There is nothing to stop.", []string{"Start an instance:\n  cohort up"})
		case errors.Is(err, instance.ErrMultipleInstances):
			return printer.Error(
				"multiple instances found",
				"Pick the instance to stop.",
				[]string{"Specify it:\n  cohort down --name <instance-name>", "List instances:\n  cohort list"},
			)
		case err != nil:
			return fmt.Errorf("failed to infer instance: %w", err)
		}
	}

	removed, err := dockerpkg.RemoveInstance(ctx, cli, name)
	for _, c := range removed {
		printer.Step("Removed %s\n", c)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return printer.Error(
			fmt.Sprintf("instance '%s' not found", name),
			fmt.Sprintf("No containers found with instance name '%s'.", name),
			[]string{"Run 'cohort list' to see available instances"},
		)
	}

	printer.Success("\nInstance '%s' removed\n", name)
	return nil
}
