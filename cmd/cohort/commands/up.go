package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/dyluth/cohort/internal/docker"
	"github.com/dyluth/cohort/internal/instance"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var upInstanceName string

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a local Redis for a cohort instance",
	Long: `Start a Redis container for a new cohort instance.

The instance name namespaces every key cohortd writes, so several instances can
share one Redis. It is auto-generated (default-N) unless given with --name.

Examples:
  cohort up
  cohort up --name spring-2024`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVarP(&upInstanceName, "name", "n", "", "Instance name (auto-generated if omitted)")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), dockerpkg.DaemonHints)
	}
	defer cli.Close()

	name := upInstanceName
	if name == "" {
		if name, err = instance.GenerateDefaultName(ctx, cli); err != nil {
			return fmt.Errorf("failed to generate instance name: %w", err)
		}
	}
	if err := instance.ValidateName(name); err != nil {
		return printer.Error("invalid instance name", err.Error(), nil)
	}

	taken, err := instance.CheckNameCollision(ctx, cli, name)
	if err != nil {
		return err
	}
	if taken {
		return printer.Error(
			fmt.Sprintf("instance '%s' already exists", name),
			"Found existing containers with this instance name.",
			[]string{
				fmt.Sprintf("Stop the existing instance:\n  cohort down --name %s", name),
				"Choose a different name:\n  cohort up --name other-name",
			},
		)
	}

	port, err := instance.FindNextAvailablePort(ctx, cli)
	if err != nil {
		return fmt.Errorf("failed to allocate Redis port: %w", err)
	}
	printer.Success("Allocated Redis port: %d\n", port)

	printer.Step("Starting %s (%s)...\n", dockerpkg.RedisContainerName(name), cfg.Services.Redis.Image)
	if _, err := dockerpkg.StartRedis(ctx, cli, dockerpkg.RedisSpec{
		InstanceName: name,
		RunID:        dockerpkg.GenerateRunID(),
		Image:        cfg.Services.Redis.Image,
		HostPort:     port,
	}); err != nil {
		return printer.Error("failed to start Redis", err.Error(), nil)
	}

	printer.Success("\nInstance '%s' started\n\n", name)
	printer.Info("Run the server against it:\n")
	printer.Info("  COHORT_INSTANCE_NAME=%s REDIS_URL=%s cohortd\n\n", name, instance.RedisURL(port))
	printer.Info("Stop it with:\n  cohort down --name %s\n", name)

	return nil
}
