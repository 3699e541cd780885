package commands

import (
	"context"

	dockerpkg "github.com/dyluth/cohort/internal/docker"
	"github.com/dyluth/cohort/internal/instance"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local cohort instances",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), dockerpkg.DaemonHints)
	}
	defer cli.Close()

	infos, err := instance.List(ctx, cli)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		printer.Info("No cohort instances. Start one with 'cohort up'.\n")
		return nil
	}

	rows := make([][]string, len(infos))
	for i, info := range infos {
		rows[i] = []string{info.Name, string(info.Status), instance.RedisURL(info.RedisPort)}
	}
	return printer.Table([]string{"Instance", "Status", "Redis"}, rows)
}
