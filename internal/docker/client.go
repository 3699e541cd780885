package docker

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/client"
)

// ErrDaemonUnavailable is returned when no Docker daemon answers a ping.
var ErrDaemonUnavailable = errors.New("docker daemon not accessible")

// DaemonHints are shown to users when ErrDaemonUnavailable stops a command.
var DaemonHints = []string{
	"Start Docker (Docker Desktop on macOS, `sudo systemctl start docker` on Linux)",
	"Or skip `cohort up` and point cohortd at an existing Redis with REDIS_URL",
}

// NewClient connects to the daemon named by the DOCKER_* environment, negotiating the
// API version, and pings it before returning.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w at %s: %v", ErrDaemonUnavailable, cli.DaemonHost(), err)
	}
	return cli, nil
}
