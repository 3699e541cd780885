package instance

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types/container"
	dockerpkg "github.com/dyluth/cohort/internal/docker"
)

// RedisPortRange is the span of host ports `cohort up` publishes Redis on, one per
// instance.
var RedisPortRange = [2]int{6379, 6478}

// FindNextAvailablePort returns the lowest port in RedisPortRange that no cohort Redis
// container claims, stopped ones included, and that nothing else has bound.
func FindNextAvailablePort(ctx context.Context, cli ContainerLister) (int, error) {
	return findPort(ctx, cli, isPortBindable)
}

func findPort(ctx context.Context, cli ContainerLister, bindable func(int) bool) (int, error) {
	claimed, err := claimedPorts(ctx, cli)
	if err != nil {
		return 0, err
	}

	first, last := RedisPortRange[0], RedisPortRange[1]
	for port := first; port <= last; port++ {
		if _, taken := claimed[port]; !taken && bindable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available Redis ports (range %d-%d exhausted)", first, last)
}

// claimedPorts reads the Redis port label off every cohort Redis container.
func claimedPorts(ctx context.Context, cli ContainerLister) (map[int]struct{}, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: dockerpkg.RedisFilter(""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	claimed := make(map[int]struct{}, len(containers))
	for _, c := range containers {
		if port, err := strconv.Atoi(c.Labels[dockerpkg.LabelRedisPort]); err == nil {
			claimed[port] = struct{}{}
		}
	}
	return claimed, nil
}

func isPortBindable(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	return ln.Close() == nil
}
