package instance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerpkg "github.com/dyluth/cohort/internal/docker"
)

var (
	ErrNoInstances       = errors.New("no cohort instances found")
	ErrMultipleInstances = errors.New("multiple cohort instances found, use --name to pick one")
)

// List returns every local instance, ordered by name.
func List(ctx context.Context, cli ContainerLister) ([]Info, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: dockerpkg.ProjectFilter(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	byName := make(map[string][]types.Container)
	for _, c := range containers {
		name := c.Labels[dockerpkg.LabelInstanceName]
		byName[name] = append(byName[name], c)
	}

	infos := make([]Info, 0, len(byName))
	for name, cs := range byName {
		info := Info{Name: name, Status: DetermineStatus(cs)}
		for _, c := range cs {
			if c.Labels[dockerpkg.LabelComponent] == dockerpkg.ComponentRedis {
				info.RedisPort, _ = strconv.Atoi(c.Labels[dockerpkg.LabelRedisPort])
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos, nil
}

// Infer returns the only local instance, or ErrNoInstances / ErrMultipleInstances.
func Infer(ctx context.Context, cli ContainerLister) (string, error) {
	infos, err := List(ctx, cli)
	if err != nil {
		return "", err
	}

	switch len(infos) {
	case 0:
		return "", ErrNoInstances
	case 1:
		return infos[0].Name, nil
	default:
		return "", ErrMultipleInstances
	}
}

// RedisPort returns the published Redis port of an instance.
func RedisPort(ctx context.Context, cli ContainerLister, instanceName string) (int, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: dockerpkg.RedisFilter(instanceName),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	if len(containers) == 0 {
		return 0, fmt.Errorf("Redis container not found for instance '%s'", instanceName)
	}

	portStr, ok := containers[0].Labels[dockerpkg.LabelRedisPort]
	if !ok {
		return 0, fmt.Errorf("Redis port label missing for instance '%s'", instanceName)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid Redis port '%s': %w", portStr, err)
	}

	return port, nil
}
