package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// DefaultRedisImage is used when cohort.yml does not name one.
const DefaultRedisImage = "redis:7-alpine"

const redisContainerPort nat.Port = "6379/tcp"

// RedisSpec describes the Redis container backing an instance.
type RedisSpec struct {
	InstanceName string
	RunID        string
	Image        string
	HostPort     int
}

// StartRedis creates and starts an instance's Redis container, publishing it on
// 127.0.0.1:HostPort. The image is pulled first if the daemon does not have it.
// Returns the container ID.
func StartRedis(ctx context.Context, cli *client.Client, spec RedisSpec) (string, error) {
	image := spec.Image
	if image == "" {
		image = DefaultRedisImage
	}

	if err := ensureImage(ctx, cli, image); err != nil {
		return "", err
	}

	labels := BuildLabels(spec.InstanceName, spec.RunID, ComponentRedis)
	labels[LabelRedisPort] = strconv.Itoa(spec.HostPort)

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:        image,
		Labels:       labels,
		ExposedPorts: nat.PortSet{redisContainerPort: struct{}{}},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			redisContainerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(spec.HostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}, nil, nil, RedisContainerName(spec.InstanceName))
	if err != nil {
		return "", fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start Redis container: %w", err)
	}

	return resp.ID, nil
}

func ensureImage(ctx context.Context, cli *client.Client, image string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", image, err)
	}

	reader, err := cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

// RemoveInstance stops and removes every container of an instance and returns their
// names. Stop failures are ignored since the container may already be stopped.
func RemoveInstance(ctx context.Context, cli *client.Client, instanceName string) ([]string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: InstanceFilter(instanceName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	timeout := 10
	removed := make([]string, 0, len(containers))
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}

		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}

	return removed, nil
}
