// Package instance finds, names and inspects the local cohort instances started by
// `cohort up`. An instance is identified by the labels on its Docker containers.
package instance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerpkg "github.com/dyluth/cohort/internal/docker"
)

const (
	// DefaultNamePrefix is the prefix for auto-generated instance names
	DefaultNamePrefix = "default-"

	// MaxNameLength keeps names usable as a DNS label.
	MaxNameLength = 63
)

// ErrInvalidName wraps every name validation failure.
var ErrInvalidName = errors.New("invalid instance name")

// ContainerLister lists Docker containers. *client.Client satisfies it.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// ValidateName checks that name is a DNS label. Names end up inside every Redis key
// cohortd writes, so ':' and uppercase are rejected along with everything else.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: %d characters is too long (limit %d)", ErrInvalidName, len(name), MaxNameLength)
	case name[0] == '-' || name[len(name)-1] == '-':
		return fmt.Errorf("%w: %q may not start or end with a hyphen", ErrInvalidName, name)
	}

	for i, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("%w: %q has %q at position %d (use lowercase letters, digits and hyphens)", ErrInvalidName, name, r, i)
	}
	return nil
}

// GenerateDefaultName returns default-N where N is one past the highest default
// name any cohort container carries, stopped ones included.
func GenerateDefaultName(ctx context.Context, cli ContainerLister) (string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: dockerpkg.ProjectFilter(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}

	next := 1
	for _, c := range containers {
		if n, ok := defaultIndex(c.Labels[dockerpkg.LabelInstanceName]); ok && n >= next {
			next = n + 1
		}
	}
	return DefaultNamePrefix + strconv.Itoa(next), nil
}

func defaultIndex(name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, DefaultNamePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	return n, err == nil
}

// CheckNameCollision reports whether any container already carries the instance name.
func CheckNameCollision(ctx context.Context, cli ContainerLister, instanceName string) (bool, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: dockerpkg.InstanceFilter(instanceName),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for name collision: %w", err)
	}

	return len(containers) > 0, nil
}
