package instance

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerpkg "github.com/dyluth/cohort/internal/docker"
)

// fakeDocker answers ContainerList from a fixed set, applying label filters the
// way the daemon does.
type fakeDocker struct {
	containers []types.Container
	err        error
}

func (f *fakeDocker) ContainerList(_ context.Context, opts container.ListOptions) ([]types.Container, error) {
	if f.err != nil {
		return nil, f.err
	}

	var out []types.Container
	for _, c := range f.containers {
		if matchesLabels(c, opts.Filters.Get("label")) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matchesLabels(c types.Container, wanted []string) bool {
	for _, w := range wanted {
		key, value, _ := strings.Cut(w, "=")
		if c.Labels[key] != value {
			return false
		}
	}
	return true
}

func redisContainer(instanceName, port, state string) types.Container {
	labels := dockerpkg.BuildLabels(instanceName, "run", dockerpkg.ComponentRedis)
	labels[dockerpkg.LabelRedisPort] = port
	return types.Container{
		Names:  []string{"/" + dockerpkg.RedisContainerName(instanceName)},
		Labels: labels,
		State:  state,
	}
}
