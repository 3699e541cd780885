package docker

import (
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/google/uuid"
)

// Label keys used for cohort resources
const (
	LabelProject       = "cohort.project"
	LabelInstanceName  = "cohort.instance.name"
	LabelInstanceRunID = "cohort.instance.run_id"
	LabelComponent     = "cohort.component"
	LabelRedisPort     = "cohort.redis.port"
)

// ComponentRedis is the component label of an instance's Redis container.
const ComponentRedis = "redis"

// BuildLabels creates the standard label set for cohort resources.
// component may be empty.
func BuildLabels(instanceName, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelInstanceRunID: runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for an instance run.
// Each invocation of `cohort up` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// RedisContainerName returns the Redis container name for an instance
func RedisContainerName(instanceName string) string {
	return fmt.Sprintf("cohort-redis-%s", instanceName)
}

// ProjectFilter matches every cohort resource.
func ProjectFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelProject+"=true"))
}

// InstanceFilter matches the resources of one instance.
func InstanceFilter(instanceName string) filters.Args {
	return filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", LabelInstanceName, instanceName)))
}

// RedisFilter matches cohort Redis containers, optionally of one instance.
func RedisFilter(instanceName string) filters.Args {
	args := filters.NewArgs(
		filters.Arg("label", LabelProject+"=true"),
		filters.Arg("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRedis)),
	)
	if instanceName != "" {
		args.Add("label", fmt.Sprintf("%s=%s", LabelInstanceName, instanceName))
	}
	return args
}
