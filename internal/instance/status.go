package instance

import (
	"github.com/docker/docker/api/types"
)

// Status is the health of an instance's containers.
type Status string

const (
	StatusRunning  Status = "Running"
	StatusDegraded Status = "Degraded"
	StatusStopped  Status = "Stopped"
)

// DetermineStatus derives an instance's status from its containers.
func DetermineStatus(containers []types.Container) Status {
	running := 0
	for _, c := range containers {
		if c.State == "running" {
			running++
		}
	}

	switch {
	case len(containers) == 0 || running == 0:
		return StatusStopped
	case running == len(containers):
		return StatusRunning
	default:
		return StatusDegraded
	}
}

// Info summarizes one instance for `cohort up` and `cohort down`.
type Info struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	RedisPort int    `json:"redis_port"`
}
