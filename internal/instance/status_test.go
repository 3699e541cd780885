package instance

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestDetermineStatus(t *testing.T) {
	testCases := []struct {
		name   string
		states []string
		want   Status
	}{
		{name: "no containers", want: StatusStopped},
		{name: "all running", states: []string{"running", "running"}, want: StatusRunning},
		{name: "all exited", states: []string{"exited", "created"}, want: StatusStopped},
		{name: "mixed", states: []string{"running", "exited"}, want: StatusDegraded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			containers := make([]types.Container, len(tc.states))
			for i, s := range tc.states {
				containers[i] = types.Container{State: s}
			}
			assert.Equal(t, tc.want, DetermineStatus(containers))
		})
	}
}
