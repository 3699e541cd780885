package instance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisURL(t *testing.T) {
	prev := dockerEnvFile
	t.Cleanup(func() { dockerEnvFile = prev })

	dockerEnvFile = filepath.Join(t.TempDir(), ".dockerenv")
	assert.Equal(t, "redis://localhost:6380", RedisURL(6380))

	require.NoError(t, os.WriteFile(dockerEnvFile, nil, 0o644))
	assert.Equal(t, "host.docker.internal", PublishedHost())
	assert.Equal(t, "redis://host.docker.internal:6379", RedisURL(6379))
}
