package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/cohort/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	t.Run("writes a config matching the defaults", func(t *testing.T) {
		dir := t.TempDir()

		path, err := Initialize(dir, false)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "cohort.yml"), path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		dir := t.TempDir()
		existing := filepath.Join(dir, "cohort.yml")
		require.NoError(t, os.WriteFile(existing, []byte("version: \"1.0\"\n"), 0644))

		_, err := Initialize(dir, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "project already initialized")
		assert.Contains(t, err.Error(), "--force")

		data, err := os.ReadFile(existing)
		require.NoError(t, err)
		assert.Equal(t, "version: \"1.0\"\n", string(data))
	})

	t.Run("force overwrites", func(t *testing.T) {
		dir := t.TempDir()
		existing := filepath.Join(dir, "cohort.yml")
		require.NoError(t, os.WriteFile(existing, []byte("garbage"), 0644))

		_, err := Initialize(dir, true)
		require.NoError(t, err)

		data, err := os.ReadFile(existing)
		require.NoError(t, err)
		assert.Contains(t, string(data), "max_update_retries")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Initialize(filepath.Join(t.TempDir(), "nope"), false)
		assert.ErrorContains(t, err, "failed to write")
	})
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cohort.yml"), nil, 0644))
	assert.ErrorContains(t, CheckExisting(dir), "cohort.yml")
}
