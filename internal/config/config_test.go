package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jarforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_dir: work
type: client
workers: 3
inputs:
  client_jar: jars/client.jar
  patches: /abs/binpatches.pack.lzma
merge:
  synthetic_params_offset: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "work"), cfg.CacheDir)
	assert.Equal(t, TypeClient, cfg.Type)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, filepath.Join(dir, "jars/client.jar"), cfg.Inputs.ClientJar)
	assert.Equal(t, "/abs/binpatches.pack.lzma", cfg.Inputs.Patches)
	assert.False(t, cfg.Merge.SyntheticParamsOffset)
	assert.Equal(t, PolicyResume, cfg.Invalidation, "unset keys keep defaults")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: [unterminated"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("strings and workers", func(t *testing.T) {
		t.Setenv("JARFORGE_TYPE", "server")
		t.Setenv("JARFORGE_INVALIDATION", "strict")
		t.Setenv("JARFORGE_WORKERS", "7")
		t.Setenv("JARFORGE_LOG_LEVEL", "debug")

		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		assert.Equal(t, TypeServer, cfg.Type)
		assert.Equal(t, PolicyStrict, cfg.Invalidation)
		assert.Equal(t, 7, cfg.Workers)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("bad worker count", func(t *testing.T) {
		t.Setenv("JARFORGE_WORKERS", "many")
		_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		assert.ErrorContains(t, err, "JARFORGE_WORKERS")
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jarforge.yaml")
	cfg := DefaultConfig()
	cfg.CacheDir = "/var/cache/jarforge"
	cfg.Mappings.Path = "/m/mappings.tiny"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
