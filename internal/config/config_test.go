package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClampsDSPThreads(t *testing.T) {
	cfg := Default()
	assert.GreaterOrEqual(t, cfg.DSPThreads, 1)
	assert.LessOrEqual(t, cfg.DSPThreads, 4)
	assert.Equal(t, 7, cfg.StagePoolSize)
	assert.Equal(t, 300, cfg.BatchTimeoutSec)
}

func TestLoadAppliesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuematrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stage_pool_size: 3\ncache_path: /tmp/custom-cache.db\n"), 0o644))

	cfg := Load(path)
	assert.Equal(t, 3, cfg.StagePoolSize)
	assert.Equal(t, "/tmp/custom-cache.db", cfg.CachePath)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuematrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stage_pool_size: 3\n"), 0o644))

	t.Setenv("CUEMATRIX_STAGE_POOL_SIZE", "9")
	cfg := Load(path)
	assert.Equal(t, 9, cfg.StagePoolSize)
}

func TestLoadIgnoresMissingYAMLFile(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, Default().StagePoolSize, cfg.StagePoolSize)
}

func TestApplyDSPThreadsSetsGOMAXPROCS(t *testing.T) {
	prev := runtime.GOMAXPROCS(0)
	defer runtime.GOMAXPROCS(prev)

	ApplyDSPThreads(Config{DSPThreads: 2})
	assert.Equal(t, 2, runtime.GOMAXPROCS(0))
}
