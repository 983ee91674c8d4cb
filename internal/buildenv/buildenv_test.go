package buildenv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	env, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(env.SourceRoot))
	assert.True(t, filepath.IsAbs(env.CacheDir))
	assert.True(t, filepath.IsAbs(env.OutputDir))
	assert.False(t, env.InContainer)
	assert.False(t, env.InCICD)
	assert.Equal(t, "docker", env.DockerBin)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PACKSMITH_IN_CONTAINER", "true")
	t.Setenv("PACKSMITH_IN_CICD", "true")
	t.Setenv("PACKSMITH_SOURCE_ROOT", t.TempDir())
	t.Setenv("PACKSMITH_DOCKER_BIN", "podman")

	env, err := Load()
	require.NoError(t, err)

	assert.True(t, env.InContainer)
	assert.True(t, env.InCICD)
	assert.Equal(t, "podman", env.DockerBin)
}

func TestDerivedDirectories(t *testing.T) {
	t.Setenv("PACKSMITH_SOURCE_ROOT", t.TempDir())
	env, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.CacheDir, "step_abc"), env.StepCacheDir("step_abc"))
	assert.Equal(t, filepath.Join(env.OutputDir, "steps", "step_abc"), env.StepOutputDir("step_abc"))
	assert.Equal(t, filepath.Join(env.OutputDir, "builders", "deb-x86_64"), env.BuilderOutputDir("deb-x86_64"))
}

func TestChildEnv(t *testing.T) {
	t.Setenv("PACKSMITH_IN_CICD", "true")
	env, err := Load()
	require.NoError(t, err)

	child := env.ChildEnv(true)
	assert.Contains(t, child, "PACKSMITH_IN_CONTAINER=true")
	assert.Contains(t, child, "PACKSMITH_IN_CICD=true")
}
