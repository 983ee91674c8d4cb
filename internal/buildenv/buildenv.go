// Package buildenv loads the process-wide build environment: the source root
// the tracked globs resolve against, the cache and output roots, and the two
// externally supplied mode flags the core consumes but does not own — whether
// this process already runs inside an isolated container, and whether it runs
// under CI.
package buildenv

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variables read by Load, e.g.
// PACKSMITH_IN_CONTAINER=1.
const EnvPrefix = "PACKSMITH"

// Environment captures the resolved build environment. Instances are treated
// as immutable after Load.
type Environment struct {
	// SourceRoot is the repository root all tracked file globs are relative to.
	SourceRoot string `mapstructure:"source_root"`
	// CacheDir holds one subtree per cacheable step id.
	CacheDir string `mapstructure:"cache_dir"`
	// OutputDir receives step and builder outputs.
	OutputDir string `mapstructure:"output_dir"`
	// InContainer is set by the orchestrator itself when it re-invokes a
	// builder inside a container it produced.
	InContainer bool `mapstructure:"in_container"`
	// InCICD enables the persistent-cache fast path for container steps.
	InCICD bool `mapstructure:"in_cicd"`
	// DockerBin is the container engine executable to shell out to.
	DockerBin string `mapstructure:"docker_bin"`
	// TraceFile, when set, receives the exported spans of the run.
	TraceFile string `mapstructure:"trace_file"`
}

// Load reads the environment from PACKSMITH_* variables, falling back to
// defaults relative to the current directory.
func Load() (*Environment, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("source_root", ".")
	v.SetDefault("cache_dir", filepath.Join("build", "step_cache"))
	v.SetDefault("output_dir", filepath.Join("build", "output"))
	v.SetDefault("in_container", false)
	v.SetDefault("in_cicd", false)
	v.SetDefault("docker_bin", "docker")
	v.SetDefault("trace_file", "")

	var env Environment
	if err := v.Unmarshal(&env); err != nil {
		return nil, fmt.Errorf("load build environment: %w", err)
	}

	abs, err := filepath.Abs(env.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	env.SourceRoot = abs

	if !filepath.IsAbs(env.CacheDir) {
		env.CacheDir = filepath.Join(env.SourceRoot, env.CacheDir)
	}
	if !filepath.IsAbs(env.OutputDir) {
		env.OutputDir = filepath.Join(env.SourceRoot, env.OutputDir)
	}

	return &env, nil
}

// StepCacheDir returns the personal cache directory of a step id.
func (e *Environment) StepCacheDir(id string) string {
	return filepath.Join(e.CacheDir, id)
}

// StepOutputDir returns the output directory of a step id.
func (e *Environment) StepOutputDir(id string) string {
	return filepath.Join(e.OutputDir, "steps", id)
}

// StepSourceDir returns the isolated source snapshot directory of a step id.
func (e *Environment) StepSourceDir(id string) string {
	return filepath.Join(e.OutputDir, "sources", id)
}

// BuilderOutputDir returns the output directory of a builder name.
func (e *Environment) BuilderOutputDir(name string) string {
	return filepath.Join(e.OutputDir, "builders", name)
}

// ChildEnv returns the PACKSMITH_* variable assignments a re-dispatched child
// process must inherit so skip/cache decisions stay consistent across the
// container boundary.
func (e *Environment) ChildEnv(inContainer bool) []string {
	env := []string{
		fmt.Sprintf("%s_IN_CONTAINER=%t", EnvPrefix, inContainer),
		fmt.Sprintf("%s_IN_CICD=%t", EnvPrefix, e.InCICD),
	}
	return env
}
