// Package builder implements the artifact producers that sit on top of
// deployments. A builder prepares its environment by deploying a step chain,
// builds the builders it requires, and then runs its registered action. When
// the deployment is containerized, the build dispatches itself into the
// deployed image and re-runs there with the same command line.
package builder

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/packsmith/internal/buildenv"
	"github.com/vk/packsmith/internal/config"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/deployment"
	"github.com/vk/packsmith/internal/engine"
	"github.com/vk/packsmith/internal/fsutil"
	"github.com/vk/packsmith/internal/step"
	"github.com/vk/packsmith/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// In-container paths for a re-dispatched build: the orchestrator binary, the
// source tree, and the shared output root the artifacts land in.
const (
	executableMount = "/usr/local/bin/packsmith"
	outputMount     = "/tmp/packsmith_build_output"
)

// ExecContext tells Build where it is running. The zero value is a plain
// top-level host invocation.
type ExecContext struct {
	// InsideContainer marks a build that was re-dispatched into its
	// deployment's image; it runs the action directly and never dispatches
	// again.
	InsideContainer bool
	// ForceLocal runs the action on the host even when the deployment is
	// containerized. The operator vouches for the local environment.
	ForceLocal bool
}

// Invocation is what an action receives: the resolved inputs plus the
// directories it reads from and writes to.
type Invocation struct {
	// Name is the builder's name.
	Name string
	// SourceRoot is the repository root.
	SourceRoot string
	// OutputPath is the directory the action must write its artifacts into.
	OutputPath string
	// Inputs holds the resolved input values keyed by dest.
	Inputs map[string]any
	// DeploymentOutput is the output directory of the deployment's final
	// step, or "" when the builder has no deployment or the output is not
	// reachable from here.
	DeploymentOutput string
	// RequiredOutputs maps each required builder's name to its output
	// directory.
	RequiredOutputs map[string]string
}

// StringInput returns the input stored under dest as a string.
func (inv *Invocation) StringInput(dest string) string {
	if v, ok := inv.Inputs[dest].(string); ok {
		return v
	}
	return ""
}

// BoolInput returns the input stored under dest as a bool.
func (inv *Invocation) BoolInput(dest string) bool {
	v, ok := inv.Inputs[dest].(bool)
	return ok && v
}

// Action is the Go function that produces a builder's artifact.
type Action func(ctx context.Context, inv *Invocation) error

// Deps carries the collaborators a builder needs beyond its own graph.
type Deps struct {
	Env    *buildenv.Environment
	Engine engine.Engine
	// ConfigPath is the configuration path as given on the command line,
	// re-passed verbatim on dispatch so the containerized child loads the
	// same model.
	ConfigPath string
	// Executable is the orchestrator binary, mounted into dispatch containers.
	Executable string
}

// Builder is an instantiated artifact producer.
type Builder struct {
	def        *config.BuilderDefinition
	deployment *deployment.Deployment
	required   []*Builder
	action     Action
	values     map[string]any
	deps       Deps
}

// New wires a builder from its definition and resolved collaborators. The
// deployment may be nil; values must already be parsed from the builder's
// declared inputs.
func New(def *config.BuilderDefinition, dep *deployment.Deployment, required []*Builder, action Action, values map[string]any, deps Deps) *Builder {
	return &Builder{
		def:        def,
		deployment: dep,
		required:   required,
		action:     action,
		values:     values,
		deps:       deps,
	}
}

// Name returns the builder's name.
func (b *Builder) Name() string { return b.def.Name }

// Deployment returns the builder's deployment, or nil.
func (b *Builder) Deployment() *deployment.Deployment { return b.deployment }

// OutputPath returns the directory the builder's artifacts land in.
func (b *Builder) OutputPath() string {
	return b.deps.Env.BuilderOutputDir(b.def.Name)
}

// CacheableSteps returns the cacheable steps of this builder's deployment and
// of everything it requires, deduplicated by step identity.
func (b *Builder) CacheableSteps() ([]*step.Step, error) {
	seen := make(map[string]bool)
	var result []*step.Step

	var collect func(bld *Builder) error
	collect = func(bld *Builder) error {
		if bld.deployment != nil {
			for _, s := range bld.deployment.CacheableSteps() {
				id, err := s.ID()
				if err != nil {
					return err
				}
				if !seen[id] {
					seen[id] = true
					result = append(result, s)
				}
			}
		}
		for _, r := range bld.required {
			if err := collect(r); err != nil {
				return err
			}
		}
		return nil
	}

	if err := collect(b); err != nil {
		return nil, err
	}
	return result, nil
}

// Build produces the builder's artifact. The outer phase (on the host)
// resets the output directory, deploys the step chain, builds required
// builders, and then either dispatches into the deployed image or runs the
// action locally. The inner phase (inside the container, or forced local)
// runs the action only.
func (b *Builder) Build(ctx context.Context, ec ExecContext) error {
	ctx = ctxlog.With(ctx, "builder", b.def.Name)
	logger := ctxlog.FromContext(ctx)

	ctx, span := telemetry.Tracer().Start(ctx, "builder.build")
	span.SetAttributes(
		attribute.String("builder.name", b.def.Name),
		attribute.Bool("builder.inside_container", ec.InsideContainer),
	)
	defer span.End()

	// The output directory is cleared on both sides of the container
	// boundary: the mount point inside is a fresh directory only when the
	// host happened to reset it, so the inner invocation does not rely on
	// that.
	if err := fsutil.ResetDir(b.OutputPath()); err != nil {
		return err
	}

	if ec.InsideContainer {
		return b.runAction(ctx, ec)
	}

	containerized := b.deployment != nil && b.deployment.LastStep().RunsInContainer()
	if b.deployment != nil {
		if containerized && ec.ForceLocal {
			logger.Info("Skipping containerized deployment, building locally.")
		} else if err := b.deployment.Deploy(ctx); err != nil {
			return err
		}
	}

	for _, r := range b.required {
		if err := r.Build(ctx, ExecContext{ForceLocal: ec.ForceLocal}); err != nil {
			return fmt.Errorf("required builder %q: %w", r.Name(), err)
		}
	}

	if containerized && !ec.ForceLocal {
		return b.dispatchInContainer(ctx)
	}
	return b.runAction(ctx, ec)
}

// runAction executes the builder's registered action in the current process.
func (b *Builder) runAction(ctx context.Context, ec ExecContext) error {
	outputPath := b.OutputPath()
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return err
	}

	requiredOutputs := make(map[string]string, len(b.required))
	for _, r := range b.required {
		requiredOutputs[r.Name()] = r.OutputPath()
	}

	deploymentOutput, err := b.deploymentOutput(ec)
	if err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Info("Running builder action.", "action", b.def.Action)
	return b.action(ctx, &Invocation{
		Name:             b.def.Name,
		SourceRoot:       b.deps.Env.SourceRoot,
		OutputPath:       outputPath,
		Inputs:           b.values,
		DeploymentOutput: deploymentOutput,
		RequiredOutputs:  requiredOutputs,
	})
}

// deploymentOutput locates the deployment's final step output for the current
// execution context.
func (b *Builder) deploymentOutput(ec ExecContext) (string, error) {
	if b.deployment == nil {
		return "", nil
	}
	last := b.deployment.LastStep()
	if !last.RunsInContainer() {
		id, err := last.ID()
		if err != nil {
			return "", err
		}
		return b.deps.Env.StepOutputDir(id), nil
	}
	if ec.InsideContainer {
		return step.ContainerOutputDir, nil
	}
	return "", nil
}

// dispatchInContainer re-runs this build inside the deployed image. The
// orchestrator binary, the source tree, and the output root are mounted in,
// and the child's environment redirects its roots to the mount points, so
// artifacts written inside land on the host.
func (b *Builder) dispatchInContainer(ctx context.Context) error {
	image, err := b.deployment.ResultImageName()
	if err != nil {
		return err
	}

	configPath, err := b.containerConfigPath()
	if err != nil {
		return err
	}

	command := append([]string{executableMount, "-c", configPath, b.def.Name},
		CommandLine(b.def.Inputs, b.values)...)

	env := b.deps.Env.ChildEnv(true)
	env = append(env,
		buildenv.EnvPrefix+"_SOURCE_ROOT="+engine.SourceMount,
		buildenv.EnvPrefix+"_OUTPUT_DIR="+outputMount,
	)

	ctxlog.FromContext(ctx).Info("Dispatching build into container.", "image", image)
	return b.deps.Engine.RunContainer(ctx, image, command, engine.RunOptions{
		WorkDir: engine.SourceMount,
		Env:     env,
		Mounts: []engine.Mount{
			{Host: b.deps.Executable, Container: executableMount},
			{Host: b.deps.Env.SourceRoot, Container: engine.SourceMount},
			{Host: b.deps.Env.OutputDir, Container: outputMount},
		},
		Platform: step.PlatformFor(b.deployment.Architecture()),
	})
}

// containerConfigPath rewrites the host config path for the child process,
// which sees the source tree at SourceMount.
func (b *Builder) containerConfigPath() (string, error) {
	abs, err := filepath.Abs(b.deps.ConfigPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(b.deps.Env.SourceRoot, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("config %q is outside the source root", b.deps.ConfigPath)
	}
	return path.Join(engine.SourceMount, filepath.ToSlash(rel)), nil
}
