package registry

import (
	"fmt"

	"github.com/vk/packsmith/internal/buildenv"
	"github.com/vk/packsmith/internal/builder"
	"github.com/vk/packsmith/internal/cache"
	"github.com/vk/packsmith/internal/deployment"
	"github.com/vk/packsmith/internal/engine"
	"github.com/vk/packsmith/internal/step"
)

// Deps carries the runtime collaborators injected into everything the
// registry constructs.
type Deps struct {
	Env    *buildenv.Environment
	Engine engine.Engine
	Cache  cache.Store
	// ConfigPath is the configuration path from the command line, needed for
	// container re-dispatch.
	ConfigPath string
	// Executable is the orchestrator binary, needed for container re-dispatch.
	Executable string
}

func (d Deps) stepDeps() step.Deps {
	return step.Deps{Env: d.Env, Engine: d.Engine, Cache: d.Cache}
}

func (d Deps) builderDeps() builder.Deps {
	return builder.Deps{Env: d.Env, Engine: d.Engine, ConfigPath: d.ConfigPath, Executable: d.Executable}
}

// NewDeployment instantiates the named deployment's step chain.
func (r *Registry) NewDeployment(name string, deps Deps) (*deployment.Deployment, error) {
	def, ok := r.DeploymentDefinitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown deployment %q", name)
	}
	return deployment.New(def, r.StepDefinitions, deps.stepDeps())
}

// NewBuilder instantiates the named builder: its inputs resolved against
// args, its deployment, and its required builders, recursively. Required
// builders take no command-line values, only their declared defaults.
func (r *Registry) NewBuilder(name string, args []string, deps Deps) (*builder.Builder, error) {
	return r.newBuilder(name, args, deps, make(map[string]*builder.Builder))
}

func (r *Registry) newBuilder(name string, args []string, deps Deps, memo map[string]*builder.Builder) (*builder.Builder, error) {
	if b, ok := memo[name]; ok {
		return b, nil
	}

	def, ok := r.BuilderDefinitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown builder %q", name)
	}

	values, err := builder.ParseArgs(def.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("builder %q: %w", name, err)
	}

	action, ok := r.ActionRegistry[def.Action]
	if !ok {
		return nil, fmt.Errorf("builder %q: unregistered action %q", name, def.Action)
	}

	var dep *deployment.Deployment
	if def.DeploymentName != "" {
		if dep, err = r.NewDeployment(def.DeploymentName, deps); err != nil {
			return nil, fmt.Errorf("builder %q: %w", name, err)
		}
	}

	required := make([]*builder.Builder, 0, len(def.Requires))
	for _, reqName := range def.Requires {
		req, err := r.newBuilder(reqName, nil, deps, memo)
		if err != nil {
			return nil, err
		}
		required = append(required, req)
	}

	b := builder.New(def, dep, required, action, values, deps.builderDeps())
	memo[name] = b
	return b, nil
}
