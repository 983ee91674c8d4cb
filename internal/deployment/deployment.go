// Package deployment models a named, ordered chain of steps that prepares a
// build environment for one target architecture.
package deployment

import (
	"context"
	"fmt"

	"github.com/vk/packsmith/internal/config"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/step"
)

// Deployment is an instantiated step chain. The first step carries the
// deployment's base image; every later step chains off its predecessor.
type Deployment struct {
	def   *config.DeploymentDefinition
	steps []*step.Step
}

// New instantiates the deployment's steps from their definitions, chaining
// them in declared order.
func New(def *config.DeploymentDefinition, stepDefs map[string]*config.StepDefinition, deps step.Deps) (*Deployment, error) {
	if len(def.StepNames) == 0 {
		return nil, fmt.Errorf("deployment %q declares no steps", def.Name)
	}

	steps := make([]*step.Step, 0, len(def.StepNames))
	var prev *step.Step
	for i, name := range def.StepNames {
		stepDef, ok := stepDefs[name]
		if !ok {
			return nil, fmt.Errorf("deployment %q references unknown step %q", def.Name, name)
		}
		baseImage := ""
		if i == 0 {
			baseImage = def.BaseImage
		}
		s := step.New(stepDef, prev, baseImage, def.Architecture, deps)
		steps = append(steps, s)
		prev = s
	}

	return &Deployment{def: def, steps: steps}, nil
}

// Name returns the deployment's name.
func (d *Deployment) Name() string { return d.def.Name }

// Architecture returns the target architecture of the chain.
func (d *Deployment) Architecture() string { return d.def.Architecture }

// Steps returns the instantiated steps in execution order.
func (d *Deployment) Steps() []*step.Step { return d.steps }

// LastStep returns the final step of the chain, the one a builder's action
// runs against.
func (d *Deployment) LastStep() *step.Step { return d.steps[len(d.steps)-1] }

// ResultImageName returns the image the fully-deployed chain is committed
// under, or "" for a host-native chain.
func (d *Deployment) ResultImageName() (string, error) {
	last := d.LastStep()
	if !last.RunsInContainer() {
		return "", nil
	}
	return last.ImageName()
}

// CacheableSteps returns the chain's cacheable steps, newest first.
func (d *Deployment) CacheableSteps() []*step.Step {
	return d.LastStep().CacheableChain()
}

// Deploy runs the whole chain. Running the last step recursively runs its
// predecessors first, so declared order is preserved and already-satisfied
// steps skip themselves.
func (d *Deployment) Deploy(ctx context.Context) error {
	ctx = ctxlog.With(ctx, "deployment", d.def.Name)
	ctxlog.FromContext(ctx).Info("Deploying step chain.", "steps", len(d.steps))
	return d.LastStep().Run(ctx)
}
