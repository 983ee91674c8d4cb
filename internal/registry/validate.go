package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/dag"
)

// Validate performs a strict cross-reference check over the loaded
// definitions: every referenced step, deployment, builder, and action must
// exist, and the builder requirement graph must be acyclic.
func (r *Registry) Validate(ctx context.Context) error {
	var errs []string

	for name, def := range r.DeploymentDefinitions {
		for _, stepName := range def.StepNames {
			if _, ok := r.StepDefinitions[stepName]; !ok {
				errs = append(errs, fmt.Sprintf("deployment '%s': references unknown step '%s'", name, stepName))
			}
		}
	}

	for name, def := range r.BuilderDefinitions {
		if def.DeploymentName != "" {
			if _, ok := r.DeploymentDefinitions[def.DeploymentName]; !ok {
				errs = append(errs, fmt.Sprintf("builder '%s': references unknown deployment '%s'", name, def.DeploymentName))
			}
		}
		if _, ok := r.ActionRegistry[def.Action]; !ok {
			errs = append(errs, fmt.Sprintf("builder '%s': references unregistered action '%s'", name, def.Action))
		}
		for _, req := range def.Requires {
			if _, ok := r.BuilderDefinitions[req]; !ok {
				errs = append(errs, fmt.Sprintf("builder '%s': requires unknown builder '%s'", name, req))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	if err := r.checkRequirementCycles(); err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Debug("Registry validated.",
		"steps", len(r.StepDefinitions),
		"deployments", len(r.DeploymentDefinitions),
		"builders", len(r.BuilderDefinitions),
	)
	return nil
}

// checkRequirementCycles rejects cyclic builder requirements so the recursive
// construction and build never run unbounded.
func (r *Registry) checkRequirementCycles() error {
	g := dag.New()
	for name := range r.BuilderDefinitions {
		g.AddNode(name)
	}
	for name, def := range r.BuilderDefinitions {
		for _, req := range def.Requires {
			if err := g.AddEdge(req, name); err != nil {
				return fmt.Errorf("builder '%s': %w", name, err)
			}
		}
	}
	return g.DetectCycles()
}
