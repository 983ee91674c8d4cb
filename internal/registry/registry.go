package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/packsmith/internal/builder"
	"github.com/vk/packsmith/internal/config"
)

// Module is the interface a group of built-in actions implements to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered actions and the loaded definitions for a
// single application instance.
type Registry struct {
	ActionRegistry        map[string]builder.Action
	StepDefinitions       map[string]*config.StepDefinition
	DeploymentDefinitions map[string]*config.DeploymentDefinition
	BuilderDefinitions    map[string]*config.BuilderDefinition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		ActionRegistry:        make(map[string]builder.Action),
		StepDefinitions:       make(map[string]*config.StepDefinition),
		DeploymentDefinitions: make(map[string]*config.DeploymentDefinition),
		BuilderDefinitions:    make(map[string]*config.BuilderDefinition),
	}
}

// RegisterAction registers a Go function under an action name.
func (r *Registry) RegisterAction(name string, action builder.Action) {
	if _, exists := r.ActionRegistry[name]; exists {
		panic(fmt.Sprintf("action with name '%s' already registered", name))
	}
	slog.Debug("Registering action.", "name", name)
	r.ActionRegistry[name] = action
}

// PopulateDefinitionsFromModel copies the loaded definitions from the config
// model into the registry for easy access during construction.
func (r *Registry) PopulateDefinitionsFromModel(model *config.Model) {
	for key, val := range model.Steps {
		r.StepDefinitions[key] = val
	}
	for key, val := range model.Deployments {
		r.DeploymentDefinitions[key] = val
	}
	for key, val := range model.Builders {
		r.BuilderDefinitions[key] = val
	}
}
