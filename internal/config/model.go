package config

// Model is the unified representation of the loaded configuration.
type Model struct {
	Steps       map[string]*StepDefinition
	Deployments map[string]*DeploymentDefinition
	Builders    map[string]*BuilderDefinition
}

// NewModel creates an empty Model.
func NewModel() *Model {
	return &Model{
		Steps:       make(map[string]*StepDefinition),
		Deployments: make(map[string]*DeploymentDefinition),
		Builders:    make(map[string]*BuilderDefinition),
	}
}

// StepDefinition declares one unit of build work. The name is a human label;
// the runtime identity additionally carries a content checksum.
type StepDefinition struct {
	Name string
	// Script is the action the step runs, relative to the source root.
	Script string
	// TrackedFiles are the glob patterns whose resolved content determines
	// the step's checksum.
	TrackedFiles []string
	// Env is extra environment for the script. Keys and values feed the
	// checksum in sorted order.
	Env map[string]string
	// Cacheable marks the step's result for persistence in the artifact cache.
	Cacheable bool
}

// DeploymentDefinition declares a named ordered chain of steps sharing one
// architecture and optional base image.
type DeploymentDefinition struct {
	Name         string
	Architecture string
	// BaseImage, when set, makes every step of the chain run inside a
	// container derived from it.
	BaseImage string
	// StepNames reference StepDefinitions; each step is chained to the
	// previous one at instantiation.
	StepNames []string
}

// InputDefinition declares one command-line input of a builder.
type InputDefinition struct {
	// Name is the flag as it appears on a command line, e.g. "--variant".
	Name string
	// Dest is the key the resolved value is stored under.
	Dest string
	// Action selects how the flag consumes arguments; "" takes one value,
	// ActionStoreTrue is presence-only.
	Action string
	// Default is the value used when the flag is absent. Nil means none.
	Default any
	// Required inputs with no default and no value fail fast.
	Required bool
}

// ActionStoreTrue marks a presence-only boolean input.
const ActionStoreTrue = "store_true"

// BuilderDefinition declares an artifact producer: the deployment whose final
// step prepares its environment, the builders it requires, its declared
// inputs, and the registered action that does the actual work.
type BuilderDefinition struct {
	Name string
	// DeploymentName optionally references the DeploymentDefinition whose
	// last step is this builder's deployment step.
	DeploymentName string
	// Requires lists builder names built, in order, before this one.
	Requires []string
	// Action names a Go function registered in the action registry.
	Action string
	Inputs []*InputDefinition
}
