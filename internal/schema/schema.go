// Package schema declares the HCL block structure of packsmith definition
// files. These types exist purely for decoding; the loader translates them
// into the format-agnostic records in the config package.
package schema

import "github.com/hashicorp/hcl/v2"

// Step represents a `step` block: one unit of build work wrapping a script.
type Step struct {
	Name         string         `hcl:"name,label"`
	Script       string         `hcl:"script"`
	TrackedFiles []string       `hcl:"tracked_files,optional"`
	Env          hcl.Expression `hcl:"env,optional"`
	Cacheable    bool           `hcl:"cacheable,optional"`
}

// Deployment represents a `deployment` block: a named ordered step chain.
type Deployment struct {
	Name         string   `hcl:"name,label"`
	Architecture string   `hcl:"architecture,optional"`
	BaseImage    string   `hcl:"base_image,optional"`
	Steps        []string `hcl:"steps"`
}

// Input represents an `input` block within a builder.
type Input struct {
	Name     string         `hcl:"name,label"`
	Dest     string         `hcl:"dest"`
	Action   string         `hcl:"action,optional"`
	Default  hcl.Expression `hcl:"default,optional"`
	Required bool           `hcl:"required,optional"`
}

// Builder represents a `builder` block: an artifact producer composed of a
// deployment, required builders, declared inputs, and a registered action.
type Builder struct {
	Name       string   `hcl:"name,label"`
	Deployment string   `hcl:"deployment,optional"`
	Requires   []string `hcl:"requires,optional"`
	Action     string   `hcl:"action"`
	Inputs     []*Input `hcl:"input,block"`
}

// File represents the top-level structure of one definition file.
type File struct {
	Steps       []*Step       `hcl:"step,block"`
	Deployments []*Deployment `hcl:"deployment,block"`
	Builders    []*Builder    `hcl:"builder,block"`
}
