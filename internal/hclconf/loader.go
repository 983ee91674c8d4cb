// Package hclconf loads packsmith definition files written in HCL and
// translates them into the config model.
package hclconf

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/packsmith/internal/config"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/fsutil"
	"github.com/vk/packsmith/internal/schema"
)

// Loader implements config.Loader for .hcl definition files.
type Loader struct{}

// NewLoader creates an HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements config.Loader. Each path may be a single .hcl file or a
// directory searched recursively.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("config path %s: %w", path, err)
		}
		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		} else {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl definition files found under %v", paths)
	}
	logger.Debug("Found definition files to load.", "files", files)

	model := config.NewModel()
	parser := hclparse.NewParser()

	for _, filePath := range files {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", filePath, diags)
		}

		var f schema.File
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &f); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", filePath, diags)
		}

		if err := translateFile(model, &f, filePath); err != nil {
			return nil, err
		}
		logger.Debug("Loaded definitions from file.", "file", filePath)
	}

	logger.Info("Configuration loaded.",
		"steps", len(model.Steps),
		"deployments", len(model.Deployments),
		"builders", len(model.Builders),
	)
	return model, nil
}

func translateFile(model *config.Model, f *schema.File, filePath string) error {
	for _, s := range f.Steps {
		if _, exists := model.Steps[s.Name]; exists {
			return fmt.Errorf("%s: step %q already defined", filePath, s.Name)
		}
		def, err := translateStep(s)
		if err != nil {
			return fmt.Errorf("%s: step %q: %w", filePath, s.Name, err)
		}
		model.Steps[s.Name] = def
	}

	for _, d := range f.Deployments {
		if _, exists := model.Deployments[d.Name]; exists {
			return fmt.Errorf("%s: deployment %q already defined", filePath, d.Name)
		}
		if len(d.Steps) == 0 {
			return fmt.Errorf("%s: deployment %q declares no steps", filePath, d.Name)
		}
		model.Deployments[d.Name] = &config.DeploymentDefinition{
			Name:         d.Name,
			Architecture: d.Architecture,
			BaseImage:    d.BaseImage,
			StepNames:    d.Steps,
		}
	}

	for _, b := range f.Builders {
		if _, exists := model.Builders[b.Name]; exists {
			return fmt.Errorf("%s: builder %q already defined", filePath, b.Name)
		}
		def, err := translateBuilder(b)
		if err != nil {
			return fmt.Errorf("%s: builder %q: %w", filePath, b.Name, err)
		}
		model.Builders[b.Name] = def
	}

	return nil
}

func translateStep(s *schema.Step) (*config.StepDefinition, error) {
	if s.Script == "" {
		return nil, fmt.Errorf("script must not be empty")
	}
	env, err := evalStringMap(s.Env)
	if err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	return &config.StepDefinition{
		Name:         s.Name,
		Script:       s.Script,
		TrackedFiles: s.TrackedFiles,
		Env:          env,
		Cacheable:    s.Cacheable,
	}, nil
}

func translateBuilder(b *schema.Builder) (*config.BuilderDefinition, error) {
	if b.Action == "" {
		return nil, fmt.Errorf("action must not be empty")
	}

	def := &config.BuilderDefinition{
		Name:           b.Name,
		DeploymentName: b.Deployment,
		Requires:       b.Requires,
		Action:         b.Action,
	}

	seen := make(map[string]struct{})
	for _, in := range b.Inputs {
		if in.Dest == "" {
			return nil, fmt.Errorf("input %q: dest must not be empty", in.Name)
		}
		if _, dup := seen[in.Dest]; dup {
			return nil, fmt.Errorf("input %q: duplicate dest %q", in.Name, in.Dest)
		}
		seen[in.Dest] = struct{}{}

		if in.Action != "" && in.Action != config.ActionStoreTrue {
			return nil, fmt.Errorf("input %q: unknown action %q", in.Name, in.Action)
		}

		defaultValue, err := evalDefault(in.Default)
		if err != nil {
			return nil, fmt.Errorf("input %q: default: %w", in.Name, err)
		}
		if in.Action == config.ActionStoreTrue && defaultValue == nil {
			defaultValue = false
		}

		def.Inputs = append(def.Inputs, &config.InputDefinition{
			Name:     in.Name,
			Dest:     in.Dest,
			Action:   in.Action,
			Default:  defaultValue,
			Required: in.Required,
		})
	}

	return def, nil
}
