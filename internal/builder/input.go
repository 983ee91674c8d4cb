package builder

import (
	"fmt"
	"strings"

	"github.com/vk/packsmith/internal/config"
)

// ParseArgs resolves a builder's declared inputs against command-line
// arguments. Values are strings, except store_true inputs which are bools.
// Defaults fill absent inputs; a required input with no value and no default
// fails before anything else happens.
func ParseArgs(defs []*config.InputDefinition, args []string) (map[string]any, error) {
	byName := make(map[string]*config.InputDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	values := make(map[string]any, len(defs))
	for i := 0; i < len(args); i++ {
		name, inline, hasInline := strings.Cut(args[i], "=")
		def, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown input %q", args[i])
		}

		if def.Action == config.ActionStoreTrue {
			if hasInline {
				return nil, fmt.Errorf("input %q takes no value", name)
			}
			values[def.Dest] = true
			continue
		}

		if hasInline {
			values[def.Dest] = inline
			continue
		}
		i++
		if i >= len(args) {
			return nil, fmt.Errorf("input %q expects a value", name)
		}
		values[def.Dest] = args[i]
	}

	for _, def := range defs {
		if _, ok := values[def.Dest]; ok {
			continue
		}
		if def.Default != nil {
			values[def.Dest] = def.Default
			continue
		}
		if def.Required {
			return nil, fmt.Errorf("required input %q is missing", def.Name)
		}
	}

	return values, nil
}

// CommandLine regenerates the argument list that reproduces values, for
// re-dispatching a builder into a container. Inputs with no value are
// omitted; store_true inputs appear as a bare flag only when true.
func CommandLine(defs []*config.InputDefinition, values map[string]any) []string {
	var args []string
	for _, def := range defs {
		v, ok := values[def.Dest]
		if !ok || v == nil {
			continue
		}
		if def.Action == config.ActionStoreTrue {
			if b, ok := v.(bool); ok && b {
				args = append(args, def.Name)
			}
			continue
		}
		args = append(args, def.Name, fmt.Sprint(v))
	}
	return args
}
