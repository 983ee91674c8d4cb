package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads every definition file under the given paths and translates
	// them into the format-agnostic model. Duplicate names across files are
	// a configuration error.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
