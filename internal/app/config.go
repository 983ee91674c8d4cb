package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath  string // hcl files
	Target      string // builder name, or deployment name with Deploy
	BuilderArgs []string

	Deploy             bool
	Locally            bool
	ListCacheableSteps bool
	RunCacheableSteps  bool

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Target == "" {
		return nil, errors.New("Target is a required configuration field and cannot be empty")
	}
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.ListCacheableSteps && cfg.RunCacheableSteps {
		return nil, errors.New("list-cacheable-steps and run-cacheable-steps are mutually exclusive")
	}
	if cfg.Deploy && (cfg.ListCacheableSteps || cfg.RunCacheableSteps) {
		return nil, errors.New("cacheable-step modes apply to builders, not deployments")
	}

	return &cfg, nil
}
