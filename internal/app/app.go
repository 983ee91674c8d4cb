package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/vk/packsmith/internal/buildenv"
	"github.com/vk/packsmith/internal/cache"
	"github.com/vk/packsmith/internal/config"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/engine"
	"github.com/vk/packsmith/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	env      *buildenv.Environment
	engine   engine.Engine
	cache    cache.Store
	registry *registry.Registry
	config   *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	env, err := buildenv.Load()
	if err != nil {
		// A broken environment is a fatal startup error.
		panic(err)
	}
	logger.Debug("Build environment loaded.", "source_root", env.SourceRoot, "in_container", env.InContainer)

	// Load all configuration into the format-agnostic model first.
	cfgModel, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	// Create and populate the registry with Go action handlers.
	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All action modules registered.", "count", len(modules))

	reg.PopulateDefinitionsFromModel(cfgModel)
	logger.Debug("Registry definitions populated from config model.")

	// Validate the integrity of the registry: unknown references and cyclic
	// requirements are programmer errors, caught before any build work.
	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	store, err := cache.NewDirStore(filepath.Join(env.CacheDir, "images"))
	if err != nil {
		panic(err)
	}

	return &App{
		outW:     outW,
		logger:   logger,
		env:      env,
		engine:   engine.NewDockerCLI(env.DockerBin),
		cache:    store,
		registry: reg,
		config:   cfgModel,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
