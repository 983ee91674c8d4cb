package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vk/packsmith/internal/builder"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/registry"
	"github.com/vk/packsmith/internal/telemetry"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.env.TraceFile != "" {
		f, err := os.Create(a.env.TraceFile)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()

		shutdown, err := telemetry.Init(ctx, f)
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer shutdown(context.WithoutCancel(ctx))
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}
	deps := registry.Deps{
		Env:        a.env,
		Engine:     a.engine,
		Cache:      a.cache,
		ConfigPath: appConfig.ConfigPath,
		Executable: executable,
	}

	if appConfig.Deploy {
		d, err := a.registry.NewDeployment(appConfig.Target, deps)
		if err != nil {
			return err
		}
		return d.Deploy(ctx)
	}

	b, err := a.registry.NewBuilder(appConfig.Target, appConfig.BuilderArgs, deps)
	if err != nil {
		return err
	}

	switch {
	case appConfig.ListCacheableSteps:
		return a.listCacheableSteps(b)
	case appConfig.RunCacheableSteps:
		return a.runCacheableSteps(ctx, b)
	}

	a.logger.Info("Starting build.", "builder", b.Name())
	err = b.Build(ctx, builder.ExecContext{
		InsideContainer: a.env.InContainer,
		ForceLocal:      appConfig.Locally,
	})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	a.logger.Info("Build finished.", "output", b.OutputPath())
	return nil
}

// listCacheableSteps prints the target's cacheable step ids as JSON, the
// format CI pipelines consume to warm caches per step.
func (a *App) listCacheableSteps(b *builder.Builder) error {
	steps, err := b.CacheableSteps()
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		id, err := s.ID()
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	enc := json.NewEncoder(a.outW)
	return enc.Encode(ids)
}

// runCacheableSteps runs only the target's cacheable steps, so a CI job can
// populate the cache without producing the final artifact.
func (a *App) runCacheableSteps(ctx context.Context, b *builder.Builder) error {
	steps, err := b.CacheableSteps()
	if err != nil {
		return err
	}
	for _, s := range steps {
		if err := s.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
