// Package frozen_binary builds the agent into a single self-contained
// executable with PyInstaller, so target hosts need no Python installation.
package frozen_binary

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/vk/packsmith/internal/builder"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/procutil"
	"github.com/vk/packsmith/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnFrozenBinary is the handler for the 'frozen_binary' action. It runs
// PyInstaller against the agent entry point and leaves the resulting
// executable in the builder's output directory.
func OnFrozenBinary(ctx context.Context, inv *builder.Invocation) error {
	entry := inv.StringInput("entry")
	if entry == "" {
		entry = "agent_main.py"
	}
	name := inv.StringInput("filename")
	if name == "" {
		name = "agent"
	}

	ctxlog.FromContext(ctx).Info("Freezing agent binary.", "entry", entry, "filename", name)

	args := []string{
		"-m", "PyInstaller",
		filepath.Join(inv.SourceRoot, entry),
		"--onefile",
		"--name", name,
		"--distpath", inv.OutputPath,
		"--workpath", filepath.Join(inv.OutputPath, "build"),
		"--specpath", filepath.Join(inv.OutputPath, "build"),
	}
	if hidden := inv.StringInput("hidden_imports"); hidden != "" {
		for _, imp := range strings.Split(hidden, ",") {
			if imp = strings.TrimSpace(imp); imp != "" {
				args = append(args, "--hidden-import", imp)
			}
		}
	}

	_, err := procutil.Run(ctx, "python3", args, procutil.Options{Dir: inv.SourceRoot})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("frozen_binary", OnFrozenBinary)
}
