// Package fpm_package wraps a frozen agent binary into a system package
// (deb, rpm) with fpm.
package fpm_package

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/packsmith/internal/builder"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/fsutil"
	"github.com/vk/packsmith/internal/procutil"
	"github.com/vk/packsmith/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnFpmPackage is the handler for the 'fpm_package' action. It lays the
// frozen binary out into a package filesystem root and invokes fpm on it.
func OnFpmPackage(ctx context.Context, inv *builder.Invocation) error {
	variant := inv.StringInput("variant")
	if variant == "" {
		variant = "deb"
	}
	version := inv.StringInput("version")
	if version == "" {
		return fmt.Errorf("builder %q: a package version is required", inv.Name)
	}
	name := inv.StringInput("package_name")
	if name == "" {
		name = "agent"
	}

	binaryDir, ok := inv.RequiredOutputs["frozen-binary"]
	if !ok {
		return fmt.Errorf("builder %q: no frozen-binary output to package", inv.Name)
	}

	// The package root mirrors the target filesystem: the binary lands in
	// /usr/share/<name>/bin and fpm packages the whole tree.
	packageRoot := filepath.Join(inv.OutputPath, "package_root")
	installDir := filepath.Join(packageRoot, "usr", "share", name, "bin")
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return err
	}
	if err := fsutil.CopyTree(binaryDir, installDir); err != nil {
		return fmt.Errorf("stage frozen binary: %w", err)
	}

	args := []string{
		"-s", "dir",
		"-t", variant,
		"-n", name,
		"-v", version,
		"--chdir", packageRoot,
		"--license", "Apache 2.0",
		"--url", "https://github.com/vk/packsmith",
		"--description", "Log collection agent",
	}
	if inv.BoolInput("no_versioned_file_name") {
		args = append(args, "--package", filepath.Join(inv.OutputPath, name+"."+variant))
	} else {
		args = append(args, "--package", inv.OutputPath)
	}

	ctxlog.FromContext(ctx).Info("Building system package.", "variant", variant, "version", version)
	_, err := procutil.Run(ctx, "fpm", args, procutil.Options{Dir: inv.OutputPath})
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("fpm_package", OnFpmPackage)
}
