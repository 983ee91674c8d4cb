// Package container_image builds the distributable agent container image from
// a Dockerfile in the source tree.
package container_image

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/packsmith/internal/builder"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/procutil"
	"github.com/vk/packsmith/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnContainerImage is the handler for the 'container_image' action. It shells
// out to the container engine's own builder and records the produced tag in
// the output directory.
func OnContainerImage(ctx context.Context, inv *builder.Invocation) error {
	repository := inv.StringInput("repository")
	if repository == "" {
		repository = "agent"
	}
	tag := inv.StringInput("tag")
	if tag == "" {
		tag = "latest"
	}
	dockerfile := inv.StringInput("dockerfile")
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	dockerBin := os.Getenv("PACKSMITH_DOCKER_BIN")
	if dockerBin == "" {
		dockerBin = "docker"
	}

	image := repository + ":" + tag
	args := []string{"build", "-t", image, "-f", dockerfile}
	if platform := inv.StringInput("platform"); platform != "" {
		args = append(args, "--platform", platform)
	}
	args = append(args, ".")

	ctxlog.FromContext(ctx).Info("Building agent container image.", "image", image)
	if _, err := procutil.Run(ctx, dockerBin, args, procutil.Options{Dir: inv.SourceRoot}); err != nil {
		return fmt.Errorf("build image %q: %w", image, err)
	}

	// Downstream release tooling reads the produced tag from here.
	return os.WriteFile(inv.OutputPath+"/image_tag", []byte(image+"\n"), 0o644)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("container_image", OnContainerImage)
}
