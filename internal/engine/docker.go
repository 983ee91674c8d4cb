package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/procutil"
)

// DockerCLI implements Engine by shelling out to a docker-compatible binary.
type DockerCLI struct {
	bin string
}

// NewDockerCLI creates an engine around the given executable, "docker" when
// empty.
func NewDockerCLI(bin string) *DockerCLI {
	if bin == "" {
		bin = "docker"
	}
	return &DockerCLI{bin: bin}
}

func (d *DockerCLI) run(ctx context.Context, args ...string) (procutil.Result, error) {
	return procutil.Run(ctx, d.bin, args, procutil.Options{})
}

// ImageExists implements Engine via an image name query: a non-empty id list
// means the image is present locally.
func (d *DockerCLI) ImageExists(ctx context.Context, name string) (bool, error) {
	res, err := d.run(ctx, "images", "-q", name)
	if err != nil {
		return false, fmt.Errorf("query image %s: %w", name, err)
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// BuildImage implements Engine with the create/cp/commit/run/commit flow:
// an intermediate container seeded with the source snapshot is committed to a
// throwaway image, the step command runs in it, and the stopped container is
// committed under the result name.
func (d *DockerCLI) BuildImage(ctx context.Context, spec BuildSpec) error {
	logger := ctxlog.FromContext(ctx)

	scratch := "packsmith-intermediate-" + uuid.NewString()[:8]
	runName := scratch + "-run"

	defer func() {
		// Scratch containers and the intermediate image are disposable.
		cleanupCtx := context.WithoutCancel(ctx)
		d.run(cleanupCtx, "rm", "-f", scratch)
		d.run(cleanupCtx, "rm", "-f", runName)
		d.run(cleanupCtx, "image", "rm", "-f", scratch)
	}()

	createArgs := []string{"create", "--name", scratch}
	if spec.Platform != "" {
		createArgs = append(createArgs, "--platform", spec.Platform)
	}
	createArgs = append(createArgs, spec.Base)
	if _, err := d.run(ctx, createArgs...); err != nil {
		return fmt.Errorf("create intermediate container from %s: %w", spec.Base, err)
	}

	if _, err := d.run(ctx, "cp", "-a", spec.SourceDir+"/.", scratch+":"+SourceMount); err != nil {
		return fmt.Errorf("copy source into container: %w", err)
	}

	if _, err := d.run(ctx, "commit", scratch, scratch); err != nil {
		return fmt.Errorf("commit intermediate image: %w", err)
	}

	logger.Info("Building image.", "result", spec.ResultImage, "base", spec.Base)

	runArgs := []string{"run", "--name", runName, "--workdir", SourceMount}
	for _, e := range spec.Env {
		runArgs = append(runArgs, "-e", e)
	}
	runArgs = append(runArgs, scratch)
	runArgs = append(runArgs, spec.Command...)
	if _, err := d.run(ctx, runArgs...); err != nil {
		return err
	}

	if _, err := d.run(ctx, "commit", runName, spec.ResultImage); err != nil {
		return fmt.Errorf("commit result image %s: %w", spec.ResultImage, err)
	}
	return nil
}

// RunContainer implements Engine with a disposable `docker run --rm`.
func (d *DockerCLI) RunContainer(ctx context.Context, image string, cmd []string, opts RunOptions) error {
	args := []string{"run", "-i", "--rm"}
	if opts.Platform != "" {
		args = append(args, "--platform", opts.Platform)
	}
	if opts.WorkDir != "" {
		args = append(args, "--workdir", opts.WorkDir)
	}
	for _, m := range opts.Mounts {
		args = append(args, "-v", m.Host+":"+m.Container)
	}
	for _, e := range opts.Env {
		args = append(args, "-e", e)
	}
	args = append(args, image)
	args = append(args, cmd...)

	_, err := d.run(ctx, args...)
	return err
}

// SaveImage implements Engine via `docker save`.
func (d *DockerCLI) SaveImage(ctx context.Context, name, dst string) error {
	if _, err := d.run(ctx, "save", "-o", dst, name); err != nil {
		return fmt.Errorf("save image %s: %w", name, err)
	}
	return nil
}

// LoadImage implements Engine via `docker load`.
func (d *DockerCLI) LoadImage(ctx context.Context, src string) error {
	if _, err := d.run(ctx, "load", "-i", src); err != nil {
		return fmt.Errorf("load image from %s: %w", src, err)
	}
	return nil
}
