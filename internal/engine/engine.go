// Package engine defines the isolated-execution capability the build core
// depends on, plus a docker CLI implementation of it.
//
// The core never constructs container-engine command lines itself: it talks
// to the Engine interface only, so the concrete engine (docker, podman via
// PACKSMITH_DOCKER_BIN, a fake in tests) is swappable.
package engine

import "context"

// Mount binds a host path into a container.
type Mount struct {
	Host      string
	Container string
}

// BuildSpec describes one isolated step execution: derive a fresh context
// from Base, copy SourceDir in, run Command, and commit the result under
// ResultImage.
type BuildSpec struct {
	// Base is the image the step runs on top of.
	Base string
	// SourceDir is copied into the container at SourceMount before Command runs.
	SourceDir string
	// Command is executed with SourceMount as the working directory.
	Command []string
	// Env is extra environment for Command.
	Env []string
	// Platform optionally pins the target platform, e.g. "linux/amd64".
	Platform string
	// ResultImage is the name the committed result is tagged with.
	ResultImage string
}

// SourceMount is the in-container path the isolated source snapshot lands at.
const SourceMount = "/tmp/packsmith_source"

// RunOptions adjusts RunContainer.
type RunOptions struct {
	WorkDir  string
	Env      []string
	Mounts   []Mount
	Platform string
}

// Engine is the capability surface for an isolated execution context.
type Engine interface {
	// ImageExists reports whether a local image with the given name exists.
	ImageExists(ctx context.Context, name string) (bool, error)
	// BuildImage executes spec and leaves spec.ResultImage in the local
	// image namespace.
	BuildImage(ctx context.Context, spec BuildSpec) error
	// RunContainer runs cmd in a fresh disposable container of image.
	RunContainer(ctx context.Context, image string, cmd []string, opts RunOptions) error
	// SaveImage serializes the named image into the file at dst.
	SaveImage(ctx context.Context, name, dst string) error
	// LoadImage restores an image previously serialized with SaveImage.
	LoadImage(ctx context.Context, src string) error
}
