// Package step implements the content-addressed unit of build work.
//
// A Step's identity is its name plus a checksum composed from the
// predecessor's checksum, the base image and architecture of its chain, its
// sorted environment pairs, and the content of its tracked files. Two steps
// with the same id are interchangeable: their cached artifacts can be reused
// freely, which is what makes Run idempotent.
package step

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/packsmith/internal/buildenv"
	"github.com/vk/packsmith/internal/cache"
	"github.com/vk/packsmith/internal/checksum"
	"github.com/vk/packsmith/internal/config"
	"github.com/vk/packsmith/internal/ctxlog"
	"github.com/vk/packsmith/internal/engine"
	"github.com/vk/packsmith/internal/fsutil"
	"github.com/vk/packsmith/internal/procutil"
	"github.com/vk/packsmith/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// In-container landing spots for the step's cache and output directories.
// Part of the script contract: a step running inside a container writes its
// results under ContainerOutputDir, and they stay there in the committed image.
const (
	ContainerCacheDir  = "/tmp/packsmith_cache"
	ContainerOutputDir = "/tmp/packsmith_output"
)

// Deps carries the external collaborators a step runs against.
type Deps struct {
	Env    *buildenv.Environment
	Engine engine.Engine
	Cache  cache.Store
}

// Step is a cacheable, content-addressed unit of build work, optionally
// chained to a predecessor. A predecessor is referenced, not owned: several
// steps and deployments may chain off the same instance.
type Step struct {
	def          *config.StepDefinition
	prev         *Step
	baseImage    string
	architecture string
	tracker      *checksum.Tracker
	deps         Deps

	sum string // memoized checksum
}

// New instantiates a step from its definition. Exactly one of prev and
// baseImage may be set: a chained step inherits its execution context from
// the predecessor, a first step gets it (possibly empty, meaning host-native)
// from the deployment.
func New(def *config.StepDefinition, prev *Step, baseImage, architecture string, deps Deps) *Step {
	// The script is an input like any other tracked file: editing it must
	// change the checksum.
	globs := append([]string(nil), def.TrackedFiles...)
	globs = append(globs, def.Script)

	return &Step{
		def:          def,
		prev:         prev,
		baseImage:    baseImage,
		architecture: architecture,
		tracker:      checksum.NewTracker(deps.Env.SourceRoot, globs),
		deps:         deps,
	}
}

// Name returns the step's human label. Not unique on its own; see ID.
func (s *Step) Name() string { return s.def.Name }

// Cacheable reports whether the step's result is persisted to the cache.
func (s *Step) Cacheable() bool { return s.def.Cacheable }

// Previous returns the predecessor step, or nil.
func (s *Step) Previous() *Step { return s.prev }

// Checksum returns the composed content checksum. The value is memoized:
// tracked inputs are declared at construction and mutating them between runs
// is unsupported.
func (s *Step) Checksum() (string, error) {
	if s.sum != "" {
		return s.sum, nil
	}

	h := sha256.New()
	if s.prev != nil {
		prevSum, err := s.prev.Checksum()
		if err != nil {
			return "", err
		}
		io.WriteString(h, prevSum)
	}
	io.WriteString(h, s.baseImage)
	io.WriteString(h, s.architecture)

	keys := make([]string, 0, len(s.def.Env))
	for k := range s.def.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(h, k)
		io.WriteString(h, s.def.Env[k])
	}

	if err := s.tracker.Sum(h); err != nil {
		return "", fmt.Errorf("checksum step %q: %w", s.def.Name, err)
	}

	s.sum = hex.EncodeToString(h.Sum(nil))
	return s.sum, nil
}

// ID returns the step's unique identity: name plus checksum. Steps with
// identical ids produce interchangeable artifacts.
func (s *Step) ID() (string, error) {
	sum, err := s.Checksum()
	if err != nil {
		return "", err
	}
	return s.def.Name + "_" + sum, nil
}

// ImageName returns the container image name the step's result is committed
// under, equal to the lower-cased id.
func (s *Step) ImageName() (string, error) {
	id, err := s.ID()
	if err != nil {
		return "", err
	}
	return strings.ToLower(id), nil
}

// InitialBaseImage returns the base image of the oldest ancestor in the
// chain. Empty means the whole chain is host-native.
func (s *Step) InitialBaseImage() string {
	if s.prev != nil {
		return s.prev.InitialBaseImage()
	}
	return s.baseImage
}

// RunsInContainer reports whether the step executes inside an isolated
// container context rather than on the host.
func (s *Step) RunsInContainer() bool {
	return s.InitialBaseImage() != ""
}

// CacheableChain returns this step and its ancestors that are marked
// cacheable, newest first.
func (s *Step) CacheableChain() []*Step {
	var result []*Step
	if s.def.Cacheable {
		result = append(result, s)
	}
	if s.prev != nil {
		result = append(result, s.prev.CacheableChain()...)
	}
	return result
}

// Run executes the step. The predecessor always runs first; it has its own
// skip logic, so this is cheap when nothing changed. Run is idempotent: a
// second invocation with unchanged inputs finds the committed image or the
// content-addressed output directory and skips the action.
func (s *Step) Run(ctx context.Context) error {
	if s.prev != nil {
		if err := s.prev.Run(ctx); err != nil {
			return err
		}
	}

	id, err := s.ID()
	if err != nil {
		return err
	}
	ctx = ctxlog.With(ctx, "step", s.def.Name, "id", id)

	ctx, span := telemetry.Tracer().Start(ctx, "step.run")
	span.SetAttributes(
		attribute.String("step.name", s.def.Name),
		attribute.String("step.id", id),
		attribute.Bool("step.in_container", s.RunsInContainer()),
	)
	defer span.End()

	if s.RunsInContainer() {
		return s.runInContainer(ctx, id)
	}
	return s.runOnHost(ctx, id)
}

// runOnHost executes the script directly, against an isolated snapshot
// holding only the tracked files. The output directory is content-addressed,
// so its presence marks the step as already done.
func (s *Step) runOnHost(ctx context.Context, id string) error {
	logger := ctxlog.FromContext(ctx)

	outputDir := s.deps.Env.StepOutputDir(id)
	if _, err := os.Stat(outputDir); err == nil {
		logger.Info("Output for step already exists, skipping.")
		return nil
	}

	sourceDir := s.deps.Env.StepSourceDir(id)
	if err := fsutil.ResetDir(sourceDir); err != nil {
		return err
	}
	if err := s.tracker.Snapshot(sourceDir); err != nil {
		return fmt.Errorf("isolate source for step %q: %w", s.def.Name, err)
	}

	cacheDir := s.deps.Env.StepCacheDir(id)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}

	// The action writes into a staging directory that is renamed into place
	// on success, so a failed run never masquerades as a completed one.
	staging := outputDir + ".tmp"
	if err := fsutil.ResetDir(staging); err != nil {
		return err
	}

	logger.Info("Running step on host.")
	_, err := procutil.Run(ctx, s.interpreter(), s.scriptArgs(cacheDir, staging), procutil.Options{
		Dir: sourceDir,
		Env: s.scriptEnv(),
	})
	if err != nil {
		os.RemoveAll(staging)
		return wrapRunError(s.def.Name, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputDir), 0o755); err != nil {
		return err
	}
	return os.Rename(staging, outputDir)
}

// runInContainer executes the script inside a fresh isolated context derived
// from the chain's base, committing the result under the step's image name.
func (s *Step) runInContainer(ctx context.Context, id string) error {
	logger := ctxlog.FromContext(ctx)

	imageName, err := s.ImageName()
	if err != nil {
		return err
	}

	exists, err := s.deps.Engine.ImageExists(ctx, imageName)
	if err != nil {
		return err
	}
	if exists {
		logger.Info("Image already exists, skipping build and reusing it.", "image", imageName)
		return nil
	}

	saveToCache := false
	if s.deps.Env.InCICD {
		if s.deps.Cache.Exists(imageName) {
			cached, err := s.deps.Cache.Load(imageName)
			if err != nil {
				return err
			}
			logger.Info("Cached image found, loading instead of building.", "image", imageName)
			return s.deps.Engine.LoadImage(ctx, cached)
		}
		saveToCache = true
	}

	sourceDir := s.deps.Env.StepSourceDir(id)
	if err := fsutil.ResetDir(sourceDir); err != nil {
		return err
	}
	if err := s.tracker.Snapshot(sourceDir); err != nil {
		return fmt.Errorf("isolate source for step %q: %w", s.def.Name, err)
	}

	base := s.baseImage
	if s.prev != nil {
		if base, err = s.prev.ImageName(); err != nil {
			return err
		}
	}

	logger.Info("Building step image.", "image", imageName, "base", base)
	command := append([]string{s.interpreter()}, s.scriptArgs(ContainerCacheDir, ContainerOutputDir)...)
	err = s.deps.Engine.BuildImage(ctx, engine.BuildSpec{
		Base:        base,
		SourceDir:   sourceDir,
		Command:     command,
		Env:         s.scriptEnv(),
		Platform:    PlatformFor(s.architecture),
		ResultImage: imageName,
	})
	if err != nil {
		return wrapRunError(s.def.Name, err)
	}

	if saveToCache {
		logger.Info("Saving image to cache.", "image", imageName)
		return s.persistImage(ctx, imageName)
	}
	return nil
}

func (s *Step) persistImage(ctx context.Context, imageName string) error {
	tmp, err := os.CreateTemp("", "packsmith-image-*.tar")
	if err != nil {
		return err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.deps.Engine.SaveImage(ctx, imageName, tmp.Name()); err != nil {
		return err
	}
	return s.deps.Cache.Save(imageName, tmp.Name())
}

// interpreter picks the program that runs the step script.
func (s *Step) interpreter() string {
	if strings.HasSuffix(s.def.Script, ".ps1") {
		return "powershell"
	}
	return "/bin/bash"
}

// scriptArgs builds the script's argument list. By contract the action
// receives its cache directory and its output directory and must write
// results under the latter. The script path stays relative: it resolves
// against the isolated source snapshot the interpreter runs in.
func (s *Step) scriptArgs(cacheDir, outputDir string) []string {
	return []string{filepath.FromSlash(s.def.Script), cacheDir, outputDir}
}

func (s *Step) scriptEnv() []string {
	var env []string
	keys := make([]string, 0, len(s.def.Env))
	for k := range s.def.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.def.Env[k])
	}
	if s.deps.Env.InCICD {
		env = append(env, buildenv.EnvPrefix+"_IN_CICD=true")
	}
	return env
}

// PlatformFor maps a deployment architecture to a container platform string.
func PlatformFor(architecture string) string {
	switch architecture {
	case "x86_64", "amd64":
		return "linux/amd64"
	case "aarch64", "arm64":
		return "linux/arm64"
	default:
		return ""
	}
}
