package step

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/packsmith/internal/buildenv"
	"github.com/vk/packsmith/internal/config"
	"github.com/vk/packsmith/internal/engine"
)

// fakeEngine records container-engine calls and serves a configurable image
// namespace.
type fakeEngine struct {
	images     map[string]bool
	buildCalls []engine.BuildSpec
	loadCalls  []string
	saveCalls  []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{images: make(map[string]bool)}
}

func (f *fakeEngine) ImageExists(_ context.Context, name string) (bool, error) {
	return f.images[name], nil
}

func (f *fakeEngine) BuildImage(_ context.Context, spec engine.BuildSpec) error {
	f.buildCalls = append(f.buildCalls, spec)
	f.images[spec.ResultImage] = true
	return nil
}

func (f *fakeEngine) RunContainer(context.Context, string, []string, engine.RunOptions) error {
	return nil
}

func (f *fakeEngine) SaveImage(_ context.Context, name, dst string) error {
	f.saveCalls = append(f.saveCalls, name)
	return os.WriteFile(dst, []byte("fake tar of "+name), 0o644)
}

func (f *fakeEngine) LoadImage(_ context.Context, src string) error {
	f.loadCalls = append(f.loadCalls, src)
	return nil
}

// fakeStore is an in-memory cache.Store.
type fakeStore struct {
	entries map[string]string
	saves   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]string)}
}

func (f *fakeStore) Exists(key string) bool { _, ok := f.entries[key]; return ok }

func (f *fakeStore) Save(key, src string) error {
	f.entries[key] = src
	f.saves = append(f.saves, key)
	return nil
}

func (f *fakeStore) Load(key string) (string, error) { return f.entries[key], nil }

func testEnv(t *testing.T) *buildenv.Environment {
	t.Helper()
	root := t.TempDir()
	return &buildenv.Environment{
		SourceRoot: root,
		CacheDir:   filepath.Join(root, "build", "step_cache"),
		OutputDir:  filepath.Join(root, "build", "output"),
	}
}

func writeSource(t *testing.T, env *buildenv.Environment, rel, content string) {
	t.Helper()
	path := filepath.Join(env.SourceRoot, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testDeps(env *buildenv.Environment) (Deps, *fakeEngine, *fakeStore) {
	eng := newFakeEngine()
	store := newFakeStore()
	return Deps{Env: env, Engine: eng, Cache: store}, eng, store
}

func chainAB(t *testing.T, env *buildenv.Environment, deps Deps) (*Step, *Step) {
	t.Helper()
	a := New(&config.StepDefinition{
		Name:         "step_a",
		Script:       "scripts/a.sh",
		TrackedFiles: []string{"f1.txt"},
	}, nil, "", "", deps)
	b := New(&config.StepDefinition{
		Name:         "step_b",
		Script:       "scripts/b.sh",
		TrackedFiles: []string{"f2.txt"},
	}, a, "", "", deps)
	return a, b
}

func TestChecksumChainComposition(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")
	writeSource(t, env, "scripts/b.sh", "echo b")
	writeSource(t, env, "f1.txt", "one")
	writeSource(t, env, "f2.txt", "two")

	a1, b1 := chainAB(t, env, deps)
	sumA1, err := a1.Checksum()
	require.NoError(t, err)
	sumB1, err := b1.Checksum()
	require.NoError(t, err)

	t.Run("changing f2 changes only B", func(t *testing.T) {
		writeSource(t, env, "f2.txt", "two-changed")
		a2, b2 := chainAB(t, env, deps)

		sumA2, err := a2.Checksum()
		require.NoError(t, err)
		sumB2, err := b2.Checksum()
		require.NoError(t, err)

		assert.Equal(t, sumA1, sumA2)
		assert.NotEqual(t, sumB1, sumB2)
	})

	t.Run("changing f1 changes both A and B", func(t *testing.T) {
		writeSource(t, env, "f2.txt", "two") // restore
		writeSource(t, env, "f1.txt", "one-changed")
		a3, b3 := chainAB(t, env, deps)

		sumA3, err := a3.Checksum()
		require.NoError(t, err)
		sumB3, err := b3.Checksum()
		require.NoError(t, err)

		assert.NotEqual(t, sumA1, sumA3)
		assert.NotEqual(t, sumB1, sumB3)
	})
}

func TestChecksumIncludesEnvAndBaseImage(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")

	def := &config.StepDefinition{Name: "s", Script: "scripts/a.sh"}
	plain, err := New(def, nil, "", "", deps).Checksum()
	require.NoError(t, err)

	withEnv, err := New(&config.StepDefinition{
		Name:   "s",
		Script: "scripts/a.sh",
		Env:    map[string]string{"V": "1"},
	}, nil, "", "", deps).Checksum()
	require.NoError(t, err)
	assert.NotEqual(t, plain, withEnv)

	withImage, err := New(def, nil, "centos:7", "", deps).Checksum()
	require.NoError(t, err)
	assert.NotEqual(t, plain, withImage)
}

func TestIDFormat(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")

	s := New(&config.StepDefinition{Name: "install_deps", Script: "scripts/a.sh"}, nil, "", "", deps)
	id, err := s.ID()
	require.NoError(t, err)
	sum, err := s.Checksum()
	require.NoError(t, err)
	assert.Equal(t, "install_deps_"+sum, id)
}

func TestHostRunIsIdempotent(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)
	marker := filepath.Join(t.TempDir(), "runs.log")

	writeSource(t, env, "scripts/build.sh",
		"echo ran >> \"$MARKER\"\necho artifact > \"$2\"/result.txt\n")

	def := &config.StepDefinition{
		Name:   "host_step",
		Script: "scripts/build.sh",
		Env:    map[string]string{"MARKER": marker},
	}
	s := New(def, nil, "", "", deps)

	ctx := context.Background()
	require.NoError(t, s.Run(ctx))

	// Second run on a fresh instance must be a skip.
	require.NoError(t, New(def, nil, "", "", deps).Run(ctx))

	runs, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "ran\n", string(runs))

	id, err := s.ID()
	require.NoError(t, err)
	artifact, err := os.ReadFile(filepath.Join(env.StepOutputDir(id), "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "artifact\n", string(artifact))
}

func TestHostRunSeesOnlyTrackedFiles(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)

	writeSource(t, env, "tracked.txt", "yes")
	writeSource(t, env, "untracked.txt", "no")
	writeSource(t, env, "scripts/check.sh",
		"ls > \"$2\"/listing.txt\n")

	s := New(&config.StepDefinition{
		Name:         "isolation",
		Script:       "scripts/check.sh",
		TrackedFiles: []string{"tracked.txt"},
	}, nil, "", "", deps)

	require.NoError(t, s.Run(context.Background()))

	id, err := s.ID()
	require.NoError(t, err)
	listing, err := os.ReadFile(filepath.Join(env.StepOutputDir(id), "listing.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(listing), "tracked.txt")
	assert.NotContains(t, string(listing), "untracked.txt")
}

func TestHostRunFailure(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)

	writeSource(t, env, "scripts/fail.sh",
		"echo some progress\necho broken tool >&2\nexit 2\n")

	s := New(&config.StepDefinition{Name: "failing", Script: "scripts/fail.sh"}, nil, "", "", deps)

	err := s.Run(context.Background())
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Stdout, "some progress")
	assert.Contains(t, runErr.Stderr, "broken tool")

	// A failed run must not leave an output directory behind.
	id, idErr := s.ID()
	require.NoError(t, idErr)
	_, statErr := os.Stat(env.StepOutputDir(id))
	assert.True(t, os.IsNotExist(statErr))
}

func TestContainerRunSkipsExistingImage(t *testing.T) {
	env := testEnv(t)
	deps, eng, _ := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")

	s := New(&config.StepDefinition{Name: "docker_step", Script: "scripts/a.sh"}, nil, "centos:7", "x86_64", deps)
	image, err := s.ImageName()
	require.NoError(t, err)
	eng.images[image] = true

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, eng.buildCalls)
}

func TestContainerRunBuildsAndCommits(t *testing.T) {
	env := testEnv(t)
	deps, eng, _ := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")

	s := New(&config.StepDefinition{Name: "docker_step", Script: "scripts/a.sh"}, nil, "centos:7", "x86_64", deps)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, eng.buildCalls, 1)
	spec := eng.buildCalls[0]
	assert.Equal(t, "centos:7", spec.Base)
	assert.Equal(t, "linux/amd64", spec.Platform)
	image, err := s.ImageName()
	require.NoError(t, err)
	assert.Equal(t, image, spec.ResultImage)

	// Second run now finds the committed image.
	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, eng.buildCalls, 1)
}

func TestContainerRunCacheFastPathInCI(t *testing.T) {
	env := testEnv(t)
	env.InCICD = true
	deps, eng, store := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")

	s := New(&config.StepDefinition{Name: "docker_step", Script: "scripts/a.sh"}, nil, "centos:7", "", deps)
	image, err := s.ImageName()
	require.NoError(t, err)
	store.entries[image] = "/cache/" + image

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, eng.buildCalls)
	assert.Equal(t, []string{"/cache/" + image}, eng.loadCalls)
}

func TestContainerRunPersistsToCacheInCI(t *testing.T) {
	env := testEnv(t)
	env.InCICD = true
	deps, eng, store := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")

	s := New(&config.StepDefinition{Name: "docker_step", Script: "scripts/a.sh"}, nil, "centos:7", "", deps)
	require.NoError(t, s.Run(context.Background()))

	image, err := s.ImageName()
	require.NoError(t, err)
	assert.Len(t, eng.buildCalls, 1)
	assert.Equal(t, []string{image}, eng.saveCalls)
	assert.Equal(t, []string{image}, store.saves)
}

func TestChainedContainerStepUsesPredecessorImage(t *testing.T) {
	env := testEnv(t)
	deps, eng, _ := testDeps(env)
	writeSource(t, env, "scripts/a.sh", "echo a")
	writeSource(t, env, "scripts/b.sh", "echo b")

	a := New(&config.StepDefinition{Name: "first", Script: "scripts/a.sh"}, nil, "debian:12", "", deps)
	b := New(&config.StepDefinition{Name: "second", Script: "scripts/b.sh"}, a, "", "", deps)

	require.NoError(t, b.Run(context.Background()))

	require.Len(t, eng.buildCalls, 2)
	imageA, err := a.ImageName()
	require.NoError(t, err)
	assert.Equal(t, "debian:12", eng.buildCalls[0].Base)
	assert.Equal(t, imageA, eng.buildCalls[1].Base)
}

func TestCacheableChain(t *testing.T) {
	env := testEnv(t)
	deps, _, _ := testDeps(env)

	a := New(&config.StepDefinition{Name: "a", Script: "a.sh", Cacheable: true}, nil, "", "", deps)
	b := New(&config.StepDefinition{Name: "b", Script: "b.sh"}, a, "", "", deps)
	c := New(&config.StepDefinition{Name: "c", Script: "c.sh", Cacheable: true}, b, "", "", deps)

	chain := c.CacheableChain()
	require.Len(t, chain, 2)
	assert.Equal(t, "c", chain[0].Name())
	assert.Equal(t, "a", chain[1].Name())
}

func TestRunErrorTail(t *testing.T) {
	e := &RunError{
		Step:      "s",
		Stdout:    "l1\nl2\nl3\n",
		Stderr:    "",
		TailLines: 2,
		Err:       assert.AnError,
	}
	msg := e.Error()
	assert.Contains(t, msg, "l2\nl3")
	assert.NotContains(t, msg, "l1\n")
}
