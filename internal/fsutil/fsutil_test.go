package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")
	writeFile(t, filepath.Join(root, "sub", "c.sh"), "c")

	t.Run("matches are sorted and root-relative", func(t *testing.T) {
		files, err := ResolveGlobs(root, []string{"*.txt", "sub/*.sh"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt", "sub/c.sh"}, files)
	})

	t.Run("pattern order does not matter", func(t *testing.T) {
		first, err := ResolveGlobs(root, []string{"*.txt", "sub/*.sh"})
		require.NoError(t, err)
		second, err := ResolveGlobs(root, []string{"sub/*.sh", "*.txt"})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("overlapping patterns de-duplicate", func(t *testing.T) {
		files, err := ResolveGlobs(root, []string{"a.txt", "*.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt"}, files)
	})

	t.Run("directories are skipped", func(t *testing.T) {
		files, err := ResolveGlobs(root, []string{"*"})
		require.NoError(t, err)
		assert.NotContains(t, files, "sub")
	})
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(dir, "stale.txt"), "old")

	require.NoError(t, ResetDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "f1"), "one")
	writeFile(t, filepath.Join(src, "nested", "f2"), "two")

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyTree(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "nested", "f2"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestCopyFilePreservesMode(t *testing.T) {
	src := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))

	dst := filepath.Join(t.TempDir(), "sub", "script.sh")
	require.NoError(t, CopyFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
