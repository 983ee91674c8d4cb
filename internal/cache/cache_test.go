package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	newStore := func(t *testing.T) *DirStore {
		s, err := NewDirStore(filepath.Join(t.TempDir(), "cache"))
		require.NoError(t, err)
		return s
	}

	t.Run("miss before save", func(t *testing.T) {
		s := newStore(t)
		assert.False(t, s.Exists("step_abc"))
		_, err := s.Load("step_abc")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("save and load a file", func(t *testing.T) {
		s := newStore(t)
		src := filepath.Join(t.TempDir(), "image.tar")
		require.NoError(t, os.WriteFile(src, []byte("tarball"), 0o644))

		require.NoError(t, s.Save("step_abc", src))
		require.True(t, s.Exists("step_abc"))

		path, err := s.Load("step_abc")
		require.NoError(t, err)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "tarball", string(got))
	})

	t.Run("save and load a directory", func(t *testing.T) {
		s := newStore(t)
		src := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "out.bin"), []byte("x"), 0o644))

		require.NoError(t, s.Save("step_dir", src))

		path, err := s.Load("step_dir")
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(path, "nested", "out.bin"))
		assert.NoError(t, err)
	})

	t.Run("existing entry is trusted and kept", func(t *testing.T) {
		s := newStore(t)
		first := filepath.Join(t.TempDir(), "a")
		require.NoError(t, os.WriteFile(first, []byte("first"), 0o644))
		require.NoError(t, s.Save("key", first))

		second := filepath.Join(t.TempDir(), "b")
		require.NoError(t, os.WriteFile(second, []byte("second"), 0o644))
		require.NoError(t, s.Save("key", second))

		path, err := s.Load("key")
		require.NoError(t, err)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("no staging leftovers after save", func(t *testing.T) {
		s := newStore(t)
		src := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(src, []byte("v"), 0o644))
		require.NoError(t, s.Save("clean", src))

		entries, err := os.ReadDir(s.Root())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "clean", entries[0].Name())
	})
}
