// Package cache implements the on-disk artifact store keyed by step ids.
//
// Keys are content-addressed, so two entries with the same key are assumed to
// hold the same bytes. Entries are published by atomic rename: a concurrent
// reader either sees a complete entry or none at all. Writer-vs-writer races
// stay last-writer-wins, which is harmless for content-addressed keys.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vk/packsmith/internal/fsutil"
)

// Store is the key-value contract the build core depends on. Values are
// files or whole directories.
type Store interface {
	// Exists reports whether an entry for key is present.
	Exists(key string) bool
	// Save copies the file or directory at src into the store under key.
	Save(key, src string) error
	// Load returns the on-disk path of the cached entry for key.
	Load(key string) (string, error)
}

// ErrMiss is returned by Load for keys without an entry.
var ErrMiss = fmt.Errorf("cache entry not found")

// DirStore is a Store backed by a local directory tree, one entry per key.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir, creating it if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &DirStore{root: dir}, nil
}

// Root returns the directory the store lives in.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) entryPath(key string) string {
	return filepath.Join(s.root, key)
}

// Exists implements Store.
func (s *DirStore) Exists(key string) bool {
	_, err := os.Stat(s.entryPath(key))
	return err == nil
}

// Save implements Store. The entry is staged under a temporary name and
// renamed into place, so partially written entries are never visible under
// the final key. A pre-existing entry is kept as is: same key, same content.
func (s *DirStore) Save(key, src string) error {
	if s.Exists(key) {
		return nil
	}

	staging := s.entryPath(key + ".tmp-" + uuid.NewString())
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("cache save %s: %w", key, err)
	}
	if info.IsDir() {
		err = fsutil.CopyTree(src, staging)
	} else {
		err = fsutil.CopyFile(src, staging)
	}
	if err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("cache save %s: %w", key, err)
	}

	if err := os.Rename(staging, s.entryPath(key)); err != nil {
		os.RemoveAll(staging)
		// Lost the publication race. The winner wrote identical content.
		if s.Exists(key) {
			return nil
		}
		return fmt.Errorf("cache publish %s: %w", key, err)
	}
	return nil
}

// Load implements Store.
func (s *DirStore) Load(key string) (string, error) {
	path := s.entryPath(key)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMiss, key)
	}
	return path, nil
}
