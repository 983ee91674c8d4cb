// Package checksum derives stable content digests from declared sets of
// tracked files. The digest is the atomic fact a build step's identity is
// built from: same file set, same contents, same relative paths, same digest,
// on any machine at any time.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/vk/packsmith/internal/fsutil"
)

// Tracker resolves a fixed set of glob patterns under a source root and
// digests the resulting files. The patterns are declared at construction;
// mutating them afterwards is unsupported.
type Tracker struct {
	root     string
	patterns []string
}

// NewTracker creates a tracker for the given patterns, each relative to root.
func NewTracker(root string, patterns []string) *Tracker {
	return &Tracker{root: root, patterns: append([]string(nil), patterns...)}
}

// Root returns the source root the patterns resolve against.
func (t *Tracker) Root() string { return t.root }

// Files resolves the tracked patterns to a sorted, de-duplicated list of
// root-relative file paths. Resolution happens per call, so the same tracker
// observes file additions and removals between runs.
func (t *Tracker) Files() ([]string, error) {
	return fsutil.ResolveGlobs(t.root, t.patterns)
}

// Sum feeds each resolved file into h: first its root-relative path, then its
// raw byte content, in sorted path order. Feeding the path makes renames
// change the digest even when contents are untouched.
func (t *Tracker) Sum(h hash.Hash) error {
	files, err := t.Files()
	if err != nil {
		return err
	}
	for _, rel := range files {
		if _, err := io.WriteString(h, rel); err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(t.root, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("read tracked file %s: %w", rel, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Checksum returns the hex sha256 digest of the tracked file set alone.
func (t *Tracker) Checksum() (string, error) {
	h := sha256.New()
	if err := t.Sum(h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Snapshot copies the resolved files into dstRoot, preserving their
// root-relative layout. The copy is the isolated working set a step's action
// runs against: it contains exactly the files that fed the digest, so an
// action touching anything else is visibly outside its declared inputs.
func (t *Tracker) Snapshot(dstRoot string) error {
	files, err := t.Files()
	if err != nil {
		return err
	}
	for _, rel := range files {
		src := filepath.Join(t.root, filepath.FromSlash(rel))
		dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
		if err := fsutil.CopyFile(src, dst); err != nil {
			return fmt.Errorf("snapshot %s: %w", rel, err)
		}
	}
	return nil
}
