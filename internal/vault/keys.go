package vault

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned by GetObject for a key that was never stored.
var ErrObjectNotFound = errors.New("object not found")

const (
	exportsPrefix   = "exports/"
	snapshotsPrefix = "snapshots/"
)

// ExportKey returns the archive key for an export file given its OS path.
func ExportKey(fileName string) string {
	return exportsPrefix + filepath.Base(fileName)
}

// SnapshotKey returns the archive key for the store snapshot taken after a run.
func SnapshotKey(runID string) string {
	return snapshotsPrefix + "contacts-" + runID + ".db"
}

// validateKey rejects keys that could escape the vault root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid object key %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
}
