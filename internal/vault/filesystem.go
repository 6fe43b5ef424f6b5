package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"contactsync/internal/contacts"
)

// FileSystemVault stores archive objects as files under a root directory.
// An object key maps directly to a relative path:
//
//	<root>/
//	  exports/
//	    TODO_contacts_add_to_salesforce_<timestamp>.csv
//	  snapshots/
//	    contacts-<run id>.db
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

func (v *FileSystemVault) objectPath(key string) string {
	return filepath.Join(v.root, filepath.FromSlash(key))
}

// PutObject writes the object atomically, replacing any previous version.
func (v *FileSystemVault) PutObject(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	destPath := v.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	return writeFileAtomic(destPath, r, size)
}

// GetObject writes the object stored under key to w.
func (v *FileSystemVault) GetObject(key string, w io.Writer) error {
	if err := validateKey(key); err != nil {
		return err
	}

	f, err := os.Open(v.objectPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(key)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	return nil
}

// ListObjects walks the vault root and returns keys starting with prefix.
// Leftover temp files from interrupted writes are not listed.
func (v *FileSystemVault) ListObjects(prefix string) ([]string, error) {
	var keys []string
	err := fs.WalkDir(os.DirFS(v.root), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		if strings.HasPrefix(p, prefix) {
			keys = append(keys, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing vault objects: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// ValidateSetup verifies that the vault root is an accessible, writable directory.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}

	probe, err := os.CreateTemp(v.root, ".tmp-probe-*")
	if err != nil {
		return fmt.Errorf("vault root not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// writeFileAtomic writes data from r to destPath via a temp file in the same
// directory followed by a rename.
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements contacts.Vault interface
var _ contacts.Vault = (*FileSystemVault)(nil)
