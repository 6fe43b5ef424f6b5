package contacts

import "io"

// Vault is an off-site archive for export files and store snapshots.
// Keys are slash-separated relative paths such as "exports/<file>".
// Operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutObject stores the size bytes read from r under key, replacing any
	// previous object with that key.
	PutObject(key string, r io.Reader, size int64) error

	// GetObject writes the object stored under key to w.
	GetObject(key string, w io.Writer) error

	// ListObjects returns the keys that start with prefix, sorted.
	ListObjects(prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
