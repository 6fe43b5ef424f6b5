package vault

import (
	"context"
	"fmt"

	"contactsync/internal/config"
	"contactsync/internal/contacts"
)

// NewVaultFromConfig creates a Vault implementation based on the archive
// config type. It returns nil for type "none".
func NewVaultFromConfig(ctx context.Context, cfg config.ArchiveConfig) (contacts.Vault, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemoryVault("archive"), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Vault(ctx, "archive", cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		return NewFileSystemVault("archive", cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
