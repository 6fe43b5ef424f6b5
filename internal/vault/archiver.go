package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"contactsync/internal/contacts"
)

// Archiver seals local files with an Encryptor and stores them in a Vault.
type Archiver struct {
	vault  contacts.Vault
	enc    contacts.Encryptor
	logger contacts.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(v contacts.Vault, enc contacts.Encryptor, logger contacts.Logger) *Archiver {
	return &Archiver{vault: v, enc: enc, logger: logger}
}

// ArchiveFile encrypts the file at path and uploads it under key.
// The ciphertext is staged in a temp file so its size is known before upload.
func (a *Archiver) ArchiveFile(key, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for archive: %w", path, err)
	}
	defer src.Close()

	sealed, err := os.CreateTemp("", "contactsync-archive-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(sealed.Name())
	defer sealed.Close()

	if err := a.enc.Encrypt(src, sealed); err != nil {
		return fmt.Errorf("encrypting %s: %w", path, err)
	}

	size, err := sealed.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sizing sealed object: %w", err)
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding sealed object: %w", err)
	}

	if err := a.vault.PutObject(key, sealed, size); err != nil {
		return fmt.Errorf("archiving %s: %w", key, err)
	}

	a.logger.Info("archived file", "key", key, "bytes", size)
	return nil
}

// Restore downloads key, decrypts it with dctx and writes the plaintext to
// destPath. destPath is only replaced once decryption has succeeded.
func (a *Archiver) Restore(key, destPath string, dctx contacts.DecryptionContext) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	sealed, err := os.CreateTemp("", "contactsync-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(sealed.Name())
	defer sealed.Close()

	if err := a.vault.GetObject(key, sealed); err != nil {
		return err
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding sealed object: %w", err)
	}

	plain, err := os.CreateTemp(dir, ".tmp-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	plainPath := plain.Name()

	if err := dctx.Decrypt(sealed, plain); err != nil {
		plain.Close()
		os.Remove(plainPath)
		return fmt.Errorf("decrypting %s: %w", key, err)
	}
	if err := plain.Close(); err != nil {
		os.Remove(plainPath)
		return fmt.Errorf("closing restored file: %w", err)
	}
	if err := os.Rename(plainPath, destPath); err != nil {
		os.Remove(plainPath)
		return fmt.Errorf("moving restored file into place: %w", err)
	}

	a.logger.Info("restored file", "key", key, "path", destPath)
	return nil
}

// List returns the archived keys starting with prefix.
func (a *Archiver) List(prefix string) ([]string, error) {
	return a.vault.ListObjects(prefix)
}
