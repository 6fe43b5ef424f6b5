package encryption

import (
	"fmt"
	"io"

	"contactsync/internal/contacts"
)

// PlaintextEncryptor archives objects unencrypted. It is the default when no
// key pair has been set up.
type PlaintextEncryptor struct{}

var _ contacts.Encryptor = PlaintextEncryptor{}

func (PlaintextEncryptor) Setup(string) error { return nil }

func (PlaintextEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (PlaintextEncryptor) Unlock(string) (contacts.DecryptionContext, error) {
	return plaintextContext{}, nil
}

func (PlaintextEncryptor) IsConfigured() bool { return true }

type plaintextContext struct{}

func (plaintextContext) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
