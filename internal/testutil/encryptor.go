package testutil

import (
	"contactsync/internal/contacts"
	"contactsync/internal/encryption"
)

// NewTestEncryptor creates an encryptor that seals data in a checksummed
// frame instead of encrypting it.
func NewTestEncryptor() contacts.Encryptor {
	return encryption.NewTestEncryptor()
}
