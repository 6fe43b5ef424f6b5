package testutil

import (
	"contactsync/internal/contacts"
	"contactsync/internal/vault"
)

// NewTestVault creates a new in-memory archive vault for testing.
func NewTestVault() contacts.Vault {
	return vault.NewMemoryVault("test-archive")
}
