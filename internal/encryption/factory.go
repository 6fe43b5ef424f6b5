package encryption

import (
	"fmt"

	"contactsync/internal/config"
	"contactsync/internal/contacts"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (contacts.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return PlaintextEncryptor{}, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// RequiresPassphrase reports whether keys init and restores prompt for a passphrase.
func RequiresPassphrase(cfg config.EncryptionConfig) bool {
	return cfg.Type == "age"
}
