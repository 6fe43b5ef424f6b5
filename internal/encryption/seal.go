package encryption

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"contactsync/internal/contacts"
)

// sealMagic opens every object written by TestEncryptor:
//
//	contactsync-seal/1 <recipient>\n
//	<body>
//	<crc32 of body, 4 bytes big-endian>
const (
	sealMagic       = "contactsync-seal/1"
	sealTrailerSize = 4
	maxSealHeader   = 256
)

// DefaultTestRecipient is the recipient used by NewTestEncryptor.
const DefaultTestRecipient = "test"

var errSealChecksum = errors.New("sealed object checksum mismatch")

// TestEncryptor frames archive objects without real cryptography.
// Sealed objects differ from their plaintext, name the recipient they were
// sealed for and carry a checksum, so tests can observe wrong-key and
// truncated restores without any key material.
type TestEncryptor struct {
	recipient   string
	setupCalled bool
}

var _ contacts.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor seals for DefaultTestRecipient.
func NewTestEncryptor() *TestEncryptor {
	return NewTestEncryptorFor(DefaultTestRecipient)
}

// NewTestEncryptorFor seals for the given recipient.
func NewTestEncryptorFor(recipient string) *TestEncryptor {
	return &TestEncryptor{recipient: recipient}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", sealMagic, e.recipient); err != nil {
		return fmt.Errorf("writing seal header: %w", err)
	}
	sum := crc32.NewIEEE()
	if _, err := io.Copy(io.MultiWriter(w, sum), r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, sum.Sum32()); err != nil {
		return fmt.Errorf("writing seal checksum: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (contacts.DecryptionContext, error) {
	return &TestDecryptionContext{recipient: e.recipient}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext opens objects sealed by TestEncryptor.
// The zero value accepts any recipient.
type TestDecryptionContext struct {
	recipient string
}

var _ contacts.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(io.LimitReader(r, maxSealHeader))
	line, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading seal header: %w", err)
	}
	magic, recipient, ok := strings.Cut(strings.TrimSuffix(line, "\n"), " ")
	if !ok || magic != sealMagic {
		return fmt.Errorf("invalid seal header")
	}
	if c.recipient != "" && recipient != c.recipient {
		return fmt.Errorf("object sealed for %q, not %q", recipient, c.recipient)
	}

	// Whatever the header reader buffered belongs to the body.
	buffered, _ := br.Peek(br.Buffered())
	rest, err := io.ReadAll(io.MultiReader(bytes.NewReader(buffered), r))
	if err != nil {
		return fmt.Errorf("reading sealed body: %w", err)
	}
	if len(rest) < sealTrailerSize {
		return fmt.Errorf("sealed object truncated")
	}
	body, trailer := rest[:len(rest)-sealTrailerSize], rest[len(rest)-sealTrailerSize:]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(trailer) {
		return errSealChecksum
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}
	return nil
}
