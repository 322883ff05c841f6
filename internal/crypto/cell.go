package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/serious-company/rd-themis/internal/misc"
)

// Cell seals data under a passphrase.
//
// Sealed layout:
//
//	[16 bytes: KDF salt][12 bytes: nonce][ciphertext + 16 byte Poly1305 tag]
//
// The associated data is authenticated but not stored; the same context must
// be supplied to Unseal.
type Cell struct {
	kdf KDF
}

// NewCell returns a secure cell using the given key derivation.
func NewCell(kdf KDF) (*Cell, error) {
	if err := kdf.Validate(); err != nil {
		return nil, err
	}
	return &Cell{kdf: kdf}, nil
}

// SealedSize reports the exact size SealTo writes for a message of the given length.
func (c *Cell) SealedSize(messageLen int) int {
	return misc.SaltSize + chacha20poly1305.NonceSize + messageLen + chacha20poly1305.Overhead
}

// SealedLen validates passphrase and reports the size SealTo writes for a
// message of messageLen bytes.
func (c *Cell) SealedLen(passphrase []byte, messageLen int) (int, error) {
	if len(passphrase) == 0 {
		return 0, fmt.Errorf("%w: empty passphrase", ErrInvalidKey)
	}
	if messageLen < 0 {
		return 0, fmt.Errorf("negative message length %d", messageLen)
	}
	return c.SealedSize(messageLen), nil
}

// SealTo seals message into dst, which must be at least SealedSize(len(message)) long.
func (c *Cell) SealTo(dst, passphrase, associatedData, message []byte) (int, error) {
	size, err := c.SealedLen(passphrase, len(message))
	if err != nil {
		return 0, err
	}
	if len(dst) < size {
		return size, ErrBufferTooSmall
	}

	salt := dst[:misc.SaltSize]
	if _, err := rand.Read(salt); err != nil {
		return 0, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := c.kdf.derive(passphrase, salt)
	if err != nil {
		return 0, err
	}
	defer key.Destroy()

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return 0, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := dst[misc.SaltSize : misc.SaltSize+aead.NonceSize()]
	if _, err = rand.Read(nonce); err != nil {
		return 0, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := dst[misc.SaltSize+aead.NonceSize() : misc.SaltSize+aead.NonceSize()]
	aead.Seal(out, nonce, message, associatedData)

	return size, nil
}

// Seal allocates and returns a sealed cell.
func (c *Cell) Seal(passphrase, associatedData, message []byte) ([]byte, error) {
	dst := make([]byte, c.SealedSize(len(message)))
	n, err := c.SealTo(dst, passphrase, associatedData, message)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Unseal authenticates and decrypts a sealed cell.
func (c *Cell) Unseal(passphrase, associatedData, sealed []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidKey)
	}
	if len(sealed) < c.SealedSize(0) {
		return nil, ErrInvalidPayload
	}

	salt := sealed[:misc.SaltSize]
	nonce := sealed[misc.SaltSize : misc.SaltSize+chacha20poly1305.NonceSize]
	ciphertext := sealed[misc.SaltSize+chacha20poly1305.NonceSize:]

	key, err := c.kdf.derive(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
