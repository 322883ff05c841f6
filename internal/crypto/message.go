package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"github.com/cloudflare/circl/dh/x25519"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of X25519 private and public keys.
	KeySize = x25519.Size

	messageContext = "rd-themis:secure-message:v1"
)

// MessageWrapper seals messages between an X25519 keypair and a peer public key.
//
// The AEAD key is HKDF-SHA256 over the X25519 shared secret with the sender
// and recipient public keys bound into the info string. Output layout:
//
//	[12 bytes: nonce][ciphertext + 16 byte Poly1305 tag]
type MessageWrapper struct{}

// WrappedLen reports the exact size WrapTo writes. Both keys are checked,
// including that the peer key is not a low order point, so bad inputs are
// rejected before any output buffer is prepared.
func (MessageWrapper) WrappedLen(privateKey, peerPublicKey []byte, messageLen int) (int, error) {
	if messageLen < 0 {
		return 0, fmt.Errorf("negative message length %d", messageLen)
	}
	key, err := messageKey(privateKey, peerPublicKey, true)
	if err != nil {
		return 0, err
	}
	key.Destroy()
	return wrappedLen(messageLen), nil
}

func wrappedLen(messageLen int) int {
	return chacha20poly1305.NonceSize + messageLen + chacha20poly1305.Overhead
}

// WrapTo seals message for the holder of peerPublicKey's private key.
func (w MessageWrapper) WrapTo(dst, privateKey, peerPublicKey, message []byte) (int, error) {
	size := wrappedLen(len(message))
	if len(dst) < size {
		return size, ErrBufferTooSmall
	}

	key, err := messageKey(privateKey, peerPublicKey, true)
	if err != nil {
		return 0, err
	}
	defer key.Destroy()

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return 0, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := dst[:aead.NonceSize()]
	if _, err = rand.Read(nonce); err != nil {
		return 0, fmt.Errorf("failed to generate nonce: %w", err)
	}
	aead.Seal(dst[aead.NonceSize():aead.NonceSize()], nonce, message, nil)

	return size, nil
}

// Unwrap opens a message sealed by the holder of peerPublicKey's private key.
func (MessageWrapper) Unwrap(privateKey, peerPublicKey, wrapped []byte) ([]byte, error) {
	if len(wrapped) < chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, ErrInvalidPayload
	}

	key, err := messageKey(privateKey, peerPublicKey, false)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := wrapped[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, wrapped[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// messageKey derives the AEAD key shared by privateKey and peerPublicKey.
// sending selects the order the public keys are bound into the context.
func messageKey(privateKey, peerPublicKey []byte, sending bool) (*memguard.LockedBuffer, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(privateKey))
	}
	if len(peerPublicKey) != KeySize {
		return nil, fmt.Errorf("%w: peer public key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(peerPublicKey))
	}

	var secret, ownPublic, peerPublic, shared x25519.Key
	defer memguard.WipeBytes(secret[:])
	defer memguard.WipeBytes(shared[:])

	copy(secret[:], privateKey)
	copy(peerPublic[:], peerPublicKey)
	x25519.KeyGen(&ownPublic, &secret)

	if !x25519.Shared(&shared, &secret, &peerPublic) {
		return nil, fmt.Errorf("%w: low order peer public key", ErrInvalidKey)
	}

	info := make([]byte, 0, len(messageContext)+2*KeySize)
	info = append(info, messageContext...)
	if sending {
		info = append(info, ownPublic[:]...)
		info = append(info, peerPublic[:]...)
	} else {
		info = append(info, peerPublic[:]...)
		info = append(info, ownPublic[:]...)
	}

	key := memguard.NewBuffer(chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared[:], nil, info), key.Bytes()); err != nil {
		key.Destroy()
		return nil, fmt.Errorf("failed to derive message key: %w", err)
	}
	return key, nil
}
