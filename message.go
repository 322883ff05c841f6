package rdthemis

import (
	"context"
	"fmt"

	"github.com/serious-company/rd-themis/envelope"
	"github.com/serious-company/rd-themis/internal/crypto"
	"github.com/serious-company/rd-themis/persist"
)

// MessageEncrypt seals message to peerPublicKey with a fresh ephemeral
// keypair and stores the envelope at key. The ephemeral private key is
// destroyed as soon as the envelope is written.
func (s *Service) MessageEncrypt(ctx context.Context, key string, peerPublicKey, message []byte) error {
	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}
	defer keypair.Destroy()

	size, err := envelope.RequiredLength(s.wrapper, message, keypair.Private(), keypair.Public(), peerPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}

	entry, err := s.store.Open(ctx, key, persist.ModeRead|persist.ModeWrite)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}

	if err = entry.Truncate(size); err != nil {
		return s.abandon(entry, fmt.Errorf("%w: %w", ErrEncryptFailed, err))
	}

	n, err := envelope.Encode(s.wrapper, message, keypair.Private(), keypair.Public(), peerPublicKey, entry.MutableBytes())
	keypair.Destroy()
	if err != nil {
		return s.abandon(entry, fmt.Errorf("%w: %w", ErrEncryptFailed, err))
	}

	if n != size {
		if err = entry.Truncate(n); err != nil {
			return s.abandon(entry, fmt.Errorf("%w: %w", ErrEncryptFailed, err))
		}
	}

	if err = entry.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}
	return nil
}

// MessageDecrypt reads the envelope at key and opens it with privateKey.
// It returns ErrNotFound for an absent key and ErrWrongType for a key that
// does not hold a string. A malformed envelope yields ErrMalformedEnvelope
// and an envelope sealed to another key yields ErrUnsealFailed, both wrapped
// in ErrDecryptFailed.
func (s *Service) MessageDecrypt(ctx context.Context, key string, privateKey []byte) ([]byte, error) {
	entry, err := s.openForRead(ctx, key)
	if err != nil {
		return nil, err
	}
	defer entry.Close()

	plaintext, err := envelope.Decode(s.wrapper, entry.Bytes(), privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

// GenerateKeypair returns a recipient keypair for the message commands.
// The caller owns the returned private key bytes.
func GenerateKeypair() (publicKey, privateKey []byte, err error) {
	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, nil, err
	}
	defer keypair.Destroy()

	return append([]byte(nil), keypair.Public()...), append([]byte(nil), keypair.Private()...), nil
}

// PublicKey derives the public key that pairs with a message private key.
func PublicKey(privateKey []byte) ([]byte, error) {
	return crypto.PublicKeyFromPrivate(privateKey)
}
