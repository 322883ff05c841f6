package crypto

import (
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/cloudflare/circl/dh/x25519"
)

// Keypair is an X25519 keypair whose private half lives in locked memory.
// Call Destroy as soon as the private key is no longer needed.
type Keypair struct {
	PrivateKey *memguard.LockedBuffer
	PublicKey  []byte
}

// GenerateKeypair creates a fresh X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	privateKey := memguard.NewBufferRandom(KeySize)
	if privateKey.Size() != KeySize {
		return nil, fmt.Errorf("failed to allocate private key")
	}

	var secret, public x25519.Key
	copy(secret[:], privateKey.Bytes())
	x25519.KeyGen(&public, &secret)
	memguard.WipeBytes(secret[:])

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  append([]byte(nil), public[:]...),
	}, nil
}

// PublicKeyFromPrivate derives the X25519 public key for privateKey.
func PublicKeyFromPrivate(privateKey []byte) ([]byte, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(privateKey))
	}
	var secret, public x25519.Key
	copy(secret[:], privateKey)
	x25519.KeyGen(&public, &secret)
	memguard.WipeBytes(secret[:])
	return public[:], nil
}

// Private returns the private key bytes. They are only valid until Destroy.
func (k *Keypair) Private() []byte { return k.PrivateKey.Bytes() }

// Public returns the public key bytes.
func (k *Keypair) Public() []byte { return k.PublicKey }

// Destroy wipes the private key. Safe to call more than once.
func (k *Keypair) Destroy() {
	if k == nil || k.PrivateKey == nil {
		return
	}
	k.PrivateKey.Destroy()
}
