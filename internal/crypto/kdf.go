package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/serious-company/rd-themis/internal/misc"
)

const (
	KDFArgon2id = "argon2id"
	KDFPBKDF2   = "pbkdf2"
)

// KDF selects how a secure cell turns a passphrase and salt into a cipher key.
type KDF struct {
	Algorithm        string `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
	ArgonTime        uint32 `json:"argon_time" yaml:"argon_time" mapstructure:"argon_time"`
	ArgonMemory      uint32 `json:"argon_memory" yaml:"argon_memory" mapstructure:"argon_memory"`
	ArgonThreads     uint8  `json:"argon_threads" yaml:"argon_threads" mapstructure:"argon_threads"`
	PBKDF2Iterations int    `json:"pbkdf2_iterations" yaml:"pbkdf2_iterations" mapstructure:"pbkdf2_iterations"`
}

// DefaultKDF returns argon2id with the package defaults.
func DefaultKDF() KDF {
	return KDF{
		Algorithm:        KDFArgon2id,
		ArgonTime:        misc.ArgonTime,
		ArgonMemory:      misc.ArgonMemory,
		ArgonThreads:     misc.ArgonThreads,
		PBKDF2Iterations: misc.PBKDF2Iterations,
	}
}

// Validate checks that the selected algorithm has usable parameters.
func (k KDF) Validate() error {
	switch k.Algorithm {
	case KDFArgon2id:
		if k.ArgonTime == 0 || k.ArgonMemory == 0 || k.ArgonThreads == 0 {
			return fmt.Errorf("argon2id parameters must be positive")
		}
	case KDFPBKDF2:
		if k.PBKDF2Iterations <= 0 {
			return fmt.Errorf("pbkdf2 iterations must be positive")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKDF, k.Algorithm)
	}
	return nil
}

// derive returns the cipher key in a locked buffer. The caller destroys it.
func (k KDF) derive(passphrase, salt []byte) (*memguard.LockedBuffer, error) {
	var derivedKey []byte
	switch k.Algorithm {
	case KDFArgon2id:
		derivedKey = argon2.IDKey(passphrase, salt, k.ArgonTime, k.ArgonMemory, k.ArgonThreads, misc.ArgonKeyLen)
	case KDFPBKDF2:
		derivedKey = pbkdf2.Key(passphrase, salt, k.PBKDF2Iterations, int(misc.ArgonKeyLen), sha256.New)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKDF, k.Algorithm)
	}

	// NewBufferFromBytes wipes derivedKey
	return memguard.NewBufferFromBytes(derivedKey), nil
}
