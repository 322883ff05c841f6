package crypto

import "errors"

// sizeError marks errors that mean "retry with a larger buffer".
type sizeError string

func (e sizeError) Error() string { return string(e) }

func (sizeError) BufferTooSmall() bool { return true }

// ErrBufferTooSmall is returned when the destination cannot hold the sealed output.
var ErrBufferTooSmall error = sizeError("buffer too small")

var (
	// ErrInvalidKey is returned when key material is missing, has the wrong
	// size or produces a degenerate shared secret.
	ErrInvalidKey = errors.New("invalid key")

	// ErrAuthentication is returned when a seal cannot be opened. Wrong keys and
	// tampered ciphertext are deliberately reported the same way.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidPayload is returned when sealed data is too short to be valid.
	ErrInvalidPayload = errors.New("sealed data too short")

	// ErrUnknownKDF is returned for an unsupported key derivation algorithm.
	ErrUnknownKDF = errors.New("unknown key derivation algorithm")
)
