// Package envelope implements the self-describing secure message format.
//
// An envelope carries the sender's ephemeral public key in front of the
// sealed payload so the recipient needs nothing but its own private key:
//
//	[4 bytes: public key length, native byte order]
//	[N bytes: public key]
//	[M bytes: sealed payload]
//
// There is no padding and no version byte. The layout is fixed for
// compatibility with values already written to stores.
package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PrefixSize is the size of the public key length prefix.
const PrefixSize = 4

var (
	// ErrSizeUnknown is returned when the wrapping primitive cannot size its output.
	ErrSizeUnknown = errors.New("envelope: cannot determine sealed size")

	// ErrBufferTooSmall is returned when the output buffer cannot hold the envelope.
	ErrBufferTooSmall = errors.New("envelope: buffer too small")

	// ErrSealFailed is returned when the primitive rejects the inputs.
	ErrSealFailed = errors.New("envelope: seal failed")

	// ErrMalformed is returned when the length prefix is inconsistent with the data.
	ErrMalformed = errors.New("envelope: malformed envelope")

	// ErrUnsealFailed is returned when the payload does not authenticate.
	ErrUnsealFailed = errors.New("envelope: unseal failed")
)

// byteOrder is the host byte order; the prefix is written the way the host lays out a uint32.
var byteOrder = binary.NativeEndian

// Wrapper is the public-key sealing primitive an envelope is built on.
type Wrapper interface {
	// WrappedLen reports the exact number of bytes WrapTo writes for a message of messageLen bytes.
	WrappedLen(privateKey, peerPublicKey []byte, messageLen int) (int, error)
	// WrapTo seals message into dst and returns the bytes written.
	WrapTo(dst, privateKey, peerPublicKey, message []byte) (int, error)
	// Unwrap opens a payload sealed by the holder of peerPublicKey's private key.
	Unwrap(privateKey, peerPublicKey, wrapped []byte) ([]byte, error)
}

// bufferTooSmall is implemented by primitive errors that signal a short destination.
type bufferTooSmall interface {
	BufferTooSmall() bool
}

// RequiredLength returns the exact size Encode produces for these inputs.
func RequiredLength(w Wrapper, message, privateKey, publicKey, peerPublicKey []byte) (int, error) {
	wrappedLen, err := w.WrappedLen(privateKey, peerPublicKey, len(message))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSizeUnknown, err)
	}
	if uint64(len(publicKey)) > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: public key too long", ErrSizeUnknown)
	}
	return PrefixSize + len(publicKey) + wrappedLen, nil
}

// Encode writes the envelope for message into out and returns the bytes written.
// out is normally allocated with RequiredLength.
func Encode(w Wrapper, message, privateKey, publicKey, peerPublicKey, out []byte) (int, error) {
	header := PrefixSize + len(publicKey)
	if len(out) < header {
		return 0, ErrBufferTooSmall
	}
	if uint64(len(publicKey)) > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: public key too long", ErrSealFailed)
	}

	byteOrder.PutUint32(out[:PrefixSize], uint32(len(publicKey)))
	copy(out[PrefixSize:header], publicKey)

	n, err := w.WrapTo(out[header:], privateKey, peerPublicKey, message)
	if err != nil {
		var short bufferTooSmall
		if errors.As(err, &short) && short.BufferTooSmall() {
			return 0, fmt.Errorf("%w: %v", ErrBufferTooSmall, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	return header + n, nil
}

// Decode parses an envelope and unseals its payload with privateKey, using the
// embedded public key as the peer key.
func Decode(w Wrapper, envelope, privateKey []byte) ([]byte, error) {
	publicKey, payload, err := Parse(envelope)
	if err != nil {
		return nil, err
	}

	plaintext, err := w.Unwrap(privateKey, publicKey, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	return plaintext, nil
}

// Parse splits an envelope into the embedded public key and the sealed
// payload without unsealing. The returned slices alias envelope.
func Parse(envelope []byte) (publicKey, payload []byte, err error) {
	if len(envelope) < PrefixSize {
		return nil, nil, fmt.Errorf("%w: %d bytes is shorter than the length prefix", ErrMalformed, len(envelope))
	}

	publicKeyLen := uint64(byteOrder.Uint32(envelope[:PrefixSize]))
	if PrefixSize+publicKeyLen >= uint64(len(envelope)) {
		return nil, nil, fmt.Errorf("%w: public key length %d does not fit in %d bytes", ErrMalformed, publicKeyLen, len(envelope))
	}

	header := PrefixSize + int(publicKeyLen)
	return envelope[PrefixSize:header], envelope[header:], nil
}

// Keypair is the ephemeral sender keypair consumed by Seal.
type Keypair interface {
	Private() []byte
	Public() []byte
}

// Seal sizes, allocates and encodes an envelope in one call.
func Seal(w Wrapper, keypair Keypair, peerPublicKey, message []byte) ([]byte, error) {
	size, err := RequiredLength(w, message, keypair.Private(), keypair.Public(), peerPublicKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	n, err := Encode(w, message, keypair.Private(), keypair.Public(), peerPublicKey, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
