package crypto

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKDF keeps argon2id cheap enough for unit tests.
func testKDF() KDF {
	return KDF{Algorithm: KDFArgon2id, ArgonTime: 1, ArgonMemory: 8 * 1024, ArgonThreads: 1}
}

func newTestCell(t *testing.T) *Cell {
	cell, err := NewCell(testKDF())
	require.NoError(t, err)
	return cell
}

func TestCellSealUnseal(t *testing.T) {
	cell := newTestCell(t)

	testCases := [][]byte{
		[]byte("hello"),
		[]byte("Unicode: こんにちは"),
		{},
		make([]byte, 10241),
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("Case_%d", i), func(t *testing.T) {
			sealed, err := cell.Seal([]byte("pw"), nil, tc)
			require.NoError(t, err)
			assert.Len(t, sealed, cell.SealedSize(len(tc)))

			plaintext, err := cell.Unseal([]byte("pw"), nil, sealed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tc, plaintext))
		})
	}
}

func TestCellWrongPassphrase(t *testing.T) {
	cell := newTestCell(t)
	sealed, err := cell.Seal([]byte("pw"), nil, []byte("hello"))
	require.NoError(t, err)

	_, err = cell.Unseal([]byte("wrong-pw"), nil, sealed)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestCellAssociatedData(t *testing.T) {
	cell := newTestCell(t)
	sealed, err := cell.Seal([]byte("pw"), []byte("ctx-a"), []byte("hello"))
	require.NoError(t, err)

	_, err = cell.Unseal([]byte("pw"), []byte("ctx-b"), sealed)
	assert.ErrorIs(t, err, ErrAuthentication)

	plaintext, err := cell.Unseal([]byte("pw"), []byte("ctx-a"), sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
}

func TestCellTampered(t *testing.T) {
	cell := newTestCell(t)
	sealed, err := cell.Seal([]byte("pw"), nil, []byte("hello"))
	require.NoError(t, err)

	for _, index := range []int{0, 20, len(sealed) - 1} {
		corrupted := append([]byte(nil), sealed...)
		corrupted[index] ^= 0x01
		_, err = cell.Unseal([]byte("pw"), nil, corrupted)
		assert.ErrorIs(t, err, ErrAuthentication, "flipping byte %d", index)
	}

	_, err = cell.Unseal([]byte("pw"), nil, sealed[:10])
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCellSealToBounds(t *testing.T) {
	cell := newTestCell(t)
	message := []byte("hello")

	size, err := cell.SealTo(make([]byte, 3), []byte("pw"), nil, message)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Equal(t, cell.SealedSize(len(message)), size)

	_, err = cell.SealTo(make([]byte, cell.SealedSize(len(message))), nil, nil, message)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCellPBKDF2(t *testing.T) {
	cell, err := NewCell(KDF{Algorithm: KDFPBKDF2, PBKDF2Iterations: 1000})
	require.NoError(t, err)

	sealed, err := cell.Seal([]byte("pw"), nil, []byte("hello"))
	require.NoError(t, err)
	plaintext, err := cell.Unseal([]byte("pw"), nil, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
}

func TestKDFValidate(t *testing.T) {
	assert.NoError(t, DefaultKDF().Validate())
	assert.ErrorIs(t, KDF{Algorithm: "scrypt"}.Validate(), ErrUnknownKDF)
	assert.Error(t, KDF{Algorithm: KDFArgon2id}.Validate())
	assert.Error(t, KDF{Algorithm: KDFPBKDF2}.Validate())

	_, err := NewCell(KDF{Algorithm: "md5"})
	assert.ErrorIs(t, err, ErrUnknownKDF)
}

func TestMessageWrapUnwrap(t *testing.T) {
	sender, err := GenerateKeypair()
	require.NoError(t, err)
	defer sender.Destroy()
	recipient, err := GenerateKeypair()
	require.NoError(t, err)
	defer recipient.Destroy()

	var wrapper MessageWrapper
	message := []byte("attack at dawn")

	size, err := wrapper.WrappedLen(sender.PrivateKey.Bytes(), recipient.PublicKey, len(message))
	require.NoError(t, err)

	dst := make([]byte, size)
	n, err := wrapper.WrapTo(dst, sender.PrivateKey.Bytes(), recipient.PublicKey, message)
	require.NoError(t, err)
	assert.Equal(t, size, n)

	plaintext, err := wrapper.Unwrap(recipient.PrivateKey.Bytes(), sender.PublicKey, dst)
	require.NoError(t, err)
	assert.Equal(t, message, plaintext)
}

func TestMessageWrongRecipient(t *testing.T) {
	sender, err := GenerateKeypair()
	require.NoError(t, err)
	defer sender.Destroy()
	recipient, err := GenerateKeypair()
	require.NoError(t, err)
	defer recipient.Destroy()
	other, err := GenerateKeypair()
	require.NoError(t, err)
	defer other.Destroy()

	var wrapper MessageWrapper
	dst := make([]byte, 64)
	n, err := wrapper.WrapTo(dst, sender.PrivateKey.Bytes(), recipient.PublicKey, []byte("hi"))
	require.NoError(t, err)

	_, err = wrapper.Unwrap(other.PrivateKey.Bytes(), sender.PublicKey, dst[:n])
	assert.ErrorIs(t, err, ErrAuthentication)

	// the sender cannot open its own message with the roles reversed
	_, err = wrapper.Unwrap(sender.PrivateKey.Bytes(), recipient.PublicKey, dst[:n])
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestMessageInvalidKeys(t *testing.T) {
	sender, err := GenerateKeypair()
	require.NoError(t, err)
	defer sender.Destroy()

	var wrapper MessageWrapper

	_, err = wrapper.WrappedLen([]byte("short"), sender.PublicKey, 5)
	assert.ErrorIs(t, err, ErrInvalidKey)

	dst := make([]byte, 64)
	_, err = wrapper.WrapTo(dst, sender.PrivateKey.Bytes(), []byte("not-a-key"), []byte("hi"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = wrapper.WrapTo(dst, sender.PrivateKey.Bytes(), make([]byte, KeySize), []byte("hi"))
	assert.ErrorIs(t, err, ErrInvalidKey, "all-zero peer key has low order")

	_, err = wrapper.WrapTo(make([]byte, 4), sender.PrivateKey.Bytes(), sender.PublicKey, []byte("hi"))
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = wrapper.Unwrap(sender.PrivateKey.Bytes(), sender.PublicKey, []byte("tiny"))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGenerateKeypair(t *testing.T) {
	first, err := GenerateKeypair()
	require.NoError(t, err)
	second, err := GenerateKeypair()
	require.NoError(t, err)

	assert.Len(t, first.PublicKey, KeySize)
	assert.Equal(t, KeySize, first.PrivateKey.Size())
	assert.NotEqual(t, first.PublicKey, second.PublicKey)

	derived, err := PublicKeyFromPrivate(first.PrivateKey.Bytes())
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey, derived)

	first.Destroy()
	first.Destroy()
	second.Destroy()

	_, err = PublicKeyFromPrivate([]byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCalculateChecksum(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", CalculateChecksum([]byte("hello")))
}

func TestWrappedLenRejectsBadPeerKey(t *testing.T) {
	sender, err := GenerateKeypair()
	require.NoError(t, err)
	defer sender.Destroy()

	var wrapper MessageWrapper

	_, err = wrapper.WrappedLen(sender.PrivateKey.Bytes(), []byte("short"), 5)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = wrapper.WrappedLen(sender.PrivateKey.Bytes(), make([]byte, KeySize), 5)
	assert.ErrorIs(t, err, ErrInvalidKey, "all-zero peer key has low order")

	size, err := wrapper.WrappedLen(sender.PrivateKey.Bytes(), sender.PublicKey, 5)
	require.NoError(t, err)
	assert.Equal(t, 12+5+16, size)
}

func TestSealedLen(t *testing.T) {
	cell := newTestCell(t)

	_, err := cell.SealedLen(nil, 5)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = cell.SealedLen([]byte("pass"), -1)
	assert.Error(t, err)

	size, err := cell.SealedLen([]byte("pass"), 5)
	require.NoError(t, err)
	assert.Equal(t, cell.SealedSize(5), size)
}
