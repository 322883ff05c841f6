package rdthemis

import (
	"errors"

	"github.com/serious-company/rd-themis/blocking"
	"github.com/serious-company/rd-themis/envelope"
	"github.com/serious-company/rd-themis/persist"
)

var (
	// ErrArity is returned for a command called with the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")

	// ErrUnknownCommand is returned for a command name that is not registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotFound is returned when a get targets an absent key.
	ErrNotFound = persist.ErrNotFound

	// ErrWrongType is returned when a get targets a key holding a non-string value.
	ErrWrongType = persist.ErrWrongType

	// ErrMalformedEnvelope is returned when a stored envelope's length prefix is inconsistent.
	ErrMalformedEnvelope = envelope.ErrMalformed

	// ErrSealFailed is returned when the sealing primitive rejects its inputs.
	ErrSealFailed = envelope.ErrSealFailed

	// ErrUnsealFailed is returned when a stored value does not authenticate.
	ErrUnsealFailed = envelope.ErrUnsealFailed

	// ErrEncryptFailed wraps every failure of a set command.
	ErrEncryptFailed = errors.New("encryption failed")

	// ErrDecryptFailed wraps every failure of a get command other than
	// ErrNotFound and ErrWrongType.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrWorkerSpawnFailed is returned when an asynchronous command could not start.
	ErrWorkerSpawnFailed = blocking.ErrSpawnFailed

	// ErrTimeout marks an asynchronous command answered by the timeout reply.
	ErrTimeout = errors.New("request timed out")

	// ErrClosed is returned after the service has been closed.
	ErrClosed = blocking.ErrClosed
)
