package blocking

import (
	"bytes"

	"github.com/awnumar/memguard"
)

// Status tags the outcome of an offloaded operation.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusWrongType
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusWrongType:
		return "wrong_type"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a worker hands back to the loop. The payload may hold
// plaintext; it is zeroed by Release once the reply has been produced.
type Result struct {
	Status  Status
	Payload []byte
	Err     error
}

// OK returns a successful result carrying payload.
func OK(payload []byte) Result {
	return Result{Status: StatusOK, Payload: payload}
}

// Failed returns a failed result wrapping err.
func Failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

// Release wipes the payload. Safe to call more than once.
func (r *Result) Release() {
	if r == nil {
		return
	}
	clear(r.Payload)
	r.Payload = nil
}

// Inputs are the request arguments captured at submission. Ownership moves to
// the worker, which releases them when the operation returns.
type Inputs struct {
	Key     string
	Secret  *memguard.LockedBuffer
	Message []byte

	released bool
}

// NewInputs copies the request arguments so the caller's buffers can be
// reused as soon as Submit returns. The secret lives in a locked buffer.
func NewInputs(key string, secret, message []byte) *Inputs {
	in := &Inputs{Key: key, Message: bytes.Clone(message)}
	if len(secret) > 0 {
		in.Secret = memguard.NewBufferFromBytes(bytes.Clone(secret))
	}
	return in
}

// SecretBytes returns the secret, nil when none was given.
func (in *Inputs) SecretBytes() []byte {
	if in.Secret == nil {
		return nil
	}
	return in.Secret.Bytes()
}

// Released reports whether Release has run.
func (in *Inputs) Released() bool {
	return in.released
}

// Release destroys the secret and wipes the message.
func (in *Inputs) Release() {
	if in == nil || in.released {
		return
	}
	in.released = true
	if in.Secret != nil {
		in.Secret.Destroy()
	}
	clear(in.Message)
	in.Message = nil
}
