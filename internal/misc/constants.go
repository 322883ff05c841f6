package misc

import "time"

const (
	// ArgonTime Key derivation parameters for secure cells
	ArgonTime    uint32 = 3
	ArgonMemory  uint32 = 64 * 1024
	ArgonThreads uint8  = 4
	ArgonKeyLen  uint32 = 32
	SaltSize            = 16

	// PBKDF2Iterations is used when the pbkdf2 derivation is selected
	PBKDF2Iterations = 100000

	// DefaultTimeout is how long an async command may run before the caller
	// receives the timeout reply
	DefaultTimeout = 2000 * time.Millisecond

	FilePermissions = 0600 // user read + write
	DirPermissions  = 0700
)
