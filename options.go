package rdthemis

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/serious-company/rd-themis/internal/crypto"
	"github.com/serious-company/rd-themis/internal/misc"
)

// KDF selects the secure cell key derivation.
type KDF = crypto.KDF

const (
	KDFArgon2id = crypto.KDFArgon2id
	KDFPBKDF2   = crypto.KDFPBKDF2
)

// Options configures a Service.
//
// Timeout bounds how long an asynchronous command may run before the caller
// is answered with the timeout reply. The worker itself is not cancelled; its
// result is released without a reply when it eventually arrives.
//
// MaxWorkers bounds the number of asynchronous commands in flight. When the
// bound is reached new asynchronous commands are answered with the
// "Can't start thread" error instead of queueing. Zero means unbounded.
//
// KDF controls how secure cell passphrases become cipher keys. Stronger
// parameters make cell commands slower, which is what the asynchronous
// variants exist for.
//
// EnableMemoryLock asks the operating system to keep the process memory out
// of swap. It is best effort: failure is logged and the service still runs,
// with memguard protecting individual key buffers.
type Options struct {
	Timeout          time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxWorkers       int           `json:"max_workers" yaml:"max_workers" mapstructure:"max_workers"`
	KDF              KDF           `json:"kdf" yaml:"kdf" mapstructure:"kdf"`
	EnableMemoryLock bool          `json:"enable_memory_lock" yaml:"enable_memory_lock" mapstructure:"enable_memory_lock"`

	// the user on whose behalf commands run, recorded in the audit trail
	UserID string `json:"-" yaml:"-"`

	// Logger receives operational events. The zero value discards them.
	Logger zerolog.Logger `json:"-" yaml:"-"`
}

// DefaultOptions returns the options the commands were designed around.
func DefaultOptions() Options {
	return Options{
		Timeout: misc.DefaultTimeout,
		KDF:     crypto.DefaultKDF(),
		Logger:  zerolog.Nop(),
	}
}

// Validate validates the Options configuration
func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", o.Timeout)
	}
	if o.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", o.MaxWorkers)
	}
	if err := o.KDF.Validate(); err != nil {
		return fmt.Errorf("invalid kdf: %w", err)
	}
	return nil
}
