package persist

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key is opened for reading and does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrWrongType is returned when a string operation targets a value of another type.
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

	// ErrEntryClosed is returned when an entry is used after Close.
	ErrEntryClosed = errors.New("entry is closed")

	// ErrReadOnly is returned when a read-mode entry is mutated.
	ErrReadOnly = errors.New("entry was opened read-only")

	// ErrChecksumMismatch is returned when a stored value does not match the
	// checksum recorded when it was written.
	ErrChecksumMismatch = errors.New("stored value failed checksum verification")
)

// Mode selects how an entry is opened.
type Mode int

const (
	// ModeRead opens an existing key; absent keys yield ErrNotFound.
	ModeRead Mode = 1 << iota
	// ModeWrite opens a key for mutation, creating it on commit if absent.
	ModeWrite
)

// ValueType is the kind of value held under a key.
type ValueType string

const (
	// TypeEmpty is reported by write-mode entries for keys that do not exist yet.
	TypeEmpty  ValueType = ""
	TypeString ValueType = "string"
	TypeList   ValueType = "list"
	TypeHash   ValueType = "hash"
	TypeSet    ValueType = "set"
)

// Value is a typed raw value. Only string values are produced by the
// crypto commands; other types exist so stores can hold foreign values.
type Value struct {
	Type ValueType
	Data []byte
}

// Store defines the key-value interface the crypto commands run on.
// Values are opaque bytes; everything written by the commands is already sealed.
//
// A single Open/Close pair on one key is not isolated from concurrent pairs
// on the same key: the last commit wins.
type Store interface {
	// Open returns a handle on key. ModeRead fails with ErrNotFound for
	// absent keys; ModeWrite always succeeds and starts empty for new keys.
	Open(ctx context.Context, key string, mode Mode) (Entry, error)

	// Put replaces key with a typed value.
	Put(ctx context.Context, key string, value Value) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping tests the connectivity for remote backends.
	Ping() error

	// Close closes the store and releases any resources it holds.
	Close() error

	// GetType retrieves the type of store being used.
	GetType() string
}

// Entry is an open key. Writes are buffered and become visible on Close.
type Entry interface {
	// Key returns the key name.
	Key() string

	// Type reports the value type, TypeEmpty for a new key.
	Type() ValueType

	// Bytes returns the value as read at open time, or the working buffer
	// of a write-mode entry.
	Bytes() []byte

	// Truncate resizes the string value to n bytes, zero filling growth.
	// Fails with ErrWrongType on non-string values.
	Truncate(n int) error

	// MutableBytes returns the working buffer for in-place writes.
	MutableBytes() []byte

	// Delete removes the key and discards pending writes.
	Delete() error

	// Close commits pending writes and releases the entry.
	Close() error
}

// StoreConfig provides configuration for different storage backends.
//
// Example usage:
//
//	config := StoreConfig{
//	    Type:   StoreTypeFileSystem,
//	    Config: map[string]interface{}{"base_path": "/data/storage"},
//	}
type StoreConfig struct {
	// Type specifies the storage backend to be used.
	Type StoreType `json:"type" yaml:"type" mapstructure:"type"`

	// Config contains configuration settings specific to the chosen storage backend.
	Config map[string]interface{} `json:"config" yaml:"config" mapstructure:"config"`
}

// StoreType represents the different types of storage backends that can be used.
type StoreType string

// Supported storage types.
const (
	// StoreTypeMemory keeps values in process memory.
	StoreTypeMemory StoreType = "memory"

	// StoreTypeFileSystem stores one file per key under a base path.
	StoreTypeFileSystem StoreType = "filesystem"

	// StoreTypeS3 stores one object per key in an S3 compatible bucket.
	StoreTypeS3 StoreType = "s3"
)
