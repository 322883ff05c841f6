package persist

import (
	"fmt"
	"sync"
)

// bufferedEntry is the Entry shared by all backends. Reads are served from a
// snapshot taken at open; writes go to a private buffer committed on Close.
type bufferedEntry struct {
	mu      sync.Mutex
	key     string
	mode    Mode
	value   Value
	dirty   bool
	deleted bool
	closed  bool

	commit func(Value) error
	remove func() error
}

func newEntry(key string, mode Mode, value Value, commit func(Value) error, remove func() error) *bufferedEntry {
	return &bufferedEntry{
		key:    key,
		mode:   mode,
		value:  value,
		commit: commit,
		remove: remove,
	}
}

func (e *bufferedEntry) Key() string {
	return e.key
}

func (e *bufferedEntry) Type() ValueType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value.Type
}

func (e *bufferedEntry) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value.Data
}

func (e *bufferedEntry) Truncate(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEntryClosed
	}
	if e.mode&ModeWrite == 0 {
		return ErrReadOnly
	}
	if n < 0 {
		return fmt.Errorf("invalid length %d", n)
	}
	if e.value.Type != TypeEmpty && e.value.Type != TypeString {
		return ErrWrongType
	}

	switch {
	case n <= len(e.value.Data):
		e.value.Data = e.value.Data[:n]
	case n <= cap(e.value.Data):
		grown := e.value.Data[:n]
		clear(grown[len(e.value.Data):])
		e.value.Data = grown
	default:
		grown := make([]byte, n)
		copy(grown, e.value.Data)
		e.value.Data = grown
	}

	e.value.Type = TypeString
	e.deleted = false
	e.dirty = true
	return nil
}

func (e *bufferedEntry) MutableBytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.mode&ModeWrite == 0 || e.value.Type != TypeString {
		return nil
	}
	e.dirty = true
	return e.value.Data
}

func (e *bufferedEntry) Delete() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEntryClosed
	}
	if e.mode&ModeWrite == 0 {
		return ErrReadOnly
	}
	if err := e.remove(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", e.key, err)
	}

	e.value = Value{}
	e.deleted = true
	e.dirty = false
	return nil
}

func (e *bufferedEntry) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.mode&ModeWrite == 0 || !e.dirty || e.deleted {
		return nil
	}
	if err := e.commit(e.value); err != nil {
		return fmt.Errorf("failed to commit %q: %w", e.key, err)
	}
	return nil
}
