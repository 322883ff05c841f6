package persist

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNamespace = "test-namespace"

// testStoreImplementation runs the behaviour every backend must share.
func testStoreImplementation(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("ReadAbsentKey", func(t *testing.T) {
		_, err := store.Open(ctx, "absent", ModeRead)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		entry, err := store.Open(ctx, "greeting", ModeRead|ModeWrite)
		require.NoError(t, err)
		assert.Equal(t, TypeEmpty, entry.Type())

		require.NoError(t, entry.Truncate(5))
		copy(entry.MutableBytes(), "hello")
		require.NoError(t, entry.Close())

		entry, err = store.Open(ctx, "greeting", ModeRead)
		require.NoError(t, err)
		defer entry.Close()
		assert.Equal(t, TypeString, entry.Type())
		assert.Equal(t, []byte("hello"), entry.Bytes())
	})

	t.Run("TruncateReplacesValue", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "shrink", Value{Type: TypeString, Data: []byte("a longer value")}))

		entry, err := store.Open(ctx, "shrink", ModeWrite)
		require.NoError(t, err)
		require.NoError(t, entry.Truncate(3))
		copy(entry.MutableBytes(), "abc")
		require.NoError(t, entry.Close())

		entry, err = store.Open(ctx, "shrink", ModeRead)
		require.NoError(t, err)
		defer entry.Close()
		assert.Equal(t, []byte("abc"), entry.Bytes())
	})

	t.Run("WritesInvisibleUntilClose", func(t *testing.T) {
		entry, err := store.Open(ctx, "pending", ModeWrite)
		require.NoError(t, err)
		require.NoError(t, entry.Truncate(4))

		_, err = store.Open(ctx, "pending", ModeRead)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, entry.Close())
		require.NoError(t, entry.Close(), "close is idempotent")

		entry, err = store.Open(ctx, "pending", ModeRead)
		require.NoError(t, err)
		assert.Len(t, entry.Bytes(), 4)
		require.NoError(t, entry.Close())
	})

	t.Run("CloseWithoutWritesCreatesNothing", func(t *testing.T) {
		entry, err := store.Open(ctx, "untouched", ModeWrite)
		require.NoError(t, err)
		require.NoError(t, entry.Close())

		_, err = store.Open(ctx, "untouched", ModeRead)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("WrongType", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "queue", Value{Type: TypeList, Data: []byte("x")}))

		entry, err := store.Open(ctx, "queue", ModeRead|ModeWrite)
		require.NoError(t, err)
		assert.Equal(t, TypeList, entry.Type())
		assert.ErrorIs(t, entry.Truncate(10), ErrWrongType)
		assert.Nil(t, entry.MutableBytes())
		require.NoError(t, entry.Close())

		entry, err = store.Open(ctx, "queue", ModeRead)
		require.NoError(t, err)
		assert.Equal(t, TypeList, entry.Type())
		assert.Equal(t, []byte("x"), entry.Bytes())
		require.NoError(t, entry.Close())
	})

	t.Run("ReadOnlyEntry", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "fixed", Value{Type: TypeString, Data: []byte("v")}))

		entry, err := store.Open(ctx, "fixed", ModeRead)
		require.NoError(t, err)
		assert.ErrorIs(t, entry.Truncate(1), ErrReadOnly)
		assert.ErrorIs(t, entry.Delete(), ErrReadOnly)
		require.NoError(t, entry.Close())
		assert.ErrorIs(t, entry.Truncate(1), ErrEntryClosed)
	})

	t.Run("EntryDelete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "doomed", Value{Type: TypeString, Data: []byte("bye")}))

		entry, err := store.Open(ctx, "doomed", ModeWrite)
		require.NoError(t, err)
		require.NoError(t, entry.Truncate(2))
		require.NoError(t, entry.Delete())
		require.NoError(t, entry.Close())

		_, err = store.Open(ctx, "doomed", ModeRead)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteAbsentKey", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-existed"))
	})

	t.Run("BinaryKeyNames", func(t *testing.T) {
		key := "bin\x00/../key with spaces"
		require.NoError(t, store.Put(ctx, key, Value{Data: []byte{0, 1, 2}}))

		entry, err := store.Open(ctx, key, ModeRead)
		require.NoError(t, err)
		assert.Equal(t, TypeString, entry.Type())
		assert.Equal(t, []byte{0, 1, 2}, entry.Bytes())
		require.NoError(t, entry.Close())
		require.NoError(t, store.Delete(ctx, key))
	})

	t.Run("EmptyKeyName", func(t *testing.T) {
		_, err := store.Open(ctx, "", ModeRead)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.Put(ctx, "", Value{Data: []byte("blank")}))
		entry, err := store.Open(ctx, "", ModeRead)
		require.NoError(t, err)
		assert.Equal(t, []byte("blank"), entry.Bytes())
		require.NoError(t, entry.Close())

		keys, err := store.Keys(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, keys, "")
		require.NoError(t, store.Delete(ctx, ""))
	})

	t.Run("InvalidKeyNames", func(t *testing.T) {
		long := make([]byte, MaxKeyLength+1)
		_, err := store.Open(ctx, string(long), ModeWrite)
		assert.Error(t, err)
	})

	t.Run("Keys", func(t *testing.T) {
		for _, k := range []string{"list:b", "list:a", "other"} {
			require.NoError(t, store.Put(ctx, k, Value{Data: []byte(k)}))
		}

		keys, err := store.Keys(ctx, "list:")
		require.NoError(t, err)
		assert.Equal(t, []string{"list:a", "list:b"}, keys)
	})

	t.Run("ConcurrentWritersLastCommitWins", func(t *testing.T) {
		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				entry, err := store.Open(ctx, "contended", ModeWrite)
				if !assert.NoError(t, err) {
					return
				}
				payload := fmt.Sprintf("writer-%d", i)
				assert.NoError(t, entry.Truncate(len(payload)))
				copy(entry.MutableBytes(), payload)
				assert.NoError(t, entry.Close())
			}(i)
		}
		wg.Wait()

		entry, err := store.Open(ctx, "contended", ModeRead)
		require.NoError(t, err)
		defer entry.Close()
		assert.Regexp(t, `^writer-[0-7]$`, string(entry.Bytes()))
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping())
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	assert.Equal(t, "memory", store.GetType())
	testStoreImplementation(t, store)
}

func TestMemoryStoreIsolatesSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", Value{Data: []byte("abc")}))

	entry, err := store.Open(ctx, "k", ModeRead)
	require.NoError(t, err)
	entry.Bytes()[0] = 'z'

	again, err := store.Open(ctx, "k", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Bytes())
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(StoreConfig{Type: StoreTypeMemory}, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, "memory", store.GetType())

	store, err = NewStore(StoreConfig{
		Type:   StoreTypeFileSystem,
		Config: map[string]interface{}{"base_path": t.TempDir()},
	}, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", store.GetType())

	_, err = NewStore(StoreConfig{Type: StoreTypeFileSystem}, testNamespace)
	assert.Error(t, err)

	_, err = NewStore(StoreConfig{Type: "etcd"}, testNamespace)
	assert.Error(t, err)
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		namespace string
		valid     bool
	}{
		{"default", true},
		{"team-a_1", true},
		{"", false},
		{"../etc", false},
		{"a/b", false},
		{"a\\b", false},
		{"with space", false},
		{string(make([]byte, 101)), false},
	}

	for _, tt := range tests {
		err := validateNamespace(tt.namespace)
		if tt.valid {
			assert.NoError(t, err, tt.namespace)
		} else {
			assert.Error(t, err, tt.namespace)
		}
	}
}

func TestTypeFromMetadata(t *testing.T) {
	assert.Equal(t, TypeString, typeFromMetadata(nil))
	assert.Equal(t, TypeList, typeFromMetadata(map[string]string{"data-type": "list"}))
	assert.Equal(t, TypeHash, typeFromMetadata(map[string]string{"Data-Type": "hash"}))

	metadata := valueMetadata("ns", Value{Type: TypeString, Data: []byte("sealed")})
	assert.NoError(t, verifyChecksum(metadata, []byte("sealed")))
	assert.ErrorIs(t, verifyChecksum(metadata, []byte("Sealed")), ErrChecksumMismatch)
	assert.NoError(t, verifyChecksum(nil, []byte("anything")))
}

func TestKeyEncodingRoundTrip(t *testing.T) {
	for _, key := range []string{"", "a", "bin\x00key"} {
		decoded, ok := decodeKey(encodeKey(key))
		assert.True(t, ok)
		assert.Equal(t, key, decoded)
	}
	assert.Equal(t, emptyKeyName, encodeKey(""))

	_, ok := decodeKey("")
	assert.False(t, ok)
}
