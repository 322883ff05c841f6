package persist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), testNamespace)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "filesystem", store.GetType())
	testStoreImplementation(t, store)
}

func TestFileSystemStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "durable", Value{Type: TypeString, Data: []byte("kept")}))
	require.NoError(t, store.Put(ctx, "typed", Value{Type: TypeSet, Data: []byte("m")}))
	require.NoError(t, store.Close())

	reopened, err := NewFileSystemStore(baseDir, testNamespace)
	require.NoError(t, err)

	entry, err := reopened.Open(ctx, "durable", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), entry.Bytes())

	entry, err = reopened.Open(ctx, "typed", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, TypeSet, entry.Type())
}

func TestFileSystemStorePermissions(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "secret", Value{Data: []byte("sealed")}))

	info, err := os.Stat(store.keyPath("secret"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(baseDir, testNamespace, "keys"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestFileSystemStoreMissingMetadataDefaultsToString(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir(), testNamespace)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "bare", Value{Type: TypeList, Data: []byte("x")}))
	require.NoError(t, os.Remove(store.keyPath("bare")+metadataSuffix))

	entry, err := store.Open(ctx, "bare", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, TypeString, entry.Type())
}

func TestFileSystemStoreDetectsTamperedValue(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir(), testNamespace)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "sealed", Value{Type: TypeString, Data: []byte("ciphertext")}))
	require.NoError(t, os.WriteFile(store.keyPath("sealed"), []byte("c1phertext"), 0600))

	_, err = store.Open(ctx, "sealed", ModeRead)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestFileSystemStoreWriteReplacesTamperedValue(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir(), testNamespace)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "sealed", Value{Type: TypeString, Data: []byte("ciphertext")}))
	require.NoError(t, os.WriteFile(store.keyPath("sealed"), []byte("c1phertext"), 0600))

	entry, err := store.Open(ctx, "sealed", ModeRead|ModeWrite)
	require.NoError(t, err)
	require.NoError(t, entry.Truncate(5))
	copy(entry.MutableBytes(), "fresh")
	require.NoError(t, entry.Close())

	entry, err = store.Open(ctx, "sealed", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), entry.Bytes())
}

func TestFileSystemStoreCorruptMetadata(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir(), testNamespace)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "k", Value{Type: TypeString, Data: []byte("v")}))
	require.NoError(t, os.WriteFile(store.keyPath("k")+metadataSuffix, []byte("{not json"), 0600))

	_, err = store.Open(ctx, "k", ModeRead)
	assert.ErrorContains(t, err, "failed to unmarshal metadata")

	entry, err := store.Open(ctx, "k", ModeRead|ModeWrite)
	require.NoError(t, err)
	require.NoError(t, entry.Truncate(1))
	copy(entry.MutableBytes(), "w")
	require.NoError(t, entry.Close())

	entry, err = store.Open(ctx, "k", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, []byte("w"), entry.Bytes())
}

func TestFileSystemStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir(), testNamespace)
	require.NoError(t, err)

	const keys = 50
	const writers = 8

	var wg sync.WaitGroup
	for k := 0; k < keys; k++ {
		key := fmt.Sprintf("key-%d", k)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(key string, w int) {
				defer wg.Done()
				entry, err := store.Open(ctx, key, ModeRead|ModeWrite)
				if !assert.NoError(t, err) {
					return
				}
				// each writer has its own length and fill byte
				if !assert.NoError(t, entry.Truncate(32+w)) {
					return
				}
				buf := entry.MutableBytes()
				for i := range buf {
					buf[i] = byte('a' + w)
				}
				assert.NoError(t, entry.Close())
			}(key, w)
		}
	}
	wg.Wait()

	for k := 0; k < keys; k++ {
		key := fmt.Sprintf("key-%d", k)
		entry, err := store.Open(ctx, key, ModeRead)
		require.NoError(t, err, key)

		data := entry.Bytes()
		require.NotEmpty(t, data, key)
		w := int(data[0] - 'a')
		require.True(t, w >= 0 && w < writers, key)
		assert.Equal(t, bytes.Repeat([]byte{data[0]}, 32+w), data, key)
	}
}

func TestFileSystemStoreNamespaces(t *testing.T) {
	baseDir := t.TempDir()

	first, err := NewFileSystemStore(baseDir, "alpha")
	require.NoError(t, err)
	_, err = NewFileSystemStore(baseDir, "beta")
	require.NoError(t, err)

	namespaces, err := first.ListNamespaces()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, namespaces)

	defaulted, err := NewFileSystemStore(baseDir, "")
	require.NoError(t, err)
	assert.Equal(t, "default", defaulted.namespace)

	_, err = NewFileSystemStore(baseDir, "../escape")
	assert.Error(t, err)
}
