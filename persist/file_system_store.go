package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/serious-company/rd-themis/internal/debug"
	"github.com/serious-company/rd-themis/internal/misc"
)

const (
	valueSuffix    = ".val"
	metadataSuffix = ".meta"

	lockStripes = 64
)

// FileSystemStore implements Store on the local filesystem, one file per key
// with a sidecar metadata file holding the value type and checksum.
//
// The value and its sidecar are replaced by two renames, so every commit,
// delete and read of a key holds that key's stripe lock. The lock is per
// process; two processes sharing a base path are not coordinated.
type FileSystemStore struct {
	locks         [lockStripes]sync.RWMutex
	basePath      string
	namespace     string
	namespacePath string // basePath/namespace/
	keysDir       string // basePath/namespace/keys/
	storeConfig   string // basePath/namespace/store.json
}

// StoreInfo is the descriptor written once per namespace.
type StoreInfo struct {
	Version    string    `json:"version"`
	Namespace  string    `json:"namespace"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	Structure  string    `json:"structure_version"`
}

// NewFileSystemStore initializes and returns a new instance of FileSystemStore
func NewFileSystemStore(basePath string, namespace string) (*FileSystemStore, error) {
	if namespace == "" {
		namespace = "default"
	}

	if err := validateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}

	namespacePath := filepath.Join(basePath, namespace)

	fs := &FileSystemStore{
		basePath:      basePath,
		namespace:     namespace,
		namespacePath: namespacePath,
		keysDir:       filepath.Join(namespacePath, "keys"),
		storeConfig:   filepath.Join(namespacePath, "store.json"),
	}

	for _, dir := range []string{fs.namespacePath, fs.keysDir} {
		if err := os.MkdirAll(dir, misc.DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := fs.initializeStoreInfo(); err != nil {
		return nil, fmt.Errorf("failed to initialize store config: %w", err)
	}

	return fs, nil
}

// NewFileSystemStoreFromConfig creates a FileSystemStore from StoreConfig
func NewFileSystemStoreFromConfig(config StoreConfig, namespace string) (*FileSystemStore, error) {
	basePath, ok := config.Config["base_path"].(string)
	if !ok || basePath == "" {
		return nil, fmt.Errorf("filesystem storage requires 'base_path' in config")
	}

	return NewFileSystemStore(basePath, namespace)
}

func (fs *FileSystemStore) initializeStoreInfo() error {
	if _, err := os.Stat(fs.storeConfig); os.IsNotExist(err) {
		info := StoreInfo{
			Version:    "1.0.0",
			Namespace:  fs.namespace,
			CreatedAt:  time.Now(),
			LastAccess: time.Now(),
			Structure:  "v1",
		}

		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}

		return writeSecureFile(fs.storeConfig, data, misc.FilePermissions)
	}
	return nil
}

func (fs *FileSystemStore) keyPath(key string) string {
	return filepath.Join(fs.keysDir, encodeKey(key)+valueSuffix)
}

func (fs *FileSystemStore) lockFor(key string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &fs.locks[h.Sum32()%lockStripes]
}

// read loads key. With verify unset, unreadable metadata and checksum
// mismatches are ignored so a write-mode open can replace a damaged value.
func (fs *FileSystemStore) read(key string, verify bool) (Value, bool, error) {
	lock := fs.lockFor(key)
	lock.RLock()
	defer lock.RUnlock()

	path := fs.keyPath(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("failed to read value: %w", err)
	}

	metadata, err := readMetadata(path)
	if err != nil && !os.IsNotExist(err) {
		if verify {
			return Value{}, false, fmt.Errorf("%s: %w", key, err)
		}
		debug.Print("ignoring unreadable metadata for %s: %v\n", path, err)
		metadata = nil
	}
	if verify {
		if err = verifyChecksum(metadata, data); err != nil {
			return Value{}, false, fmt.Errorf("%s: %w", key, err)
		}
	}

	return Value{Type: typeFromMetadata(metadata), Data: data}, true, nil
}

func (fs *FileSystemStore) write(key string, value Value) error {
	if value.Type == TypeEmpty {
		value.Type = TypeString
	}
	lock := fs.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return writeSecureFileWithMetadata(fs.keyPath(key), value.Data, misc.FilePermissions,
		valueMetadata(fs.namespace, value))
}

func (fs *FileSystemStore) Open(ctx context.Context, key string, mode Mode) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	current, exists, err := fs.read(key, mode&ModeWrite == 0)
	if err != nil {
		return nil, err
	}
	if !exists && mode&ModeWrite == 0 {
		return nil, ErrNotFound
	}

	return newEntry(key, mode, current,
		func(v Value) error { return fs.write(key, v) },
		func() error { return fs.Delete(context.Background(), key) },
	), nil
}

func (fs *FileSystemStore) Put(ctx context.Context, key string, value Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	return fs.write(key, value)
}

func (fs *FileSystemStore) Delete(_ context.Context, key string) error {
	lock := fs.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := fs.keyPath(key)

	var errs []error
	for _, p := range []string{path, path + metadataSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to delete key: %w", errors.Join(errs...))
	}
	return nil
}

func (fs *FileSystemStore) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(fs.keysDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read keys directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, valueSuffix) {
			continue
		}
		key, ok := decodeKey(strings.TrimSuffix(name, valueSuffix))
		if !ok {
			debug.Print("skipping foreign file %s\n", name)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// ListNamespaces returns all namespaces that have stores in the base path
func (fs *FileSystemStore) ListNamespaces() ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var namespaces []string
	for _, entry := range entries {
		if entry.IsDir() {
			if exists, _ := fileExists(filepath.Join(fs.basePath, entry.Name(), "store.json")); exists {
				namespaces = append(namespaces, entry.Name())
			}
		}
	}

	sort.Strings(namespaces)
	return namespaces, nil
}

func (fs *FileSystemStore) GetType() string {
	return string(StoreTypeFileSystem)
}

func (fs *FileSystemStore) Ping() error {
	_, err := os.Stat(fs.namespacePath)
	return err
}

func (fs *FileSystemStore) Close() error {
	if configData, err := os.ReadFile(fs.storeConfig); err == nil {
		var info StoreInfo
		if err := json.Unmarshal(configData, &info); err == nil {
			info.LastAccess = time.Now()
			if updatedData, err := json.MarshalIndent(info, "", "  "); err == nil {
				_ = writeSecureFile(fs.storeConfig, updatedData, misc.FilePermissions)
			}
		}
	}
	return nil
}

// writeSecureFileWithMetadata writes the metadata sidecar, then the value.
// Callers hold the key's stripe lock.
func writeSecureFileWithMetadata(filePath string, data []byte, perm os.FileMode, metadata map[string]string) error {
	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err = writeSecureFile(filePath+metadataSuffix, metadataBytes, perm); err != nil {
		return err
	}

	return writeSecureFile(filePath, data, perm)
}

func readMetadata(filePath string) (map[string]string, error) {
	metadataBytes, err := os.ReadFile(filePath + metadataSuffix)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if err = json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

func writeSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
