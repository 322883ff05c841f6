package persist

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/serious-company/rd-themis/internal/crypto"
)

// MaxKeyLength bounds key names so encoded file and object names stay portable.
const MaxKeyLength = 180

var keyEncoding = base64.RawURLEncoding

// emptyKeyName stands in for the empty key. Padding never appears in raw
// base64 output, so it cannot collide with an encoded name.
const emptyKeyName = "="

// NewStore factory function to create storage backends
func NewStore(config StoreConfig, namespace string) (Store, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil

	case StoreTypeFileSystem:
		return NewFileSystemStoreFromConfig(config, namespace)

	case StoreTypeS3:
		return NewS3StoreFromConfig(config, namespace)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// validateNamespace validates the namespace for security
func validateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	// Basic validation to prevent path traversal and other issues
	if strings.Contains(namespace, "..") ||
		strings.Contains(namespace, "/") ||
		strings.Contains(namespace, "\\") ||
		strings.Contains(namespace, " ") {
		return fmt.Errorf("namespace contains invalid characters")
	}

	if len(namespace) > 100 {
		return fmt.Errorf("namespace too long (max 100 characters)")
	}

	return nil
}

// validateKey rejects names no backend can hold. The empty key is valid.
func validateKey(key string) error {
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key too long (max %d bytes)", MaxKeyLength)
	}
	return nil
}

// encodeKey maps an arbitrary binary key name to a file and object safe name.
func encodeKey(key string) string {
	if key == "" {
		return emptyKeyName
	}
	return keyEncoding.EncodeToString([]byte(key))
}

func decodeKey(name string) (string, bool) {
	if name == emptyKeyName {
		return "", true
	}
	if name == "" {
		return "", false
	}
	raw, err := keyEncoding.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func valueMetadata(namespace string, value Value) map[string]string {
	return map[string]string{
		"data-type":  string(value.Type),
		"checksum":   crypto.CalculateChecksum(value.Data),
		"namespace":  namespace,
		"updated-at": time.Now().UTC().Format(time.RFC3339),
	}
}

// metadataValue looks name up case-insensitively. Header canonicalisation
// in S3 clients changes the key case.
func metadataValue(metadata map[string]string, name string) string {
	for k, v := range metadata {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// typeFromMetadata reads the value type, defaulting to string.
func typeFromMetadata(metadata map[string]string) ValueType {
	if v := metadataValue(metadata, "data-type"); v != "" {
		return ValueType(v)
	}
	return TypeString
}

// verifyChecksum checks data against the recorded checksum. Values written
// without one are accepted.
func verifyChecksum(metadata map[string]string, data []byte) error {
	expected := metadataValue(metadata, "checksum")
	if expected == "" || expected == crypto.CalculateChecksum(data) {
		return nil
	}
	return ErrChecksumMismatch
}
