package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/serious-company/rd-themis/internal/debug"
	"github.com/serious-company/rd-themis/internal/misc"
)

const (
	ctxTimeout = 10 * time.Second
)

// S3Store implements the Store interface using MinIO as the backend.
// Object layout:
//
//	bucketName/
//	└── [keyPrefix/]namespace/
//	    ├── store.config          # namespace descriptor
//	    └── keys/
//	        └── <base64url(key)>  # value bytes, type in the data-type user metadata
type S3Store struct {
	// client is the MinIO client used to interact with the MinIO server.
	client *minio.Client

	// bucketName is the name of the S3 bucket holding the namespace.
	bucketName string

	// keyPrefix is an optional prefix for object names, allowing several
	// applications to share a bucket.
	keyPrefix string

	// namespace isolates key sets within the bucket.
	namespace string
}

// S3Config contains the configuration required to connect to S3 (MinIO).
type S3Config struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" mapstructure:"secret_access_key"`
	Bucket          string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	KeyPrefix       string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
	UseSSL          bool   `json:"use_ssl" yaml:"use_ssl" mapstructure:"use_ssl"`
	Region          string `json:"region" yaml:"region" mapstructure:"region"`
}

// NewS3Store initializes a new S3Store using the provided configuration and
// namespace. It connects to the server and creates the bucket if needed.
// An empty namespace defaults to "default".
func NewS3Store(config S3Config, namespace string) (*S3Store, error) {
	if namespace == "" {
		namespace = "default"
	}

	if err := validateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  config.KeyPrefix,
		namespace:  namespace,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	if err = store.initializeStoreInfo(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store config: %w", err)
	}

	return store, nil
}

// NewS3StoreFromConfig initializes a new S3Store from a generic StoreConfig.
func NewS3StoreFromConfig(config StoreConfig, namespace string) (*S3Store, error) {
	if config.Type != StoreTypeS3 {
		return nil, fmt.Errorf("invalid store type for MinIO: %s", config.Type)
	}

	configBytes, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var s3Config S3Config
	if err = json.Unmarshal(configBytes, &s3Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal S3 config: %w", err)
	}

	return NewS3Store(s3Config, namespace)
}

func (s3s *S3Store) initializeStoreInfo(ctx context.Context) error {
	objectName := s3s.buildNamespacePath("store.config")
	debug.Print("store config object: '%s'\n", objectName)

	_, err := s3s.client.StatObject(ctx, s3s.bucketName, objectName, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	if !s3s.isNotFoundError(err) {
		return fmt.Errorf("failed to check store config: %w", err)
	}

	info := StoreInfo{
		Version:    "1.0.0",
		Namespace:  s3s.namespace,
		CreatedAt:  time.Now().UTC(),
		LastAccess: time.Now().UTC(),
		Structure:  "v1",
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store config: %w", err)
	}

	_, err = s3s.client.PutObject(ctx, s3s.bucketName, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"data-type":         "store-config",
				"namespace":         s3s.namespace,
				"structure-version": info.Structure,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create store config: %w", err)
	}
	return nil
}

func (s3s *S3Store) objectName(key string) string {
	return s3s.buildNamespacePath("keys", encodeKey(key))
}

// read loads key, checking its checksum when verify is set.
func (s3s *S3Store) read(ctx context.Context, key string, verify bool) (Value, bool, error) {
	objectName := s3s.objectName(key)

	info, err := s3s.client.StatObject(ctx, s3s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		if s3s.isNotFoundError(err) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("failed to stat %s: %w", objectName, err)
	}

	object, err := s3s.client.GetObject(ctx, s3s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return Value{}, false, fmt.Errorf("failed to get %s: %w", objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if s3s.isNotFoundError(err) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("failed to read %s: %w", objectName, err)
	}
	if verify {
		if err = verifyChecksum(info.UserMetadata, data); err != nil {
			return Value{}, false, fmt.Errorf("%s: %w", key, err)
		}
	}

	return Value{Type: typeFromMetadata(info.UserMetadata), Data: data}, true, nil
}

func (s3s *S3Store) write(ctx context.Context, key string, value Value) error {
	if value.Type == TypeEmpty {
		value.Type = TypeString
	}

	_, err := s3s.client.PutObject(ctx, s3s.bucketName, s3s.objectName(key),
		bytes.NewReader(value.Data), int64(len(value.Data)),
		minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: valueMetadata(s3s.namespace, value),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to put value: %w", err)
	}
	return nil
}

func (s3s *S3Store) Open(ctx context.Context, key string, mode Mode) (Entry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	current, exists, err := s3s.read(ctx, key, mode&ModeWrite == 0)
	if err != nil {
		return nil, err
	}
	if !exists && mode&ModeWrite == 0 {
		return nil, ErrNotFound
	}

	// commits outlive the caller's context, bounded by ctxTimeout
	return newEntry(key, mode, current,
		func(v Value) error {
			ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
			defer cancel()
			return s3s.write(ctx, key, v)
		},
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
			defer cancel()
			return s3s.Delete(ctx, key)
		},
	), nil
}

func (s3s *S3Store) Put(ctx context.Context, key string, value Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s3s.write(ctx, key, value)
}

func (s3s *S3Store) Delete(ctx context.Context, key string) error {
	err := s3s.client.RemoveObject(ctx, s3s.bucketName, s3s.objectName(key), minio.RemoveObjectOptions{})
	if err != nil && !s3s.isNotFoundError(err) {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s3s *S3Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keysPrefix := s3s.buildNamespacePath("keys") + "/"

	objectCh := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
		Prefix:    keysPrefix,
		Recursive: true,
	})

	keys := []string{}
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list keys: %w", object.Err)
		}
		key, ok := decodeKey(strings.TrimPrefix(object.Key, keysPrefix))
		if !ok {
			debug.Print("skipping foreign object %s\n", object.Key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Ping tests connectivity by checking the bucket exists.
func (s3s *S3Store) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to ping S3: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s3s.bucketName)
	}
	return nil
}

func (s3s *S3Store) Close() error {
	return nil
}

func (s3s *S3Store) GetType() string {
	return string(StoreTypeS3)
}

func (s3s *S3Store) buildNamespacePath(components ...string) string {
	var parts []string

	if s3s.keyPrefix != "" {
		cleanPrefix := strings.Trim(s3s.keyPrefix, "/")
		if cleanPrefix != "" {
			parts = append(parts, cleanPrefix)
		}
	}

	parts = append(parts, s3s.namespace)

	for _, component := range components {
		if component != "" {
			parts = append(parts, component)
		}
	}

	return strings.Join(parts, "/")
}

func (s3s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		err = s3s.client.MakeBucket(ctx, s3s.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

func (s3s *S3Store) isNotFoundError(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey" || misc.IsNotFoundError(err)
}
