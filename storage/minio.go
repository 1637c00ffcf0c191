package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shannn1/echolab-final/config"
	"github.com/shannn1/echolab-final/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store wraps a MinIO client bound to one bucket. It is constructed
// explicitly from configuration and passed to the components that need it.
type Store struct {
	client        *minio.Client
	bucket        string
	region        string
	publicBaseURL string
}

// NewStore creates a Store from configuration. The connection is not
// verified here; call EnsureBucket before first use.
func NewStore(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	publicBase := cfg.MinioPublicBaseURL
	if publicBase == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.MinioEndpoint, cfg.MinioBucket)
	}

	return &Store{
		client:        client,
		bucket:        cfg.MinioBucket,
		region:        cfg.MinioRegion,
		publicBaseURL: strings.TrimSuffix(publicBase, "/"),
	}, nil
}

// EnsureBucket verifies connectivity and creates the bucket if missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created bucket", logger.String("bucket", s.bucket))
	}
	return nil
}

// UploadAudio stores an audio object and returns its publicly resolvable URL.
func (s *Store) UploadAudio(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: true,
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, opts)
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	return s.publicBaseURL + "/" + objectName, nil
}

// GetObject opens an object for reading. The caller must close it.
func (s *Store) GetObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectName, err)
	}
	return object, nil
}

// BucketStats summarizes the bucket contents for the storage-check command.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Stats walks the bucket under prefix and aggregates object counts and sizes.
func (s *Store) Stats(ctx context.Context, prefix string) (*BucketStats, error) {
	stats := &BucketStats{}

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}
