package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket layout prefixes.
const (
	StagePrefix           = "stage-validate/"
	ArchivePrefix         = "archive/"
	TemplatesPrefix       = "system-templates/"
	TemplateArchivePrefix = "system-templates/archive/"
)

// Store is a bucket-scoped object store client. Paths returned by
// Upload and accepted by Stream/Copy/Remove use the "<bucket>/<object>"
// form the graph records.
type Store struct {
	client *minio.Client
	bucket string
	logger hclog.Logger
}

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	Logger    hclog.Logger
}

// New creates the client. The bucket is verified/created by
// EnsureBucket at boot.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: cfg.Logger.Named("objectstore"),
	}, nil
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", s.bucket, err)
		}
		s.logger.Info("created bucket", "bucket", s.bucket)
	}
	return nil
}

// Upload writes bytes at the given object path and returns the storage
// path "<bucket>/<path>".
func (s *Store) Upload(ctx context.Context, data []byte, objectPath, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectPath,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %q: %w", objectPath, err)
	}
	return s.bucket + "/" + objectPath, nil
}

// Stream opens a storage path for reading. The caller owns the reader.
func (s *Store) Stream(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.ObjectName(storagePath), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", storagePath, err)
	}
	return obj, nil
}

// Copy duplicates an object within the bucket. Both arguments may be
// storage paths or bare object names.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: s.ObjectName(dst)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: s.ObjectName(src)},
	)
	if err != nil {
		return fmt.Errorf("failed to copy %q to %q: %w", src, dst, err)
	}
	return nil
}

// Remove deletes an object. Missing objects are not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.ObjectName(path), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return nil
}

// StatNotFound reports whether err signals a missing object.
func StatNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

// PresignedGet builds a temporary GET URL for a storage path.
func (s *Store) PresignedGet(ctx context.Context, storagePath string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.ObjectName(storagePath), expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %q: %w", storagePath, err)
	}
	return u.String(), nil
}

// ObjectName strips the bucket prefix from a storage path, leaving the
// bare object name. Paths without the prefix pass through unchanged.
func (s *Store) ObjectName(storagePath string) string {
	return strings.TrimPrefix(storagePath, s.bucket+"/")
}

// StoragePath adds the bucket prefix to a bare object name.
func (s *Store) StoragePath(objectName string) string {
	if strings.HasPrefix(objectName, s.bucket+"/") {
		return objectName
	}
	return s.bucket + "/" + objectName
}

// Slug normalizes a path segment: lowercase, runs of non-alphanumerics
// collapse to a single dash, empty results become "na".
func Slug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	lastDash := true
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "na"
	}
	return out
}

// ContentTypeForExt infers a Content-Type from a file extension, the
// way the download proxy reports streamed artifacts.
func ContentTypeForExt(path string) string {
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".txt"):
		return "text/plain"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
