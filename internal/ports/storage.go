// Package ports declares the storage contract shared by the API, the worker
// and the storage adapters.
package ports

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the key later calls must use. localfs and s3 echo the
	// input key; gdrive returns the Drive file id.
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// StorageProvider holds input assets (localfs, gdrive, s3).
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// GetSignedURL returns a time-limited direct URL. Providers without one
	// return an empty URL.
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}

// CleanKey normalizes a slash-separated object key and rejects keys that are
// empty, absolute or escape the root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", fmt.Errorf("object_key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("object_key must be relative: %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("object_key escapes the storage root: %q", key)
	}
	return cleaned, nil
}
