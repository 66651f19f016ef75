package signer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIO signs download URLs against an S3-compatible object store.
type MinIO struct {
	client *minio.Client
	bucket string
}

// Config holds the object-store connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinIO creates a signer for the configured bucket. Construction only
// validates the endpoint; credentials are exercised on first signing.
func NewMinIO(cfg Config) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

// PresignedGet returns a GET URL for objectKey valid for ttl.
func (m *MinIO) PresignedGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}
