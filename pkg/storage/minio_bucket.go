package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBucket stores product images in an S3 compatible bucket and serves
// them from a public base URL.
type MinioBucket struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinioBucket connects to MinIO and ensures the bucket exists. When
// publicBaseURL is empty, object URLs are built from the endpoint.
func NewMinioBucket(endpoint, accessKey, secretKey, bucket, publicBaseURL string, useSSL bool) (*MinioBucket, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioBucket{client: client, bucket: bucket, publicBase: publicBase(endpoint, publicBaseURL, useSSL)}, nil
}

// Upload stores an object. Existing keys are rejected so uploads never overwrite.
func (m *MinioBucket) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err == nil {
		return fmt.Errorf("put object: %s already exists", key)
	}
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// PublicURL returns the address the storefront renders for key.
func (m *MinioBucket) PublicURL(key string) string {
	return objectURL(m.publicBase, m.bucket, key)
}

// Remove deletes objects, stopping at the first failure.
func (m *MinioBucket) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
	}
	return nil
}

func publicBase(endpoint, publicBaseURL string, useSSL bool) string {
	if base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"); base != "" {
		return base
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(endpoint, "/")
}

func objectURL(base, bucket, key string) string {
	return base + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
