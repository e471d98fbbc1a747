package remote

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Bucket stores uploaded product images.
type Bucket interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	PublicURL(path string) string
	Remove(ctx context.Context, paths ...string) error
}

// StorageBucket implements Bucket against the hosted storage API.
type StorageBucket struct {
	t      *transport
	bucket string
	token  func() string
}

func newStorageBucket(t *transport, bucket string, token func() string) *StorageBucket {
	if token == nil {
		token = func() string { return "" }
	}
	return &StorageBucket{t: t, bucket: bucket, token: token}
}

// Upload stores r at path. Existing objects are never overwritten.
func (s *StorageBucket) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	h := http.Header{}
	h.Set("x-upsert", "false")
	h.Set("cache-control", "max-age=3600")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.t.send(ctx, call{
		api:         "storage",
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + s.bucket + "/" + escapePath(path),
		token:       s.token(),
		header:      h,
		body:        r,
		size:        size,
		contentType: contentType,
	})
	return err
}

func (s *StorageBucket) PublicURL(path string) string {
	return s.t.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + escapePath(path)
}

func (s *StorageBucket) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.t.doJSON(ctx, call{
		api:    "storage",
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + s.bucket,
		token:  s.token(),
	}, map[string][]string{"prefixes": paths}, nil)
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
