// Package remote is the client for the hosted backend: the auth API, the
// REST data API and object storage of a single project.
package remote

import (
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config configures a Client.
type Config struct {
	URL     string
	AnonKey string
	// Bucket holds product images. Defaults to "product-images".
	Bucket    string
	Timeout   time.Duration
	Breaker   BreakerConfig
	Persister SessionPersister

	HTTPClient *http.Client
	Now        func() time.Time
}

// Client bundles the three APIs of one project over a shared transport.
type Client struct {
	Auth    *AuthClient
	Data    *DataClient
	Storage *StorageBucket

	t *transport
}

// New constructs a client. It returns (nil, nil) when the project URL or the
// anonymous key is missing; callers treat a nil client as unavailable.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	key := strings.TrimSpace(cfg.AnonKey)
	if baseURL == "" || key == "" {
		return nil, nil
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "product-images"
	}
	t := newTransport(baseURL, key, httpClient, cfg.Breaker)
	auth := newAuthClient(t, cfg.Persister, cfg.Now)
	return &Client{
		Auth:    auth,
		Data:    newDataClient(t, auth.AccessToken),
		Storage: newStorageBucket(t, bucket, auth.AccessToken),
		t:       t,
	}, nil
}

// BreakerState reports the state of the shared circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.t.state()
}
