package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Izileth/lp-ebook/internal/util"
)

// BreakerConfig controls when the shared circuit breaker opens.
type BreakerConfig struct {
	Name         string
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Name == "" {
		c.Name = "supabase"
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

// transport sends requests to one project and is shared by the auth, data
// and storage clients.
type transport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

func newTransport(baseURL, apiKey string, httpClient *http.Client, cfg BreakerConfig) *transport {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)
	return &transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

type call struct {
	api         string
	method      string
	path        string
	token       string
	header      http.Header
	body        io.Reader
	size        int64
	contentType string
}

// send executes c through the breaker and returns the response body.
// Any status >= 400 is returned as *APIError.
func (t *transport) send(ctx context.Context, c call) ([]byte, error) {
	start := time.Now()
	requestID := util.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = util.NewID()
	}
	logger := util.LoggerFromContext(ctx)
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, c.method, t.baseURL+c.path, c.body)
		if err != nil {
			return nil, err
		}
		if c.size > 0 {
			req.ContentLength = c.size
		}
		req.Header.Set("apikey", t.apiKey)
		token := c.token
		if token == "" {
			token = t.apiKey
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Request-Id", requestID)
		if c.contentType != "" {
			req.Header.Set("Content-Type", c.contentType)
		}
		for k, vs := range c.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		resp, err := t.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, decodeAPIError(resp.StatusCode, http.StatusText(resp.StatusCode), body)
		}
		return resp, nil
	})
	requestDuration.WithLabelValues(c.api).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues(c.api, c.method, "rejected").Inc()
			logger.Debug("remote call rejected", "api", c.api, "method", c.method, "path", c.path, "request_id", requestID)
			return nil, ErrUnavailable
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			requestsTotal.WithLabelValues(c.api, c.method, outcomeFor(apiErr.Status)).Inc()
			return nil, apiErr
		}
		requestsTotal.WithLabelValues(c.api, c.method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", c.method, c.api, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	requestsTotal.WithLabelValues(c.api, c.method, outcomeFor(resp.StatusCode)).Inc()
	logger.Debug("remote call",
		"api", c.api,
		"method", c.method,
		"path", c.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp.StatusCode, http.StatusText(resp.StatusCode), body)
	}
	return body, nil
}

func (t *transport) doJSON(ctx context.Context, c call, payload any, out any) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		c.body = bytes.NewReader(data)
		c.contentType = "application/json"
	}
	body, err := t.send(ctx, c)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.api, err)
	}
	return nil
}

func (t *transport) state() gobreaker.State {
	return t.breaker.State()
}
