package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Izileth/lp-ebook/internal/config"
	"github.com/Izileth/lp-ebook/internal/ratelimit"
	"github.com/Izileth/lp-ebook/internal/session"
	"github.com/Izileth/lp-ebook/internal/upload"
	"github.com/Izileth/lp-ebook/pkg/remote"
	"github.com/Izileth/lp-ebook/pkg/storage"
	"github.com/Izileth/lp-ebook/pkg/store"
)

// app holds the collaborators every command shares. Interfaces stay nil
// when the backend is not configured so hooks report "service unavailable".
type app struct {
	cfg      config.FileConfig
	out      io.Writer
	client   *remote.Client
	auth     remote.AuthAPI
	data     remote.DataAPI
	bucket   remote.Bucket
	sessions *session.Store
}

func newApp(ctx context.Context, cfg config.FileConfig, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, out: out}

	client, err := remote.New(remote.Config{
		URL:       cfg.SupabaseURL,
		AnonKey:   cfg.SupabaseAnonKey,
		Bucket:    cfg.ImageBucket,
		Timeout:   cfg.RequestTimeout,
		Persister: newPersister(cfg),
		Breaker: remote.BreakerConfig{
			FailureRatio: cfg.BreakerFailureRatio,
			MinRequests:  cfg.BreakerMinRequests,
			OpenTimeout:  cfg.BreakerOpenTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init remote client: %w", err)
	}
	if client != nil {
		a.client = client
		a.auth = client.Auth
		a.data = client.Data
		a.bucket = client.Storage
	} else {
		slog.Warn("backend not configured; set SUPABASE_URL and SUPABASE_ANON_KEY")
	}

	if cfg.DataBackend == "postgres" {
		gormData, err := store.NewGormData(cfg.DatabaseURL, a.currentUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres data plane: %w", err)
		}
		a.data = gormData
	}
	if cfg.StorageBackend == "s3" {
		bucket, err := storage.NewMinioBucket(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.ImageBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to init object storage: %w", err)
		}
		a.bucket = bucket
	}

	var opts []session.Option
	if cfg.RedisAddr != "" && cfg.AuthAttemptsPerMinute > 0 {
		limiter, err := ratelimit.NewAttemptLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.AuthAttemptsPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("failed to init attempt limiter: %w", err)
		}
		opts = append(opts, session.WithAttemptLimiter(limiter))
	}
	a.sessions = session.New(a.auth, opts...)
	if err := a.sessions.Start(ctx); err != nil && !errors.Is(err, remote.ErrUnavailable) {
		slog.Warn("session check failed", "err", err)
	}
	return a, nil
}

func newPersister(cfg config.FileConfig) remote.SessionPersister {
	switch cfg.SessionStore {
	case "memory":
		return remote.NewMemoryPersister()
	case "redis":
		return remote.NewRedisPersister(cfg.RedisAddr, cfg.RedisPassword, "", 0)
	default:
		return remote.NewFilePersister(cfg.SessionFile)
	}
}

func (a *app) currentUserID() string {
	if a.client == nil {
		return ""
	}
	return a.client.Auth.CurrentUserID()
}

func (a *app) close() {
	a.sessions.Stop()
}

func (a *app) uploader(existing []string) *upload.Controller {
	return upload.New(a.bucket,
		upload.WithMaxImages(a.cfg.MaxImages),
		upload.WithMaxBytes(a.cfg.MaxImageBytes),
		upload.WithImages(existing),
		upload.WithResetDelay(0),
		upload.WithOnChange(func(s upload.State) {
			slog.Info("upload", "phase", s.Phase, "progress", s.Progress, "err", s.Err)
		}),
	)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
