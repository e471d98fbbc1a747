package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
supabaseURL: https://file.supabase.co
supabaseAnonKey: file-key
requestTimeout: 3s
maxImages: 3
strictNumericInput: true
authAttemptsPerMinute: 4
`)
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("STOREFRONT_MAX_IMAGE_BYTES", "1024")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SupabaseURL != "https://env.supabase.co" {
		t.Fatalf("env should override file, got %q", cfg.SupabaseURL)
	}
	if cfg.SupabaseAnonKey != "file-key" || cfg.LogLevel != "debug" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("requestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.MaxImages != 3 || cfg.MaxImageBytes != 1024 || !cfg.StrictNumericInput || cfg.AuthAttemptsPerMinute != 4 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if !cfg.RemoteConfigured() {
		t.Fatalf("remote should be configured")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("STOREFRONT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default file should be optional: %v", err)
	}
	if cfg.DataBackend != "rest" || cfg.StorageBackend != "supabase" || cfg.SessionStore != "file" {
		t.Fatalf("unexpected backends: %+v", cfg)
	}
	if cfg.MaxImages != 5 || cfg.MaxImageBytes != 5*1024*1024 {
		t.Fatalf("unexpected image limits: %d %d", cfg.MaxImages, cfg.MaxImageBytes)
	}
	if cfg.ImageBucket != "product-images" {
		t.Fatalf("imageBucket = %q", cfg.ImageBucket)
	}
	if cfg.AuthAttemptsPerMinute != 0 {
		t.Fatalf("attempt limiter should stay disabled by default, got %d", cfg.AuthAttemptsPerMinute)
	}
	if cfg.RemoteConfigured() {
		t.Fatalf("remote should not be configured without url and key")
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"postgres needs dsn", "dataBackend: postgres\n", "databaseURL is required"},
		{"unknown data backend", "dataBackend: mongo\n", "unknown dataBackend"},
		{"s3 needs endpoint", "storageBackend: s3\n", "minioEndpoint is required"},
		{"redis session needs addr", "sessionStore: redis\n", "redisAddr is required"},
		{"negative attempts", "authAttemptsPerMinute: -1\n", "authAttemptsPerMinute"},
		{"bad ratio", "breakerFailureRatio: 2\n", "breakerFailureRatio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
