package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the file read when no path is given and STOREFRONT_CONFIG is unset.
var ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML, overlaid by environment variables.
type FileConfig struct {
	LogLevel        string        `yaml:"logLevel" env:"LOG_LEVEL"`
	SupabaseURL     string        `yaml:"supabaseURL" env:"SUPABASE_URL"`
	SupabaseAnonKey string        `yaml:"supabaseAnonKey" env:"SUPABASE_ANON_KEY"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" env:"STOREFRONT_REQUEST_TIMEOUT"`

	DataBackend string `yaml:"dataBackend" env:"STOREFRONT_DATA_BACKEND"`
	DatabaseURL string `yaml:"databaseURL" env:"DATABASE_URL"`

	StorageBackend string `yaml:"storageBackend" env:"STOREFRONT_STORAGE_BACKEND"`
	ImageBucket    string `yaml:"imageBucket" env:"STOREFRONT_IMAGE_BUCKET"`
	MinioEndpoint  string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
	MinioPublicURL string `yaml:"minioPublicURL" env:"MINIO_PUBLIC_URL"`

	SessionStore  string `yaml:"sessionStore" env:"STOREFRONT_SESSION_STORE"`
	SessionFile   string `yaml:"sessionFile" env:"STOREFRONT_SESSION_FILE"`
	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`

	// AuthAttemptsPerMinute caps sign-in and sign-up attempts per email when
	// redisAddr is set. Zero disables the limiter.
	AuthAttemptsPerMinute int   `yaml:"authAttemptsPerMinute" env:"STOREFRONT_AUTH_ATTEMPTS_PER_MINUTE"`
	MaxImages             int   `yaml:"maxImages" env:"STOREFRONT_MAX_IMAGES"`
	MaxImageBytes         int64 `yaml:"maxImageBytes" env:"STOREFRONT_MAX_IMAGE_BYTES"`
	StrictNumericInput    bool  `yaml:"strictNumericInput" env:"STOREFRONT_STRICT_NUMERIC"`

	MetricsAddr string `yaml:"metricsAddr" env:"STOREFRONT_METRICS_ADDR"`

	BreakerFailureRatio float64       `yaml:"breakerFailureRatio"`
	BreakerMinRequests  uint32        `yaml:"breakerMinRequests"`
	BreakerOpenTimeout  time.Duration `yaml:"breakerOpenTimeout"`
}

// DefaultPath returns STOREFRONT_CONFIG when set, else ConfigPath.
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path. With an empty path the default file is
// optional and the environment alone may configure the client.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	optional := false
	if path == "" {
		path = DefaultPath()
		optional = true
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.DataBackend == "" {
		cfg.DataBackend = "rest"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "supabase"
	}
	if cfg.ImageBucket == "" {
		cfg.ImageBucket = "product-images"
	}
	if cfg.SessionStore == "" {
		cfg.SessionStore = "file"
	}
	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.SessionFile = filepath.Join(dir, "lp-ebook", "session.json")
	}
	if cfg.MaxImages == 0 {
		cfg.MaxImages = 5
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = 5 * 1024 * 1024
	}
	if cfg.BreakerFailureRatio == 0 {
		cfg.BreakerFailureRatio = 0.5
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 5
	}
	if cfg.BreakerOpenTimeout == 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.DataBackend {
	case "rest":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for dataBackend postgres (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown dataBackend %q (want rest or postgres)", cfg.DataBackend)
	}
	switch cfg.StorageBackend {
	case "supabase":
	case "s3":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" {
			return errors.New("config: minioEndpoint is required for storageBackend s3 (set in config.yaml or MINIO_ENDPOINT)")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want supabase or s3)", cfg.StorageBackend)
	}
	switch cfg.SessionStore {
	case "memory", "file":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for sessionStore redis")
		}
	default:
		return fmt.Errorf("config: unknown sessionStore %q (want memory, file or redis)", cfg.SessionStore)
	}
	if cfg.AuthAttemptsPerMinute < 0 {
		return errors.New("config: authAttemptsPerMinute must be >= 0")
	}
	if cfg.MaxImages < 0 || cfg.MaxImageBytes < 0 {
		return errors.New("config: image limits must be >= 0")
	}
	if cfg.BreakerFailureRatio < 0 || cfg.BreakerFailureRatio > 1 {
		return errors.New("config: breakerFailureRatio must be between 0 and 1")
	}
	return nil
}

// RemoteConfigured reports whether the hosted backend URL and key are both set.
func (c FileConfig) RemoteConfigured() bool {
	return strings.TrimSpace(c.SupabaseURL) != "" && strings.TrimSpace(c.SupabaseAnonKey) != ""
}
