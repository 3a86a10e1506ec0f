package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	defaultJWTSecret     = "change-me-jwt-secret"
	defaultInternalToken = "change-me-internal-token"
)

// Config holds the environment driven configuration of the media vault.
type Config struct {
	AppEnv          string        `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`

	// sqlite path or postgres:// url
	DatabaseURL string `env:"DATABASE_URL" envDefault:"photovault.db"`
	StorageRoot string `env:"STORAGE_ROOT" envDefault:"./data"`

	Retention          time.Duration `env:"RETENTION" envDefault:"168h"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	ThumbRetryAttempts int           `env:"THUMB_RETRY_ATTEMPTS" envDefault:"1"`
	ThumbRetryDelay    time.Duration `env:"THUMB_RETRY_DELAY" envDefault:"5s"`
	ThumbnailTimeout   time.Duration `env:"THUMBNAIL_TIMEOUT" envDefault:"30s"`
	ThumbnailMaxPixels int           `env:"THUMBNAIL_MAX_PIXELS" envDefault:"268402689"`
	FSOpTimeout        time.Duration `env:"FS_OP_TIMEOUT" envDefault:"10s"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	ReconcileOnStart   bool          `env:"RECONCILE_ON_START" envDefault:"true"`
	ReconcileGrace     time.Duration `env:"RECONCILE_GRACE" envDefault:"1h"`

	InternalToken      string   `env:"INTERNAL_TOKEN" envDefault:"change-me-internal-token"`
	JWTSecret          string   `env:"JWT_SECRET" envDefault:"change-me-jwt-secret"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load parses environment variables into Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.StorageRoot = strings.TrimSpace(cfg.StorageRoot)
	cfg.InternalToken = strings.TrimSpace(cfg.InternalToken)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.StorageRoot == "" {
		return fmt.Errorf("STORAGE_ROOT must not be empty")
	}
	if cfg.Retention <= 0 {
		return fmt.Errorf("RETENTION must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if cfg.ThumbRetryAttempts < 0 {
		return fmt.Errorf("THUMB_RETRY_ATTEMPTS must be >= 0")
	}
	if cfg.ThumbRetryDelay < 0 {
		return fmt.Errorf("THUMB_RETRY_DELAY must be >= 0")
	}
	if cfg.ThumbnailTimeout <= 0 {
		return fmt.Errorf("THUMBNAIL_TIMEOUT must be > 0")
	}
	if cfg.ThumbnailMaxPixels <= 0 {
		return fmt.Errorf("THUMBNAIL_MAX_PIXELS must be > 0")
	}
	if cfg.FSOpTimeout <= 0 {
		return fmt.Errorf("FS_OP_TIMEOUT must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.ReconcileGrace < 0 {
		return fmt.Errorf("RECONCILE_GRACE must be >= 0")
	}
	if cfg.InternalToken == "" && cfg.JWTSecret == "" {
		return fmt.Errorf("one of INTERNAL_TOKEN or JWT_SECRET must be set")
	}

	if isProdLike(cfg.AppEnv) {
		if cfg.InternalToken == defaultInternalToken {
			return fmt.Errorf("in prod/release INTERNAL_TOKEN must not be default")
		}
		if cfg.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("in prod/release JWT_SECRET must not be default")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}
