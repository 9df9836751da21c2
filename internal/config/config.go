// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds everything the server process needs.
type Config struct {
	Port       int    `env:"ARRIENDA_PORT,default=8080"`
	DBPath     string `env:"ARRIENDA_DB"`
	BaseURL    string `env:"ARRIENDA_BASE_URL,default=http://localhost:8080"`
	DevMode    bool   `env:"ARRIENDA_DEV_MODE,default=false"`
	AdminEmail string `env:"ARRIENDA_ADMIN_EMAIL"`

	JWTSecret  string        `env:"ARRIENDA_JWT_SECRET"`
	JWTTTL     time.Duration `env:"ARRIENDA_JWT_TTL,default=24h"`
	ListingTTL time.Duration `env:"ARRIENDA_LISTING_TTL,default=2160h"`

	CronSecret      string `env:"ARRIENDA_CRON_SECRET"`
	CleanupSchedule string `env:"ARRIENDA_CLEANUP_SCHEDULE,default=@hourly"`

	RateLimit float64 `env:"ARRIENDA_RATE_LIMIT,default=10"`
	RateBurst int     `env:"ARRIENDA_RATE_BURST,default=20"`

	SMTP        SMTP
	MercadoPago MercadoPago
	Storage     Storage
}

// SMTP holds outgoing mail settings.
type SMTP struct {
	Host string `env:"SMTP_HOST"`
	Port string `env:"SMTP_PORT,default=587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	From string `env:"SMTP_FROM"`
}

// MercadoPago holds payment gateway settings.
type MercadoPago struct {
	AccessToken   string `env:"MP_ACCESS_TOKEN"`
	WebhookSecret string `env:"MP_WEBHOOK_SECRET"`
	APIURL        string `env:"MP_API_URL,default=https://api.mercadopago.com"`
}

// Enabled reports whether checkout can be offered.
func (m MercadoPago) Enabled() bool {
	return m.AccessToken != ""
}

// Storage selects and configures the image bucket.
type Storage struct {
	Backend   string `env:"ARRIENDA_STORAGE,default=local"`
	Dir       string `env:"ARRIENDA_STORAGE_DIR"`
	Bucket    string `env:"S3_BUCKET"`
	Region    string `env:"S3_REGION,default=us-east-1"`
	Endpoint  string `env:"S3_ENDPOINT"`
	PublicURL string `env:"S3_PUBLIC_URL"`
}

// Load reads an optional .env file from the working directory and then
// decodes the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv decodes the current environment into a Config.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decoding environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("ARRIENDA_PORT must be 1-65535, got %d", c.Port)
	}
	if !c.DevMode && c.JWTSecret == "" {
		return fmt.Errorf("ARRIENDA_JWT_SECRET is required outside dev mode")
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when ARRIENDA_STORAGE=s3")
		}
	default:
		return fmt.Errorf("ARRIENDA_STORAGE must be local or s3, got %q", c.Storage.Backend)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("ARRIENDA_RATE_LIMIT must be positive")
	}
	return nil
}

// SigningSecret returns the JWT secret, falling back to a fixed
// development value when running in dev mode without one.
func (c Config) SigningSecret() string {
	if c.JWTSecret == "" && c.DevMode {
		return "dev-only-insecure-secret"
	}
	return c.JWTSecret
}
