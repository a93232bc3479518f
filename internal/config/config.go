package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the shadowing client.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"150s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Backend API
	APIBaseURL string        `envconfig:"API_BASE_URL" default:"http://localhost:8000"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"120s"`

	// Query cache
	QueryRetry   int   `envconfig:"QUERY_RETRY" default:"1"`
	CacheMaxCost int64 `envconfig:"CACHE_MAX_COST" default:"1000"`

	// Uploads and sessions
	UploadMaxBytes int64         `envconfig:"UPLOAD_MAX_BYTES" default:"26214400"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"2h"`

	// Redis (cross-instance cache invalidation)
	RedisURL     string `envconfig:"REDIS_URL"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"shadowing:invalidate"`

	// Google Cloud Pub/Sub (cross-instance cache invalidation)
	PubSubProjectID      string `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubTopicID        string `envconfig:"PUBSUB_TOPIC_ID"`
	PubSubSubscriptionID string `envconfig:"PUBSUB_SUBSCRIPTION_ID"`

	// Cloudflare R2 (recording archive)
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Google Cloud Storage (recording archive)
	GCSArchiveBucket string `envconfig:"GCS_ARCHIVE_BUCKET"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.QueryRetry < 0 {
		return fmt.Errorf("QUERY_RETRY must not be negative, got %d", c.QueryRetry)
	}
	if c.CacheMaxCost <= 0 {
		return fmt.Errorf("CACHE_MAX_COST must be positive, got %d", c.CacheMaxCost)
	}
	// Responses wait on backend calls of up to API_TIMEOUT.
	if c.WriteTimeout <= c.APITimeout {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT (%s) must exceed API_TIMEOUT (%s)", c.WriteTimeout, c.APITimeout)
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes)
	}
	return nil
}

// SubmissionTimeout bounds requests that carry a large upload to the backend,
// such as a recording that is uploaded and then evaluated. Each backend call
// is limited by API_TIMEOUT.
func (c *Config) SubmissionTimeout() time.Duration {
	return 2*c.APITimeout + c.ReadTimeout
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// APIBase returns the backend base URL without a trailing slash.
func (c *Config) APIBase() string {
	return strings.TrimRight(c.APIBaseURL, "/")
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// R2Enabled reports whether the Cloudflare archive is fully configured.
func (c *Config) R2Enabled() bool {
	return c.CloudflareAccessKeyID != "" && c.CloudflareSecretKey != "" &&
		c.CloudflareR2Endpoint != "" && c.CloudflareBucketName != ""
}

// PubSubEnabled reports whether Pub/Sub invalidation is fully configured.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubTopicID != "" && c.PubSubSubscriptionID != ""
}
