package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const (
	BackendAzure = "azure"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

type (
	Config struct {
		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

		Server   ServerConfig `envPrefix:"HTTP_"`
		Storage  StorageConfig
		Vision   VisionConfig
		Postgres PostgresConfig `envPrefix:"POSTGRES_"`

		APIKey             string        `env:"API_KEY"`
		CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
		RecentCacheTTLMs   int64         `env:"RECENT_CACHE_TTL_MS" envDefault:"60000"`
		MaxImageSizeBytes  int64         `env:"MAX_IMAGE_SIZE_BYTES" envDefault:"6291456"`
		SASExpiry          time.Duration `env:"SAS_EXPIRY" envDefault:"60m"`
		RateLimit          int           `env:"RATE_LIMIT" envDefault:"100"`
		RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
		AccessLogRetention time.Duration `env:"ACCESS_LOG_RETENTION" envDefault:"168h"`
	}

	ServerConfig struct {
		Addr            string        `env:"ADDR" envDefault:":8080"`
		TLSAddr         string        `env:"TLS_ADDR"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	StorageConfig struct {
		Backend           string `env:"STORAGE_BACKEND" envDefault:"azure"`
		ConnectionString  string `env:"AZURE_STORAGE_CONNECTION_STRING"`
		ImagesContainer   string `env:"AZURE_STORAGE_CONTAINER" envDefault:"uploads"`
		MetadataContainer string `env:"AZURE_METADATA_CONTAINER" envDefault:"analysis-metadata"`

		S3Endpoint  string `env:"S3_ENDPOINT"`
		S3Region    string `env:"AWS_REGION" envDefault:"us-east-1"`
		S3AccessKey string `env:"AWS_ACCESS_KEY_ID"`
		S3SecretKey string `env:"AWS_SECRET_ACCESS_KEY"`

		MinioEndpoint  string `env:"MINIO_ENDPOINT"`
		MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
		MinioSecretKey string `env:"MINIO_SECRET_KEY"`
		MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"true"`
		MinioRegion    string `env:"MINIO_REGION" envDefault:"us-east-1"`
	}

	VisionConfig struct {
		Endpoint string        `env:"AZURE_VISION_ENDPOINT"`
		Key      string        `env:"AZURE_VISION_KEY"`
		Timeout  time.Duration `env:"VISION_TIMEOUT" envDefault:"30s"`
	}

	PostgresConfig struct {
		Enabled  bool   `env:"ENABLED" envDefault:"false"`
		User     string `env:"USER" envDefault:"photos"`
		Password string `env:"PASSWORD" envDefault:"password"`
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     string `env:"PORT" envDefault:"5432"`
		Database string `env:"DATABASE" envDefault:"photo_insights"`
		SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
	}
)

// Load reads the configuration from the environment. Malformed values are
// fatal; missing storage or vision settings are reported per request.
func Load() *Config {
	cfg, err := Parse()
	if err != nil {
		panic(fmt.Errorf("read config error: %w", err))
	}
	return cfg
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case BackendAzure, BackendS3, BackendMinio:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}
	return cfg, nil
}

func (c *Config) RecentCacheTTL() time.Duration {
	return time.Duration(c.RecentCacheTTLMs) * time.Millisecond
}

// Configured reports whether the selected backend has enough settings
// to build a client.
func (s StorageConfig) Configured() bool {
	switch s.Backend {
	case BackendS3:
		return s.S3Endpoint != "" || s.S3AccessKey != ""
	case BackendMinio:
		return s.MinioEndpoint != ""
	default:
		return s.ConnectionString != ""
	}
}

// MissingSetting names the environment variable that must be set for the
// selected backend.
func (s StorageConfig) MissingSetting() string {
	switch s.Backend {
	case BackendS3:
		return "S3_ENDPOINT"
	case BackendMinio:
		return "MINIO_ENDPOINT"
	default:
		return "AZURE_STORAGE_CONNECTION_STRING"
	}
}

// Configured reports whether both the endpoint and key are set. Blank
// values count as missing.
func (v VisionConfig) Configured() bool {
	return strings.TrimSpace(v.Endpoint) != "" && strings.TrimSpace(v.Key) != ""
}
