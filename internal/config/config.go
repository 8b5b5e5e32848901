// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBDriver string `mapstructure:"DB_DRIVER"`
	// DatabaseURL overrides the DB_* fields for postgres when set.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBSSLMode   string `mapstructure:"DB_SSLMODE"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	// DBSchemaMode is sql, auto or hybrid. sqlite always uses auto.
	DBSchemaMode string `mapstructure:"DB_SCHEMA_MODE"`

	RedisURL string `mapstructure:"REDIS_URL"`

	UploadQuarantineDir  string        `mapstructure:"UPLOAD_QUARANTINE_DIR"`
	UploadPermanentDir   string        `mapstructure:"UPLOAD_PERMANENT_DIR"`
	UploadPublicBaseURL  string        `mapstructure:"UPLOAD_PUBLIC_BASE_URL"`
	UploadMaxBytes       int64         `mapstructure:"UPLOAD_MAX_BYTES"`
	UploadRateLimit      int           `mapstructure:"UPLOAD_RATE_LIMIT"`
	UploadRateWindow     time.Duration `mapstructure:"UPLOAD_RATE_WINDOW"`
	StagedRetention      time.Duration `mapstructure:"STAGED_RETENTION"`
	ReclaimInterval      time.Duration `mapstructure:"RECLAIM_INTERVAL"`
	StorageBackend       string        `mapstructure:"STORAGE_BACKEND"`
	S3Bucket             string        `mapstructure:"S3_BUCKET"`
	S3Region             string        `mapstructure:"S3_REGION"`
	S3Endpoint           string        `mapstructure:"S3_ENDPOINT"`
	S3AccessKey          string        `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey          string        `mapstructure:"S3_SECRET_KEY"`
	UnreadCountCacheTTL  time.Duration `mapstructure:"UNREAD_COUNT_CACHE_TTL"`
	GlobalRateLimitPerIP int           `mapstructure:"GLOBAL_RATE_LIMIT_PER_MINUTE"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// SetDefaults registers the development defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "murmur")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "murmur.db")
	v.SetDefault("DB_SCHEMA_MODE", "hybrid")

	v.SetDefault("REDIS_URL", "localhost:6379")

	v.SetDefault("UPLOAD_QUARANTINE_DIR", "uploads/quarantine")
	v.SetDefault("UPLOAD_PERMANENT_DIR", "uploads/images")
	v.SetDefault("UPLOAD_PUBLIC_BASE_URL", "/uploads/images")
	v.SetDefault("UPLOAD_MAX_BYTES", 5*1024*1024)
	v.SetDefault("UPLOAD_RATE_LIMIT", 10)
	v.SetDefault("UPLOAD_RATE_WINDOW", "15m")
	v.SetDefault("STAGED_RETENTION", "1h")
	v.SetDefault("RECLAIM_INTERVAL", "1h")
	v.SetDefault("STORAGE_BACKEND", "local")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("UNREAD_COUNT_CACHE_TTL", "30s")
	v.SetDefault("GLOBAL_RATE_LIMIT_PER_MINUTE", 100)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.GetViper()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	// The base config file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.UploadPublicBaseURL = strings.TrimRight(c.UploadPublicBaseURL, "/")
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.UploadMaxBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be positive")
	}
	if c.UploadRateLimit <= 0 || c.UploadRateWindow <= 0 {
		return errors.New("UPLOAD_RATE_LIMIT and UPLOAD_RATE_WINDOW must be positive")
	}
	if c.StagedRetention <= 0 || c.ReclaimInterval <= 0 {
		return errors.New("STAGED_RETENTION and RECLAIM_INTERVAL must be positive")
	}
	if c.UploadQuarantineDir == "" {
		return errors.New("UPLOAD_QUARANTINE_DIR is required")
	}
	switch c.StorageBackend {
	case "local":
		if c.UploadPermanentDir == "" {
			return errors.New("UPLOAD_PERMANENT_DIR is required for local storage")
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for s3 storage")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend)
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.DBDriver == "sqlite" {
			return errors.New("sqlite is not supported in production")
		}
		if c.DatabaseURL == "" {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must not be 'disable' in production")
			}
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
