package config

import (
	"fmt"
	"strings"
	"time"

	"wadesk-backend/pkg/env"
)

// Config holds all configuration for the messaging service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Gateway   GatewayConfig
	Media     MediaConfig
	JWT       JWTConfig
	Log       LogConfig
	AMQP      AMQPConfig
	Tenant    TenantConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds CockroachDB/PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// MinIOConfig holds blob store configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// GatewayConfig holds the chat gateway credentials
type GatewayConfig struct {
	Endpoint         string
	UID              string // the sending account (phone) at the gateway
	Token            string
	Timeout          time.Duration
	WebhookToken     string // empty disables the shared-secret check
	BreakerThreshold int    // consecutive transport failures before failing fast; 0 disables
	BreakerCooldown  time.Duration
}

// MediaConfig bounds media handling
type MediaConfig struct {
	FetchTimeout   time.Duration
	MaxBytes       int64
	SignedURLTTL   time.Duration
	UploadMaxBytes int64
}

// JWTConfig holds JWT verification configuration
type JWTConfig struct {
	Secret string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// AMQPConfig configures lifecycle event export. Empty URL disables it.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// RateLimitConfig bounds agent sends per window
type RateLimitConfig struct {
	Sends  int // 0 disables the limiter
	Window time.Duration
}

// TenantConfig holds fallbacks used when the settings table is empty
type TenantConfig struct {
	DefaultUserID   string
	DefaultSenderID string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8080),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "messaging-service"),
			RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins: env.GetSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "wadesk"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "wadesk-media"),
		},
		Gateway: GatewayConfig{
			Endpoint:         strings.TrimRight(env.GetString("GATEWAY_ENDPOINT", "https://www.waboxapp.com/api"), "/"),
			UID:              env.GetString("GATEWAY_UID", ""),
			Token:            env.GetStringFromFile("GATEWAY_TOKEN", ""),
			Timeout:          env.GetDuration("GATEWAY_TIMEOUT", 15*time.Second),
			WebhookToken:     env.GetStringFromFile("GATEWAY_WEBHOOK_TOKEN", ""),
			BreakerThreshold: env.GetInt("GATEWAY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  env.GetDuration("GATEWAY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Media: MediaConfig{
			FetchTimeout:   env.GetDuration("MEDIA_FETCH_TIMEOUT", 20*time.Second),
			MaxBytes:       env.GetInt64("MEDIA_MAX_BYTES", 25<<20),
			SignedURLTTL:   env.GetDuration("MEDIA_SIGNED_URL_TTL", 15*time.Minute),
			UploadMaxBytes: env.GetInt64("UPLOAD_MAX_BYTES", 25<<20),
		},
		JWT: JWTConfig{
			Secret: env.GetStringFromFile("JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
		AMQP: AMQPConfig{
			URL:      env.GetStringFromFile("AMQP_URL", ""),
			Exchange: env.GetString("AMQP_EXCHANGE", "wadesk.events"),
		},
		Tenant: TenantConfig{
			DefaultUserID:   env.GetString("DEFAULT_USER_ID", ""),
			DefaultSenderID: env.GetString("DEFAULT_SENDER_ID", ""),
		},
		RateLimit: RateLimitConfig{
			Sends:  env.GetInt("RATE_LIMIT_SENDS", 60),
			Window: env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.Gateway.Endpoint == "" {
		return fmt.Errorf("GATEWAY_ENDPOINT must be set")
	}
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be positive")
	}
	if c.Media.FetchTimeout <= 0 || c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT and MEDIA_FETCH_TIMEOUT must be positive")
	}
	if c.RateLimit.Sends > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
