package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the whole application configuration,
// populated from environment variables.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Webhook   WebhookConfig
	Providers ProvidersConfig
	MinIO     MinIOConfig
	Retention RetentionConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

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

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// WebhookConfig controls the ingestion pipeline.
type WebhookConfig struct {
	// Per-request pipeline timeout in milliseconds
	TimeoutMs int

	// Auto-create a PENDING transaction when an initial payment event
	// arrives for an unknown reference
	AutoCreateTransactions bool

	// Write dispatch payloads to the outbox instead of invoking
	// handlers in-process
	OutboxEnabled bool

	// Payload keys redacted before persisting (case-insensitive
	// substring match on key names)
	RedactKeys []string

	// Test-only escape hatch; never enable in production
	SkipSignatureVerification bool
}

// ProvidersConfig holds per-provider webhook secrets.
// Each provider carries an ordered secret list to support rotation:
// verification tries secrets front to back.
type ProvidersConfig struct {
	PaystackSecrets    []string
	StripeSecrets      []string
	FlutterwaveSecrets []string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RetentionConfig struct {
	WebhookLogDays  int
	OutboxEventDays int
	ArchiveEnabled  bool
}

// Load reads config from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "PayHook"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "payhook"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Webhook: WebhookConfig{
			TimeoutMs:                 getEnvInt("WEBHOOK_TIMEOUT_MS", 30000),
			AutoCreateTransactions:    getEnvBool("WEBHOOK_AUTO_CREATE", false),
			OutboxEnabled:             getEnvBool("WEBHOOK_OUTBOX_ENABLED", true),
			RedactKeys:                getEnvList("WEBHOOK_REDACT_KEYS", "card,cvv,pan,authorization_code,account_number"),
			SkipSignatureVerification: false,
		},
		Providers: ProvidersConfig{
			PaystackSecrets:    getEnvList("PAYSTACK_SECRETS", ""),
			StripeSecrets:      getEnvList("STRIPE_SECRETS", ""),
			FlutterwaveSecrets: getEnvList("FLUTTERWAVE_SECRETS", ""),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "payhook-archive"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Retention: RetentionConfig{
			WebhookLogDays:  getEnvInt("RETENTION_WEBHOOK_DAYS", 90),
			OutboxEventDays: getEnvInt("RETENTION_OUTBOX_DAYS", 30),
			ArchiveEnabled:  getEnvBool("RETENTION_ARCHIVE_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks critical config values
func (c *Config) Validate() error {
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
		if len(c.Providers.PaystackSecrets) == 0 &&
			len(c.Providers.StripeSecrets) == 0 &&
			len(c.Providers.FlutterwaveSecrets) == 0 {
			return fmt.Errorf("at least one provider secret must be configured in production")
		}
	}

	if c.Webhook.TimeoutMs <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT_MS must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList parses a comma-separated env var, dropping empty entries
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
