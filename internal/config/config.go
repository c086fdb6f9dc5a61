package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var ErrMissingRequired = errors.New("required configuration value is missing")

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StorageInternal = "internal"
	StorageS3       = "s3"
	StorageDatabase = "database"
)

type AppConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Enabled сообщает, задана ли конфигурация реляционного хранилища.
func (c PostgresConfig) Enabled() bool {
	return c.Host != ""
}

func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PaymentConfig struct {
	TestMode        bool
	SecretKey       string
	WebhookSecret   string
	DefaultCurrency string
	ShippingCost    decimal.Decimal
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
	AdminEmail   string
}

type EndpointConfig struct {
	URL    string
	APIKey string
}

type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type StorageConfig struct {
	Type        string
	S3          S3Config
	DatabaseAPI EndpointConfig
	AdminPanel  EndpointConfig
}

type BootstrapAdmin struct {
	Email    string
	Password string
	Name     string
}

type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	CookieSecure   bool
	InternalAPIKey string
	Bootstrap      BootstrapAdmin
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

type TimeoutConfig struct {
	Effect      time.Duration
	Provider    time.Duration
	HTTPClient  time.Duration
	// ServerWrite ограничивает ответ HTTP сервера; вебхук успевает
	// сходить к провайдеру и дождаться всех эффектов
	ServerWrite time.Duration
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Payment  PaymentConfig
	Email    EmailConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Events   EventsConfig
	Timeouts TimeoutConfig
}

// Load читает необязательный .env файл и собирает конфигурацию из окружения.
// Все решения о выборе бэкендов принимаются здесь, один раз при старте.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")
	cfg.App.Env = strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.Postgres.Host = getEnv("DB_HOST", "")
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = getEnv("DB_USER", "postgres")
	cfg.Postgres.Password = getEnvFromFile("DB_PASSWORD", "")
	cfg.Postgres.DBName = getEnv("DB_NAME", "storefront")
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, err
	}
	cfg.Postgres.MaxConns = int32(maxConns)
	cfg.Postgres.MinConns = int32(minConns)
	if cfg.Postgres.MaxConnLifetime, err = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Payment.TestMode, err = getEnvBool("STRIPE_TEST_MODE", false); err != nil {
		return nil, err
	}
	cfg.Payment.SecretKey = getEnvFromFile("STRIPE_SECRET_KEY", "")
	cfg.Payment.WebhookSecret = getEnvFromFile("STRIPE_WEBHOOK_SECRET", "")
	cfg.Payment.DefaultCurrency = strings.ToLower(getEnv("DEFAULT_CURRENCY", "usd"))
	cfg.Payment.ShippingCost, err = decimal.NewFromString(getEnv("SHIPPING_COST", "10.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHIPPING_COST: %w", err)
	}
	if cfg.Payment.ShippingCost.IsNegative() {
		return nil, fmt.Errorf("invalid SHIPPING_COST: must not be negative")
	}

	cfg.Email.ResendAPIKey = getEnvFromFile("RESEND_API_KEY", "")
	cfg.Email.From = getEnv("RESEND_FROM_EMAIL", "Your Brand <onboarding@resend.dev>")
	cfg.Email.AdminEmail = getEnv("ADMIN_EMAIL", "")

	cfg.Storage.Type = strings.ToLower(getEnv("ORDER_STORAGE_TYPE", StorageInternal))
	cfg.Storage.S3.Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.Storage.S3.Region = getEnv("AWS_S3_REGION", "us-east-1")
	cfg.Storage.S3.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.Storage.S3.SecretAccessKey = getEnvFromFile("AWS_SECRET_ACCESS_KEY", "")
	cfg.Storage.DatabaseAPI.URL = getEnv("DATABASE_API_URL", "")
	cfg.Storage.DatabaseAPI.APIKey = getEnvFromFile("DATABASE_API_KEY", "")
	cfg.Storage.AdminPanel.URL = getEnv("ADMIN_PANEL_API_URL", "")
	cfg.Storage.AdminPanel.APIKey = getEnvFromFile("ADMIN_PANEL_API_KEY", "")

	cfg.Auth.JWTSecret = getEnvFromFile("JWT_SECRET", "")
	if cfg.Auth.TokenTTL, err = getEnvDuration("JWT_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	cfg.Auth.CookieSecure = cfg.App.Env == EnvProduction
	cfg.Auth.InternalAPIKey = getEnvFromFile("INTERNAL_API_KEY", "")
	cfg.Auth.Bootstrap.Email = cfg.Email.AdminEmail
	cfg.Auth.Bootstrap.Password = getEnvFromFile("ADMIN_PASSWORD", "")
	cfg.Auth.Bootstrap.Name = getEnv("ADMIN_NAME", "Admin")

	cfg.Events.AMQPURL = getEnvFromFile("ORDER_EVENTS_AMQP_URL", "")
	cfg.Events.Exchange = getEnv("ORDER_EVENTS_EXCHANGE", "orders")

	if cfg.Timeouts.Effect, err = getEnvDuration("EFFECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeouts.Provider, err = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeouts.HTTPClient, err = getEnvDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeouts.ServerWrite, err = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingRequired)
	}

	switch c.Storage.Type {
	case StorageInternal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("%w: AWS_S3_BUCKET (ORDER_STORAGE_TYPE=s3)", ErrMissingRequired)
		}
	case StorageDatabase:
		if c.Storage.DatabaseAPI.URL == "" {
			return fmt.Errorf("%w: DATABASE_API_URL (ORDER_STORAGE_TYPE=database)", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("unknown ORDER_STORAGE_TYPE %q", c.Storage.Type)
	}

	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	if budget := c.Timeouts.Provider + c.Timeouts.Effect; c.Timeouts.ServerWrite <= budget {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT (%s) must exceed PROVIDER_TIMEOUT + EFFECT_TIMEOUT (%s)", c.Timeouts.ServerWrite, budget)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// getEnvFromFile поддерживает секреты вида KEY_FILE=/run/secrets/key.
func getEnvFromFile(key, defaultValue string) string {
	if path := os.Getenv(key + "_FILE"); path != "" {
		content, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(key, defaultValue)
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
