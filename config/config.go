// Package config handles loading and managing application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const envProduction = "production"

// Config holds all configuration for the application.
type Config struct {
	// Deployment environment: development, test or production
	Env string

	FrontendURL string
	BackendURL  string

	// Server configuration
	Server ServerConfig

	// Back office API configuration
	Core CoreConfig

	MercadoPago MercadoPagoConfig

	// Security settings
	Security SecurityConfig

	Database  DatabaseConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string
	GinMode string // "debug", "release", or "test"
}

// CoreConfig holds the back office API configuration.
type CoreConfig struct {
	BaseURL string
	APIKey  string
}

// MercadoPagoConfig holds the payment gateway settings.
type MercadoPagoConfig struct {
	AccessToken         string
	Timeout             time.Duration
	StatementDescriptor string
	Currency            string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	WebhookSecret string
	JWTSecret     string
}

type DatabaseConfig struct {
	Driver string // "postgres" or "memory"
	URL    string
}

type RedisConfig struct {
	URL string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type SchedulerConfig struct {
	OverdueSchedule string
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	timeout, err := parseDuration(v.GetString("MERCADOPAGO_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("MERCADOPAGO_TIMEOUT: %w", err)
	}

	return &Config{
		Env:         strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		FrontendURL: v.GetString("FRONTEND_URL"),
		BackendURL:  v.GetString("BACKEND_URL"),
		Server: ServerConfig{
			Port:    v.GetString("PORT"),
			GinMode: v.GetString("GIN_MODE"),
		},
		Core: CoreConfig{
			BaseURL: v.GetString("BACKOFFICE_URL"),
			APIKey:  v.GetString("BACKOFFICE_API_KEY"),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken:         strings.TrimSpace(v.GetString("MERCADOPAGO_ACCESS_TOKEN")),
			Timeout:             timeout,
			StatementDescriptor: v.GetString("MERCADOPAGO_STATEMENT_DESCRIPTOR"),
			Currency:            v.GetString("MERCADOPAGO_CURRENCY"),
		},
		Security: SecurityConfig{
			WebhookSecret: v.GetString("MERCADOPAGO_WEBHOOK_SECRET"),
			JWTSecret:     v.GetString("JWT_SECRET"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
			URL:    v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Scheduler: SchedulerConfig{OverdueSchedule: v.GetString("OVERDUE_SWEEP_SCHEDULE")},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3001")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("BACKEND_URL", "http://localhost:3001")
	v.SetDefault("BACKOFFICE_URL", "http://localhost:8000")
	v.SetDefault("MERCADOPAGO_TIMEOUT", "10s")
	v.SetDefault("MERCADOPAGO_STATEMENT_DESCRIPTOR", "MATEATLETAS")
	v.SetDefault("MERCADOPAGO_CURRENCY", "ARS")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("RABBITMQ_EXCHANGE", "payment_events")
	v.SetDefault("OVERDUE_SWEEP_SCHEDULE", "@hourly")
}

// parseDuration accepts Go durations ("10s") and bare seconds ("10").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	d, err := time.ParseDuration(raw + "s")
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

// IsProduction reports whether real money is expected to move.
func (c *Config) IsProduction() bool {
	return c.Env == envProduction
}

// Validate reports misconfiguration the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case StoragePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Database.Driver))
	}
	if c.IsProduction() {
		if c.Security.WebhookSecret == "" {
			errs = append(errs, errors.New("MERCADOPAGO_WEBHOOK_SECRET is required in production"))
		}
		if c.Security.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.Database.Driver == StorageMemory {
			errs = append(errs, errors.New("STORAGE_DRIVER=memory is not allowed in production"))
		}
	}
	return errors.Join(errs...)
}

// Warnings lists non-fatal gaps worth logging at startup.
func (c *Config) Warnings() []string {
	var out []string
	if c.MercadoPago.AccessToken == "" || strings.Contains(c.MercadoPago.AccessToken, "XXXXXXXX") {
		out = append(out, "MERCADOPAGO_ACCESS_TOKEN not configured; payments run in mock mode")
	}
	if c.Security.WebhookSecret == "" {
		out = append(out, "MERCADOPAGO_WEBHOOK_SECRET not configured; webhook signatures are not verified")
	}
	if c.Security.JWTSecret == "" {
		out = append(out, "JWT_SECRET not configured; authenticated routes reject every request")
	}
	if c.Core.APIKey == "" {
		out = append(out, "BACKOFFICE_API_KEY not configured")
	}
	if c.Redis.URL == "" {
		out = append(out, "REDIS_URL not configured; webhook idempotency is kept in memory")
	}
	if c.RabbitMQ.URL == "" {
		out = append(out, "RABBITMQ_URL not configured; lifecycle events are only logged")
	}
	return out
}
