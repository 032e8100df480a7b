package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"billing-service/internal/billing"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	App       AppConfig
	Tenancy   TenancyConfig
	Billing   BillingConfig
	Settings  SettingsConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           string
	Mode           string
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL     string
	Enabled bool
}

// AppConfig holds application configuration
type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

// TenancyConfig controls tenant provisioning
type TenancyConfig struct {
	AllowMultiple bool // a user may own more than one tenant
	CodeLength    int
}

// BillingConfig holds billing behaviour consumed at boot
type BillingConfig struct {
	ProrationUpgrade   string
	ProrationDowngrade string
	DefaultCurrency    string
	InvitationTTL      time.Duration
	Proration          billing.ProrationPolicy
}

// SettingsConfig holds settings cache configuration
type SettingsConfig struct {
	CacheKey string
	CacheTTL time.Duration
}

// SchedulerConfig holds the plan change sweep configuration
type SchedulerConfig struct {
	Enabled            bool
	PlanChangeSchedule string
}

var defaultAllowedOrigins = []string{
	"http://localhost:3000", // storefront / API gateway
	"http://localhost:4200", // admin shell
}

// New creates a new configuration instance from the environment
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvWithDefault("SERVER_PORT", "8095"),
			Mode:           getEnvWithDefault("GIN_MODE", "debug"),
			AllowedOrigins: getEnvAsSliceWithDefault("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: getEnvWithDefault("DB_PASSWORD", "password"),
			Name:     getEnvWithDefault("DB_NAME", "billing_db"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
			Enabled:  getEnvAsBoolWithDefault("REDIS_ENABLED", true),
		},
		NATS: NATSConfig{
			URL:     getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBoolWithDefault("NATS_ENABLED", true),
		},
		App: AppConfig{
			Environment: getEnvWithDefault("APP_ENV", "development"),
			LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
			Version:     getEnvWithDefault("APP_VERSION", "1.0.0"),
		},
		Tenancy: TenancyConfig{
			AllowMultiple: getEnvAsBoolWithDefault("TENANT_ALLOW_MULTIPLE", false),
			CodeLength:    getEnvAsIntWithDefault("TENANT_CODE_LENGTH", 8),
		},
		Billing: BillingConfig{
			ProrationUpgrade:   getEnvWithDefault("PRORATION_UPGRADE", string(billing.ProrateImmediately)),
			ProrationDowngrade: getEnvWithDefault("PRORATION_DOWNGRADE", string(billing.EndOfPeriod)),
			DefaultCurrency:    getEnvWithDefault("DEFAULT_CURRENCY", "USD"),
			InvitationTTL:      time.Duration(getEnvAsIntWithDefault("INVITATION_TTL_HOURS", 168)) * time.Hour,
		},
		Settings: SettingsConfig{
			CacheKey: getEnvWithDefault("SETTINGS_CACHE_KEY", "settings:all"),
			CacheTTL: time.Duration(getEnvAsIntWithDefault("SETTINGS_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBoolWithDefault("PLAN_CHANGE_SCHEDULER_ENABLED", true),
			PlanChangeSchedule: getEnvWithDefault("PLAN_CHANGE_SCHEDULE", "0 */15 * * * *"),
		},
	}
}

// Load builds the configuration and validates the values billing depends on.
// An error here must stop the process before any request is served.
func Load() (*Config, error) {
	cfg := New()

	policy, err := billing.NewProrationPolicy(cfg.Billing.ProrationUpgrade, cfg.Billing.ProrationDowngrade)
	if err != nil {
		return nil, fmt.Errorf("invalid proration configuration: %w", err)
	}
	cfg.Billing.Proration = policy

	if cfg.Tenancy.CodeLength < 4 {
		return nil, fmt.Errorf("TENANT_CODE_LENGTH must be at least 4, got %d", cfg.Tenancy.CodeLength)
	}

	return cfg, nil
}

// getEnvWithDefault gets environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntWithDefault gets environment variable as integer with default fallback
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolWithDefault gets environment variable as boolean with default fallback
func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsSliceWithDefault splits a comma separated variable
func getEnvAsSliceWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
