package config

import (
	"fmt"
	"net/url"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for quality-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                     // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional fast-read cache for dashboard scores)
	Redis RedisConfig `yaml:"redis"`

	// Audit scoring and submission configuration
	Scoring ScoringConfig `yaml:"scoring"`

	// Health score engine configuration
	Health HealthConfig `yaml:"health"`

	// CAPA due-date spans per finding severity
	CAPA CAPAConfig `yaml:"capa"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"quality"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"quality_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis cache configuration. Empty host disables the cache.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ScoringConfig holds audit execution thresholds.
type ScoringConfig struct {
	// CompletionThreshold is the minimum fraction of answered items (0-100)
	// required before an audit can be submitted.
	CompletionThreshold float64 `yaml:"completion_threshold" env:"SCORING_COMPLETION_THRESHOLD" env-default:"95"`

	// AutosaveQuietMs is the debounce quiet period for draft autosave.
	AutosaveQuietMs int `yaml:"autosave_quiet_ms" env:"SCORING_AUTOSAVE_QUIET_MS" env-default:"750"`
}

// HealthConfig holds health score engine configuration.
type HealthConfig struct {
	// StalenessHours is the age of the last full batch run after which a new
	// batch recalculation is triggered opportunistically.
	StalenessHours int `yaml:"staleness_hours" env:"HEALTH_STALENESS_HOURS" env-default:"6"`

	// SuspensionThreshold is the supplier quality score below which the
	// supplier is automatically suspended.
	SuspensionThreshold float64 `yaml:"suspension_threshold" env:"HEALTH_SUSPENSION_THRESHOLD" env-default:"60"`
}

// CAPAConfig holds CAPA due-date spans in days, keyed by finding severity.
type CAPAConfig struct {
	CriticalDueDays int `yaml:"critical_due_days" env:"CAPA_CRITICAL_DUE_DAYS" env-default:"3"`
	HighDueDays     int `yaml:"high_due_days" env:"CAPA_HIGH_DUE_DAYS" env-default:"7"`
	MediumDueDays   int `yaml:"medium_due_days" env:"CAPA_MEDIUM_DUE_DAYS" env-default:"14"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Scoring.CompletionThreshold < 0 || c.Scoring.CompletionThreshold > 100 {
		return fmt.Errorf("scoring.completion_threshold must be between 0 and 100, got %v", c.Scoring.CompletionThreshold)
	}
	if c.Health.StalenessHours <= 0 {
		return fmt.Errorf("health.staleness_hours must be positive, got %d", c.Health.StalenessHours)
	}
	if c.Health.SuspensionThreshold < 0 || c.Health.SuspensionThreshold > 100 {
		return fmt.Errorf("health.suspension_threshold must be between 0 and 100, got %v", c.Health.SuspensionThreshold)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
