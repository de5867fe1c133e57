// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
}

// DatabaseConfig describes how to reach PostgreSQL. URL, when present, wins over the discrete fields.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" json:"-"`
	Host            string        `env:"DB_HOST" json:"host"`
	Port            int           `env:"DB_PORT" envDefault:"5432" json:"port"`
	Name            string        `env:"DB_NAME" json:"name"`
	User            string        `env:"DB_USER" json:"user"`
	Password        string        `env:"DB_PASSWORD" json:"-"`
	SSLMode         string        `env:"DB_SSL_MODE" envDefault:"require" json:"ssl_mode"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20" json:"max_open_conns"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30s" json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"2s" json:"connect_timeout"`
	AcquireTimeout  time.Duration `env:"DB_ACQUIRE_TIMEOUT" envDefault:"5s" json:"acquire_timeout"`
	ConnectRetries  int           `env:"DB_CONNECT_RETRIES" envDefault:"5" json:"connect_retries"`
	MonitorInterval time.Duration `env:"DB_MONITOR_INTERVAL" envDefault:"30s" json:"monitor_interval"`
	SlowQueryLog    bool          `env:"DB_SLOW_QUERY_LOG" envDefault:"true" json:"slow_query_log"`
	SlowQueryTime   time.Duration `env:"DB_SLOW_QUERY_TIME" envDefault:"1s" json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0" json:"host"`
	Port            int           `env:"SERVER_PORT" envDefault:"3010" json:"port"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s" json:"read_timeout"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s" json:"write_timeout"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s" json:"idle_timeout"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s" json:"shutdown_timeout"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"30s" json:"request_timeout"`
	BodyLimit       int           `env:"SERVER_BODY_LIMIT" envDefault:"1048576" json:"body_limit"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:"," json:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info" json:"level"`    // debug, info, warn, error
	Output     string `env:"LOG_OUTPUT" envDefault:"stdout" json:"output"` // stdout, file, both
	FilePath   string `env:"LOG_FILE_PATH" envDefault:"logs/token-registry.log" json:"file_path"`
	MaxSize    int    `env:"LOG_MAX_SIZE" envDefault:"100" json:"max_size"` // MB
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5" json:"max_backups"`
	MaxAge     int    `env:"LOG_MAX_AGE" envDefault:"30" json:"max_age"` // days
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"true" json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true" json:"enabled"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics" json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `env:"CACHE_ENABLED" envDefault:"false" json:"enabled"`
	Provider        string        `env:"CACHE_PROVIDER" envDefault:"redis" json:"provider"`
	RedisURL        string        `env:"CACHE_REDIS_URL" json:"redis_url"`
	RedisDB         int           `env:"CACHE_REDIS_DB" envDefault:"0" json:"redis_db"`
	RedisPrefix     string        `env:"CACHE_REDIS_PREFIX" envDefault:"token-registry:" json:"redis_prefix"`
	DefaultTTL      time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"1m" json:"default_ttl"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"30s" json:"cleanup_interval"`
}

type DeploymentConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development" json:"environment"`
	Version     string `env:"APP_VERSION" envDefault:"dev" json:"version"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the connection string handed to the postgres driver.
// Discrete fields are URL-encoded so spaces and quotes in credentials survive.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	query := url.Values{}
	if c.SSLMode != "" {
		query.Set("sslmode", c.SSLMode)
	}
	if secs := int(c.ConnectTimeout / time.Second); secs > 0 {
		query.Set("connect_timeout", strconv.Itoa(secs))
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: query.Encode(),
	}
	return dsn.String()
}

// Target describes the database for log lines without leaking credentials
func (c DatabaseConfig) Target() string {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return "database from DATABASE_URL"
		}
		return fmt.Sprintf("%s on %s", strings.TrimPrefix(u.Path, "/"), u.Host)
	}
	return fmt.Sprintf("%s on %s:%d", c.Name, c.Host, c.Port)
}

// loadEnvFile loads environment variables from a dotenv file if it exists
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", envFile, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
			value = value[1 : len(value)-1]
		}

		// Real environment wins over the file
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", envFile, err)
	}

	return nil
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Either a full connection string or every discrete field
	if cfg.Database.URL == "" {
		if cfg.Database.Host == "" {
			errors = append(errors, "DB_HOST is required when DATABASE_URL is not set")
		}
		if cfg.Database.User == "" {
			errors = append(errors, "DB_USER is required when DATABASE_URL is not set")
		}
		if cfg.Database.Password == "" {
			errors = append(errors, "DB_PASSWORD is required when DATABASE_URL is not set")
		}
		if cfg.Database.Name == "" {
			errors = append(errors, "DB_NAME is required when DATABASE_URL is not set")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errors = append(errors, "DB_PORT must be between 1 and 65535")
		}
	}
	if cfg.Database.MaxOpenConns <= 0 {
		errors = append(errors, "DB_MAX_OPEN_CONNS must be positive")
	}
	if cfg.Database.MaxIdleConns < 0 || cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		errors = append(errors, "DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
	}
	if cfg.Database.AcquireTimeout <= 0 {
		errors = append(errors, "DB_ACQUIRE_TIMEOUT must be positive")
	}
	if cfg.Database.ConnectRetries < 1 {
		errors = append(errors, "DB_CONNECT_RETRIES must be at least 1")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if cfg.Server.RequestTimeout <= 0 {
		errors = append(errors, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Validate logging configuration
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
	}
	validOutputs := []string{"stdout", "file", "both"}
	if !slices.Contains(validOutputs, cfg.Logging.Output) {
		errors = append(errors, fmt.Sprintf("LOG_OUTPUT must be one of: %v", validOutputs))
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider != "redis" {
			errors = append(errors, "CACHE_PROVIDER must be redis")
		}
		if cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
