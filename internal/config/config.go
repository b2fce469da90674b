// Package config provides configuration loading for firmd.
//
// Configuration is loaded from environment variables with sensible defaults,
// optionally layered over a YAML file (see LoadWithFile).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete firmd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	Analytics     AnalyticsConfig     `koanf:"analytics"`
	Events        EventsConfig        `koanf:"events"`
	Observability ObservabilityConfig `koanf:"observability"`
	Report        ReportConfig        `koanf:"report"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is the sustained requests/second allowed per organization.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	Path string `koanf:"path"` // sqlite database file, ":memory:" for ephemeral
}

// AnalyticsConfig holds analytics cache and forecasting configuration.
type AnalyticsConfig struct {
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	MaxEntries      int           `koanf:"max_entries"`
	ForecastPeriods int           `koanf:"forecast_periods"`
}

// EventsConfig holds NATS configuration. An empty URL disables events.
type EventsConfig struct {
	URL           string `koanf:"nats_url"`
	Token         Secret `koanf:"nats_token"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// ReportConfig holds the thresholds the business report compares against.
// Percentages are expressed as 0-100.
type ReportConfig struct {
	RevenueDeclinePct float64 `koanf:"revenue_decline_pct"`
	MinClosureRate    float64 `koanf:"min_closure_rate"`
	MaxResolutionDays float64 `koanf:"max_resolution_days"`
	MinTaskCompletion float64 `koanf:"min_task_completion"`
	MaxOverduePct     float64 `koanf:"max_overdue_pct"`
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//   - SERVER_HTTP_HOST: bind host (default: localhost)
//   - SERVER_HTTP_PORT: HTTP server port (default: 9191)
//   - SERVER_SHUTDOWN_TIMEOUT: graceful shutdown timeout (default: 10s)
//   - SERVER_RATE_LIMIT / SERVER_RATE_BURST: per-org limiter (default: 20/s, 40)
//   - STORE_PATH: sqlite file (default: ~/.config/firmd/firmd.db)
//   - ANALYTICS_CACHE_TTL: analytics cache TTL (default: 5m)
//   - ANALYTICS_CLEANUP_INTERVAL: cache janitor interval (default: 1m)
//   - ANALYTICS_MAX_ENTRIES: cache bound (default: 1000)
//   - ANALYTICS_FORECAST_PERIODS: forecast horizon in months (default: 3)
//   - EVENTS_NATS_URL: NATS server URL (default: empty, events disabled)
//   - EVENTS_NATS_TOKEN: NATS auth token (redacted in logs)
//   - EVENTS_SUBJECT_PREFIX: subject prefix (default: firmd.records)
//   - OTEL_ENABLE: enable OpenTelemetry (default: false)
//   - OTEL_SERVICE_NAME: service name (default: firmd)
//   - LOG_LEVEL / LOG_FORMAT: logging (default: info / json)
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("Server port:", cfg.Server.Port)
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HTTP_HOST", "localhost"),
			Port:            getEnvInt("SERVER_HTTP_PORT", 9191),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimit:       getEnvFloat("SERVER_RATE_LIMIT", 20),
			RateBurst:       getEnvInt("SERVER_RATE_BURST", 40),
		},
		Store: StoreConfig{
			Path: getEnvString("STORE_PATH", ""),
		},
		Analytics: AnalyticsConfig{
			CacheTTL:        getEnvDuration("ANALYTICS_CACHE_TTL", 5*time.Minute),
			CleanupInterval: getEnvDuration("ANALYTICS_CLEANUP_INTERVAL", time.Minute),
			MaxEntries:      getEnvInt("ANALYTICS_MAX_ENTRIES", 1000),
			ForecastPeriods: getEnvInt("ANALYTICS_FORECAST_PERIODS", 3),
		},
		Events: EventsConfig{
			URL:           getEnvString("EVENTS_NATS_URL", ""),
			Token:         Secret(getEnvString("EVENTS_NATS_TOKEN", "")),
			SubjectPrefix: getEnvString("EVENTS_SUBJECT_PREFIX", "firmd.records"),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", false),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", "firmd"),
			LogLevel:        getEnvString("LOG_LEVEL", "info"),
			LogFormat:       getEnvString("LOG_FORMAT", "json"),
		},
	}

	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout, cache TTL or cleanup interval is not positive
//   - Store path is empty
//   - Service name is empty (when telemetry is enabled)
//   - A report threshold is outside its range
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("rate limit and burst cannot be negative")
	}

	if c.Store.Path == "" {
		return errors.New("store path is required")
	}

	if c.Analytics.CacheTTL <= 0 {
		return errors.New("analytics cache ttl must be positive")
	}
	if c.Analytics.CleanupInterval <= 0 {
		return errors.New("analytics cleanup interval must be positive")
	}
	if c.Analytics.MaxEntries < 1 {
		return fmt.Errorf("analytics max entries must be >= 1, got %d", c.Analytics.MaxEntries)
	}
	if c.Analytics.ForecastPeriods < 1 || c.Analytics.ForecastPeriods > 24 {
		return fmt.Errorf("forecast periods must be 1-24, got %d", c.Analytics.ForecastPeriods)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	for name, pct := range map[string]float64{
		"min_closure_rate":    c.Report.MinClosureRate,
		"min_task_completion": c.Report.MinTaskCompletion,
		"max_overdue_pct":     c.Report.MaxOverduePct,
	} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("report.%s must be 0-100, got %v", name, pct)
		}
	}
	if c.Report.MaxResolutionDays <= 0 {
		return errors.New("report.max_resolution_days must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
