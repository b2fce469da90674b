package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, ANALYTICS_CACHE_TTL, etc.)
//  2. YAML config file (~/.config/firmd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path. A missing file is not an error.
//
// # Security Considerations
//
// The file must have 0600 or 0400 permissions, be at most 1MB, and live in
// ~/.config/firmd/ or /etc/firmd/. Symlinks are resolved before the
// directory check.
//
// # Environment Variable Mapping
//
// Environment variables are lowercased and split on the first underscore:
//
//	SERVER_HTTP_PORT     -> server.http_port
//	ANALYTICS_CACHE_TTL  -> analytics.cache_ttl
//	EVENTS_NATS_URL      -> events.nats_url
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeyTransform maps SECTION_FIELD_NAME to section.field_name.
func envKeyTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// DefaultConfigDir returns ~/.config/firmd.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "firmd"), nil
}

// EnsureConfigDir creates the firmd config directory with 0700 permissions
// if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := DefaultConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Path may not exist yet.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "firmd"),
		"/etc/firmd",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/firmd/ or /etc/firmd/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 20
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 40
	}

	if cfg.Store.Path == "" {
		if dir, err := DefaultConfigDir(); err == nil {
			cfg.Store.Path = filepath.Join(dir, "firmd.db")
		} else {
			cfg.Store.Path = "firmd.db"
		}
	}

	if cfg.Analytics.CacheTTL == 0 {
		cfg.Analytics.CacheTTL = 5 * time.Minute
	}
	if cfg.Analytics.CleanupInterval == 0 {
		cfg.Analytics.CleanupInterval = time.Minute
	}
	if cfg.Analytics.MaxEntries == 0 {
		cfg.Analytics.MaxEntries = 1000
	}
	if cfg.Analytics.ForecastPeriods == 0 {
		cfg.Analytics.ForecastPeriods = 3
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "firmd.records"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "firmd"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}

	if cfg.Report.RevenueDeclinePct == 0 {
		cfg.Report.RevenueDeclinePct = -10
	}
	if cfg.Report.MinClosureRate == 0 {
		cfg.Report.MinClosureRate = 50
	}
	if cfg.Report.MaxResolutionDays == 0 {
		cfg.Report.MaxResolutionDays = 30
	}
	if cfg.Report.MinTaskCompletion == 0 {
		cfg.Report.MinTaskCompletion = 70
	}
	if cfg.Report.MaxOverduePct == 0 {
		cfg.Report.MaxOverduePct = 15
	}
}
