package logging

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"
)

// Streams a Logger can write its encoded entries to.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamNone   = "none"
)

// Config holds logging configuration.
type Config struct {
	Level zapcore.Level `koanf:"level"`
	// Format is "json" for the server and "console" for terminals.
	Format string `koanf:"format"`
	// Stream is stdout for firmd; firmctl logs to stderr so it never
	// mixes with rendered output.
	Stream string `koanf:"stream"`
	// OTEL also ships entries through the OpenTelemetry log bridge.
	OTEL bool `koanf:"otel"`

	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     bool              `koanf:"caller"`
	Stacktrace zapcore.Level     `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
	Redaction  RedactionConfig   `koanf:"redaction"`
}

// SamplingConfig thins out repeated entries below Error. Per Tick, the
// first Initial entries with a given message pass, then every
// Thereafter-th one.
type SamplingConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Tick       time.Duration `koanf:"tick"`
	Initial    int           `koanf:"initial"`
	Thereafter int           `koanf:"thereafter"`
}

// RedactionConfig masks client PII and credentials before encoding.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns the firmd server defaults: JSON on stdout at
// Info, sampled, with client identifiers redacted.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stream: StreamStdout,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:     true,
		Stacktrace: zapcore.ErrorLevel,
		Fields:     map[string]string{"service": "firmd"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key", "authorization",
				"tax_id", "iban", "ssn", "nats_token",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// ConfigFor builds a default config with the given level and format strings.
func ConfigFor(level, format string) (*Config, error) {
	cfg := NewDefaultConfig()
	if level != "" {
		l, err := LevelFromString(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = l
	}
	if format != "" {
		cfg.Format = format
	}
	return cfg, cfg.Validate()
}

// CLIConfig is the firmctl setup: console lines on stderr, unsampled,
// without caller info. verbose lowers the level from Warn to Debug.
func CLIConfig(verbose bool) *Config {
	cfg := NewDefaultConfig()
	cfg.Format = "console"
	cfg.Stream = StreamStderr
	cfg.Sampling.Enabled = false
	cfg.Caller = false
	cfg.Fields = map[string]string{"service": "firmctl"}
	cfg.Level = zapcore.WarnLevel
	if verbose {
		cfg.Level = zapcore.DebugLevel
	}
	return cfg
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	switch c.Stream {
	case StreamStdout, StreamStderr:
	case StreamNone, "":
		if !c.OTEL {
			return fmt.Errorf("no output: stream is %q and otel is off", c.Stream)
		}
	default:
		return fmt.Errorf("stream must be stdout, stderr or none, got %q", c.Stream)
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > maxPatternLen {
				return fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("field %q: key and value must be non-empty", k)
		}
	}
	return nil
}

// writer returns the stream's file, or nil for none.
func (c *Config) writer() io.Writer {
	switch c.Stream {
	case StreamStdout:
		return os.Stdout
	case StreamStderr:
		return os.Stderr
	default:
		return nil
	}
}
