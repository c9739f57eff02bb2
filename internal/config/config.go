// ABOUTME: Configuration loading and parsing for the voice server
// ABOUTME: Supports YAML files with environment variable expansion and env overrides

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/youngnishant/fonoster/voice"
)

// Config represents the complete voice application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	TTS     TTSConfig     `yaml:"tts"`
	CDR     CDRConfig     `yaml:"cdr"`
}

// ServerConfig holds the HTTP surface configuration
type ServerConfig struct {
	Path       string `yaml:"path" env:"VOICE_PATH"`
	Port       int    `yaml:"port" env:"VOICE_PORT"`
	Bind       string `yaml:"bind" env:"VOICE_BIND"`
	AssetsDir  string `yaml:"assets_dir" env:"VOICE_ASSETS_DIR"`
	AuthSecret string `yaml:"auth_secret" env:"VOICE_AUTH_SECRET"`

	ShutdownTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" env:"VOICE_SHUTDOWN_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"VOICE_LOG_LEVEL"`
	Format string `yaml:"format" env:"VOICE_LOG_FORMAT"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"VOICE_METRICS_ENABLED"`
}

// TTSConfig holds speech synthesis configuration
type TTSConfig struct {
	Enabled bool   `yaml:"enabled" env:"VOICE_TTS_ENABLED"`
	Region  string `yaml:"region" env:"VOICE_TTS_REGION"`
	Voice   string `yaml:"voice" env:"VOICE_TTS_VOICE"`
	Engine  string `yaml:"engine" env:"VOICE_TTS_ENGINE"`
}

// CDRConfig holds call detail record storage configuration
type CDRConfig struct {
	Enabled bool   `yaml:"enabled" env:"VOICE_CDR_ENABLED"`
	Path    string `yaml:"path" env:"VOICE_CDR_PATH"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		CDR:     CDRConfig{Path: "data/cdr.db"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded
// inside the file, then VOICE_* environment variables override individual
// fields. An empty path yields the defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables in the raw YAML content
		expandedData := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and consistent.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := c.Server.Voice().WithDefaults().Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if c.TTS.Enabled {
		switch c.TTS.Engine {
		case "", "standard", "neural":
		default:
			return fmt.Errorf("tts.engine must be standard or neural (got %q)", c.TTS.Engine)
		}
	}

	if c.CDR.Enabled && c.CDR.Path == "" {
		return fmt.Errorf("cdr.path is required when cdr is enabled")
	}

	return nil
}

// Voice converts the server section to the voice package's config type.
func (s ServerConfig) Voice() voice.Config {
	return voice.Config{
		Path:            s.Path,
		Port:            s.Port,
		Bind:            s.Bind,
		AssetsDir:       s.AssetsDir,
		AuthSecret:      s.AuthSecret,
		ShutdownTimeout: s.ShutdownTimeout,
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	return nil
}
