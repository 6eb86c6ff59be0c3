// ABOUTME: Configuration loading and parsing for the palaver engine
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultSendBuffer   = 64
	DefaultBacklogLimit = 100
)

// Config represents the complete palaver configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RealtimeConfig holds tuning knobs for the realtime engine
type RealtimeConfig struct {
	// SendBuffer is the per-connection outbound queue size
	SendBuffer int `yaml:"send_buffer"`
	// BacklogLimit caps the unread backlog returned on join
	BacklogLimit int `yaml:"backlog_limit"`

	PingInterval   time.Duration `yaml:"-"`
	PongTimeout    time.Duration `yaml:"-"`
	TypingInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PingIntervalRaw   string `yaml:"ping_interval"`
	PongTimeoutRaw    string `yaml:"pong_timeout"`
	TypingIntervalRaw string `yaml:"typing_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued tuning fields
func (c *Config) applyDefaults() {
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = DefaultSendBuffer
	}
	if c.Realtime.BacklogLimit <= 0 {
		c.Realtime.BacklogLimit = DefaultBacklogLimit
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = 30 * time.Second
	}
	if c.Realtime.PongTimeout == 0 {
		c.Realtime.PongTimeout = 60 * time.Second
	}
	if c.Realtime.TypingInterval == 0 {
		c.Realtime.TypingInterval = 2 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Realtime.PongTimeout <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_timeout must exceed realtime.ping_interval")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Realtime.PingIntervalRaw != "" {
		cfg.Realtime.PingInterval, err = time.ParseDuration(cfg.Realtime.PingIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing ping_interval %q: %w", cfg.Realtime.PingIntervalRaw, err)
		}
	}

	if cfg.Realtime.PongTimeoutRaw != "" {
		cfg.Realtime.PongTimeout, err = time.ParseDuration(cfg.Realtime.PongTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing pong_timeout %q: %w", cfg.Realtime.PongTimeoutRaw, err)
		}
	}

	if cfg.Realtime.TypingIntervalRaw != "" {
		cfg.Realtime.TypingInterval, err = time.ParseDuration(cfg.Realtime.TypingIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing typing_interval %q: %w", cfg.Realtime.TypingIntervalRaw, err)
		}
	}

	return nil
}
