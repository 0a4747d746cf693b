// ABOUTME: Configuration loading and parsing for dock-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete dock-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	Hub       HubConfig       `yaml:"hub" toml:"hub"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// EngineConfig describes how to reach the container engine.
// Exactly one of Socket or Host is set.
type EngineConfig struct {
	Socket     string `yaml:"socket" toml:"socket"`
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	APIVersion string `yaml:"api_version" toml:"api_version"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// EventsConfig controls the engine event subscriber
type EventsConfig struct {
	Enabled           bool    `yaml:"enabled" toml:"enabled"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	Jitter            bool    `yaml:"jitter" toml:"jitter"`
	DedupeSize        int     `yaml:"dedupe_size" toml:"dedupe_size"`

	InitialBackoff time.Duration `yaml:"-" toml:"-"`
	MaxBackoff     time.Duration `yaml:"-" toml:"-"`
	DedupeTTL      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	InitialBackoffRaw string `yaml:"initial_backoff" toml:"initial_backoff"`
	MaxBackoffRaw     string `yaml:"max_backoff" toml:"max_backoff"`
	DedupeTTLRaw      string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// HubConfig controls WebSocket fan-out
type HubConfig struct {
	QueueSize      int      `yaml:"queue_size" toml:"queue_size"`
	OriginPatterns []string `yaml:"origin_patterns" toml:"origin_patterns"`

	SendTimeout    time.Duration `yaml:"-" toml:"-"`
	SendTimeoutRaw string        `yaml:"send_timeout" toml:"send_timeout"`
}

// DatabaseConfig holds event ledger configuration. An empty path disables the ledger.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`

	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// MinJWTSecretLength is the minimum accepted auth.jwt_secret length in bytes.
const MinJWTSecretLength = 32

// Default returns a Config populated with defaults. Load decodes the file on
// top of it, so keys absent from the file keep these values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Port:    2375,
			Timeout: 30 * time.Second,
		},
		Events: EventsConfig{
			Enabled:           true,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
			DedupeTTL:         5 * time.Minute,
			DedupeSize:        4096,
		},
		Hub: HubConfig{
			QueueSize:   64,
			SendTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Retention: 7 * 24 * time.Hour,
		},
		Tailscale: TailscaleConfig{
			Hostname: "dock-gateway",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch {
	case c.Engine.Socket == "" && c.Engine.Host == "":
		return fmt.Errorf("engine.socket or engine.host is required")
	case c.Engine.Socket != "" && c.Engine.Host != "":
		return fmt.Errorf("engine.socket and engine.host are mutually exclusive")
	}
	if c.Engine.Port < 1 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port must be between 1 and 65535, got %d", c.Engine.Port)
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout cannot be negative")
	}

	if c.Events.Enabled {
		if c.Events.InitialBackoff <= 0 {
			return fmt.Errorf("events.initial_backoff must be positive")
		}
		if c.Events.MaxBackoff < c.Events.InitialBackoff {
			return fmt.Errorf("events.max_backoff must be >= events.initial_backoff")
		}
		if c.Events.BackoffMultiplier < 1 {
			return fmt.Errorf("events.backoff_multiplier must be >= 1, got %g", c.Events.BackoffMultiplier)
		}
	}

	if c.Hub.QueueSize < 1 {
		return fmt.Errorf("hub.queue_size must be at least 1")
	}
	if c.Hub.SendTimeout <= 0 {
		return fmt.Errorf("hub.send_timeout must be positive")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// ParseLevel maps a logging.level value to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", level)
	}
}

// LedgerEnabled reports whether events are persisted to SQLite.
func (c *Config) LedgerEnabled() bool {
	return c.Database.Path != ""
}

// AuthEnabled reports whether HTTP routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"engine.timeout", cfg.Engine.TimeoutRaw, &cfg.Engine.Timeout},
		{"events.initial_backoff", cfg.Events.InitialBackoffRaw, &cfg.Events.InitialBackoff},
		{"events.max_backoff", cfg.Events.MaxBackoffRaw, &cfg.Events.MaxBackoff},
		{"events.dedupe_ttl", cfg.Events.DedupeTTLRaw, &cfg.Events.DedupeTTL},
		{"hub.send_timeout", cfg.Hub.SendTimeoutRaw, &cfg.Hub.SendTimeout},
		{"database.retention", cfg.Database.RetentionRaw, &cfg.Database.Retention},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
