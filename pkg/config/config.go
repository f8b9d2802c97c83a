// Package config loads relay's configuration: typed defaults, an optional
// relay.yaml merged on top, and environment overrides for addresses and
// secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration. Durations are declared in
// milliseconds in YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Buffer   BufferConfig   `yaml:"buffer"`
	SSE      SSEConfig      `yaml:"sse"`
	Router   RouterConfig   `yaml:"router"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// BufferConfig holds the per-session event retention settings.
type BufferConfig struct {
	MaxSize         int `yaml:"max_size"`         // Events retained per session
	TTL             int `yaml:"ttl"`              // ms; per-event retention
	CleanupInterval int `yaml:"cleanup_interval"` // ms; background sweep period
}

// SSEConfig holds transport settings.
type SSEConfig struct {
	HeartbeatInterval *int `yaml:"heartbeat_interval"` // ms; 0 disables keepalives
}

// RouterConfig holds fan-out settings.
type RouterConfig struct {
	DefaultFilterInternal *bool `yaml:"default_filter_internal"` // Suppress internal: kinds by default
}

// SessionConfig holds coordinator settings.
type SessionConfig struct {
	IdleTTL            int `yaml:"idle_ttl"` // ms; idle period before buffer reclaim
	SubscriberQueueCap int `yaml:"subscriber_queue_cap"`
}

// DatabaseConfig holds the optional event sink settings. An empty DSN
// disables persistence.
type DatabaseConfig struct {
	DSN       string `yaml:"dsn"`
	Retention int    `yaml:"retention"` // ms; stored-event retention window
}

// UpstreamConfig points at the OpenAI-compatible provider a turn streams
// from.
type UpstreamConfig struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // Env var holding the key, not the key itself
}

// defaults returns the documented default configuration.
func defaults() *Config {
	heartbeat := 15_000
	filterInternal := true
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Buffer: BufferConfig{
			MaxSize:         1000,
			TTL:             3_600_000,
			CleanupInterval: 60_000,
		},
		SSE:    SSEConfig{HeartbeatInterval: &heartbeat},
		Router: RouterConfig{DefaultFilterInternal: &filterInternal},
		Session: SessionConfig{
			IdleTTL:            1_800_000,
			SubscriberQueueCap: 256,
		},
		Database: DatabaseConfig{Retention: 86_400_000},
		Upstream: UpstreamConfig{APIKeyEnv: "UPSTREAM_API_KEY"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// it exists), then environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults-only deployment.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			var fileCfg Config
			if err := yaml.Unmarshal(ExpandEnv(data), &fileCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies the env vars that win over any file value.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("RELAY_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if url := os.Getenv("UPSTREAM_URL"); url != "" {
		cfg.Upstream.URL = url
	}
	if model := os.Getenv("UPSTREAM_MODEL"); model != "" {
		cfg.Upstream.Model = model
	}
}

func (c *Config) validate() error {
	if c.Buffer.MaxSize <= 0 {
		return fmt.Errorf("buffer.max_size must be positive, got %d", c.Buffer.MaxSize)
	}
	if c.Buffer.TTL < 0 || c.Buffer.CleanupInterval < 0 {
		return fmt.Errorf("buffer durations must not be negative")
	}
	if c.SSE.HeartbeatInterval != nil && *c.SSE.HeartbeatInterval < 0 {
		return fmt.Errorf("sse.heartbeat_interval must not be negative, got %d", *c.SSE.HeartbeatInterval)
	}
	if c.Session.SubscriberQueueCap <= 0 {
		return fmt.Errorf("session.subscriber_queue_cap must be positive, got %d", c.Session.SubscriberQueueCap)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// BufferTTL returns buffer.ttl as a duration.
func (c *Config) BufferTTL() time.Duration { return ms(c.Buffer.TTL) }

// BufferCleanupInterval returns buffer.cleanup_interval as a duration.
func (c *Config) BufferCleanupInterval() time.Duration { return ms(c.Buffer.CleanupInterval) }

// HeartbeatInterval returns sse.heartbeat_interval as a duration; zero
// disables keepalives.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.SSE.HeartbeatInterval == nil {
		return 15 * time.Second
	}
	return ms(*c.SSE.HeartbeatInterval)
}

// SessionIdleTTL returns session.idle_ttl as a duration.
func (c *Config) SessionIdleTTL() time.Duration { return ms(c.Session.IdleTTL) }

// DatabaseRetention returns database.retention as a duration.
func (c *Config) DatabaseRetention() time.Duration { return ms(c.Database.Retention) }

// FilterInternalByDefault reports whether subscribers suppress internal
// events unless they opt in.
func (c *Config) FilterInternalByDefault() bool {
	return c.Router.DefaultFilterInternal == nil || *c.Router.DefaultFilterInternal
}
