// Package config loads streamctl configuration from defaults, an optional
// YAML file, STREAMCTL_* environment variables and runtime overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full streamctl configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig controls the prometheus endpoint on the API server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WorkspaceConfig holds the two base directories the workspace layout is
// derived from.
type WorkspaceConfig struct {
	LocalBase  string `mapstructure:"local_base"`
	RemoteBase string `mapstructure:"remote_base"`
}

// Registry backends.
const (
	RegistryFile   = "file"
	RegistrySQLite = "sqlite"
)

// RegistryConfig selects where application records live.
type RegistryConfig struct {
	// Backend is "file" (one JSON document per record) or "sqlite".
	Backend string `mapstructure:"backend"`

	// Path is the registry directory for "file" and the database file for
	// "sqlite".
	Path string `mapstructure:"path"`

	// URL and AuthToken select a remote libsql database instead of Path.
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

type StorageConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

// S3Config configures the remote workspace backend. An empty bucket means
// remote staging is disabled.
type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// TrackingConfig configures the state poller.
type TrackingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
}

// RedisConfig is used for the poller lease. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	LeaseKey string `mapstructure:"lease_key"`
}

// MinLeaseTTL is the shortest lease the poller will hold.
const MinLeaseTTL = time.Second

// Validate checks cross-field constraints the decoder cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Registry.Backend) {
	case RegistryFile:
		if strings.TrimSpace(c.Registry.Path) == "" {
			return fmt.Errorf("registry.path is required for the file backend")
		}
	case RegistrySQLite:
		if strings.TrimSpace(c.Registry.Path) == "" && strings.TrimSpace(c.Registry.URL) == "" {
			return fmt.Errorf("registry.path or registry.url is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("registry.backend %q is not one of file, sqlite", c.Registry.Backend)
	}
	if c.Tracking.Enabled && c.Tracking.Interval <= 0 {
		return fmt.Errorf("tracking.interval must be positive")
	}
	if c.Tracking.Concurrency < 0 {
		return fmt.Errorf("tracking.concurrency must be >= 0")
	}
	if c.Tracking.LeaseTTL < MinLeaseTTL {
		return fmt.Errorf("tracking.lease_ttl %s is below the %s minimum", c.Tracking.LeaseTTL, MinLeaseTTL)
	}
	return nil
}
