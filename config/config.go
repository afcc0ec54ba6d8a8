// Package config loads and validates the server configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	// Listen is the TCP address clients connect to.
	// Defaults to ":4242".
	Listen string `yaml:"listen"`

	// TTLSeconds is the idle timeout; a session silent that long is
	// evicted. Defaults to 600.
	TTLSeconds int `yaml:"ttl_seconds"`

	// PollTimeoutMillis caps how long the event loop waits for socket
	// readiness per cycle. Defaults to 50.
	PollTimeoutMillis int `yaml:"poll_timeout_ms"`

	// MaxConnections is the connected-session ceiling; connections
	// beyond it are rejected. Defaults to 1024.
	MaxConnections int `yaml:"max_connections"`

	// MaxSessionsPerLogin bounds concurrent sessions per account.
	// Defaults to 8.
	MaxSessionsPerLogin int `yaml:"max_sessions_per_login"`

	// DisabledAuthMechanisms lists auth mechanisms refused at auth_ag
	// time even though the server knows them (e.g. ["none"]).
	DisabledAuthMechanisms []string `yaml:"disabled_auth_mechanisms"`

	// Commands maps protocol opcodes to built-in command names. Empty
	// means the full default table. Deployments can drop opcodes or
	// alias them without rebuilding.
	Commands map[string]string `yaml:"commands"`

	// Database selects the account store backend.
	Database Database `yaml:"database"`

	// MetricsListen is the HTTP address serving /metrics. Empty
	// disables the endpoint.
	MetricsListen string `yaml:"metrics_listen"`

	// WebsocketListen is the HTTP address serving the websocket
	// gateway. Empty disables the gateway.
	WebsocketListen string `yaml:"websocket_listen"`

	// MDNS controls LAN service advertisement.
	MDNS MDNS `yaml:"mdns"`
}

// Database selects and configures the account store.
type Database struct {
	// Driver is "postgres", "sqlite" or "memory".
	// Defaults to "memory".
	Driver string `yaml:"driver"`

	// DSN is the postgres connection string or the sqlite file path.
	DSN string `yaml:"dsn"`
}

// MDNS configures multicast-DNS advertisement of the server endpoint.
type MDNS struct {
	Enabled bool `yaml:"enabled"`

	// Instance is the advertised service instance name.
	// Defaults to "nsould".
	Instance string `yaml:"instance"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":4242"
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 600
	}
	if c.PollTimeoutMillis == 0 {
		c.PollTimeoutMillis = 50
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 1024
	}
	if c.MaxSessionsPerLogin == 0 {
		c.MaxSessionsPerLogin = 8
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.MDNS.Instance == "" {
		c.MDNS.Instance = "nsould"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must be positive, got %d", c.TTLSeconds)
	}
	if c.PollTimeoutMillis < 0 {
		return fmt.Errorf("poll_timeout_ms must be positive, got %d", c.PollTimeoutMillis)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxSessionsPerLogin < 0 {
		return fmt.Errorf("max_sessions_per_login must be positive, got %d", c.MaxSessionsPerLogin)
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database: dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database: unknown driver %q (supported: postgres, sqlite, memory)", c.Database.Driver)
	}

	return nil
}
