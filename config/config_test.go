package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nsould.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":4444"
ttl_seconds: 120
max_connections: 64
max_sessions_per_login: 3
disabled_auth_mechanisms: [none]
commands:
  state: state
  ping: ping
database:
  driver: sqlite
  dsn: /var/lib/nsould/accounts.db
metrics_listen: "127.0.0.1:9090"
websocket_listen: "127.0.0.1:8080"
mdns:
  enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":4444" {
		t.Errorf("Listen = %q, want :4444", cfg.Listen)
	}
	if cfg.TTLSeconds != 120 {
		t.Errorf("TTLSeconds = %d, want 120", cfg.TTLSeconds)
	}
	if cfg.MaxSessionsPerLogin != 3 {
		t.Errorf("MaxSessionsPerLogin = %d, want 3", cfg.MaxSessionsPerLogin)
	}
	if len(cfg.DisabledAuthMechanisms) != 1 || cfg.DisabledAuthMechanisms[0] != "none" {
		t.Errorf("DisabledAuthMechanisms = %v, want [none]", cfg.DisabledAuthMechanisms)
	}
	if len(cfg.Commands) != 2 {
		t.Errorf("Commands = %v, want 2 entries", cfg.Commands)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if !cfg.MDNS.Enabled || cfg.MDNS.Instance != "nsould" {
		t.Errorf("MDNS = %+v, want enabled with the default instance", cfg.MDNS)
	}
	// Defaults fill unset fields.
	if cfg.PollTimeoutMillis != 50 {
		t.Errorf("PollTimeoutMillis = %d, want default 50", cfg.PollTimeoutMillis)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":4242" {
		t.Errorf("Listen = %q, want :4242", cfg.Listen)
	}
	if cfg.TTLSeconds != 600 || cfg.MaxConnections != 1024 || cfg.MaxSessionsPerLogin != 8 {
		t.Errorf("defaults = %d/%d/%d, want 600/1024/8",
			cfg.TTLSeconds, cfg.MaxConnections, cfg.MaxSessionsPerLogin)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %q, want memory", cfg.Database.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on defaults: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "unknown driver"},
		{"missing dsn", func(c *Config) { c.Database.Driver = "postgres" }, "dsn is required"},
		{"negative ttl", func(c *Config) { c.TTLSeconds = -1 }, "ttl_seconds"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen: [:::bad")
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
