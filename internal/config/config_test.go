package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  rest_url: https://sho.rt
  ws_url: wss://sho.rt/ws
  token: abc
realtime:
  max_reconnect_attempts: 7
  server_disconnect_codes: [4000, 4001]
database:
  host: localhost
  port: 5432
  name: clicks
  user: testuser
  password: testpass
recorder:
  enabled: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.RestURL != "https://sho.rt" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://sho.rt")
	}
	if cfg.API.Token != "abc" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "abc")
	}
	if cfg.Realtime.MaxReconnectAttempts != 7 {
		t.Errorf("Realtime.MaxReconnectAttempts = %d, want 7", cfg.Realtime.MaxReconnectAttempts)
	}
	if !slices.Equal(cfg.Realtime.ServerDisconnectCodes, []int{4000, 4001}) {
		t.Errorf("Realtime.ServerDisconnectCodes = %v", cfg.Realtime.ServerDisconnectCodes)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if !cfg.Recorder.Enabled {
		t.Error("Recorder.Enabled = false, want true")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_TOKEN", "tok-xyz")

	yaml := `
api:
  token: ${TEST_TOKEN}
database:
  host: localhost
  name: clicks
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
	if cfg.API.Token != "tok-xyz" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "tok-xyz")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil ||
		!strings.Contains(err.Error(), "read config file") {
		t.Errorf("missing file error = %v", err)
	}

	path := writeTempFile(t, "api: [unterminated")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("bad yaml error = %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
api:
  token: abc
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Realtime.ReconnectBaseDelay != time.Second {
		t.Errorf("Realtime.ReconnectBaseDelay = %v, want 1s", cfg.Realtime.ReconnectBaseDelay)
	}
	if cfg.Realtime.MaxReconnectAttempts != 5 {
		t.Errorf("Realtime.MaxReconnectAttempts = %d, want 5", cfg.Realtime.MaxReconnectAttempts)
	}
	if !slices.Equal(cfg.Realtime.ServerDisconnectCodes, []int{4000}) {
		t.Errorf("Realtime.ServerDisconnectCodes = %v, want [4000]", cfg.Realtime.ServerDisconnectCodes)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want default %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "recorder:\n  enabled: true\n")

	_, err := LoadAndValidate(path)
	if err == nil || err.Error() != "validate config: database.host is required" {
		t.Errorf("LoadAndValidate error = %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	db := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "ws url with http scheme",
			mutate:  func(c *Config) { c.API.WSURL = "http://sho.rt/ws" },
			wantErr: `api.ws_url must be an absolute [ws wss] URL, got "http://sho.rt/ws"`,
		},
		{
			name:    "relative rest url",
			mutate:  func(c *Config) { c.API.RestURL = "/api" },
			wantErr: `api.rest_url must be an absolute [http https] URL, got "/api"`,
		},
		{
			name:    "zero reconnect attempts",
			mutate:  func(c *Config) { c.Realtime.MaxReconnectAttempts = -1 },
			wantErr: "realtime.max_reconnect_attempts must be >= 1",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *Config) { c.Realtime.ReconnectMaxDelay = 500 * time.Millisecond },
			wantErr: "realtime.reconnect_max_delay (500ms) cannot be below reconnect_base_delay (1s)",
		},
		{
			name:    "ping timeout not above interval",
			mutate:  func(c *Config) { c.Realtime.PingTimeout = c.Realtime.PingInterval },
			wantErr: "realtime.ping_timeout (25s) must exceed ping_interval (25s)",
		},
		{
			name:    "bad close code",
			mutate:  func(c *Config) { c.Realtime.ServerDisconnectCodes = []int{42} },
			wantErr: "realtime.server_disconnect_codes: 42 is not a websocket close code",
		},
		{
			name:    "recorder without database",
			mutate:  func(c *Config) { c.Recorder.Enabled = true },
			wantErr: "database.host is required",
		},
		{
			name: "recorder missing password",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 1}
			},
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Database = db
				c.Database.MaxConns = 5
				c.Database.MinConns = 10
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "valid recorder",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Database = db
			},
			wantErr: "",
		},
		{
			name: "poller concurrency",
			mutate: func(c *Config) {
				c.Poller.Enabled = true
				c.Poller.Concurrency = 0
			},
			wantErr: "poller.concurrency must be >= 1",
		},
		{
			name: "metrics port out of range",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "metrics port ignored when disabled",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestConnectionConfigs(t *testing.T) {
	cfg := Default()
	cfg.API.WSURL = "wss://sho.rt/ws"

	cc := cfg.ClientConfig()
	if cc.URL != "wss://sho.rt/ws" {
		t.Errorf("URL = %q", cc.URL)
	}
	if cc.HandshakeTimeout != DefaultOpenTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", cc.HandshakeTimeout, DefaultOpenTimeout)
	}
	if cc.PingInterval != DefaultPingInterval || cc.PingTimeout != DefaultPingTimeout {
		t.Errorf("ping = %v/%v", cc.PingInterval, cc.PingTimeout)
	}
	if cc.BufferSize != DefaultMessageBufferSize {
		t.Errorf("BufferSize = %d, want %d", cc.BufferSize, DefaultMessageBufferSize)
	}

	mc := cfg.ManagerConfig()
	if mc.ReconnectBaseWait != time.Second || mc.MaxReconnectAttempts != 5 {
		t.Errorf("ManagerConfig = %+v", mc)
	}
	if !slices.Equal(mc.ServerDisconnectCodes, []int{4000}) {
		t.Errorf("ServerDisconnectCodes = %v", mc.ServerDisconnectCodes)
	}
}

func TestExampleConfig(t *testing.T) {
	t.Setenv("LINKPULSE_TOKEN", "tok")
	t.Setenv("LINKPULSE_DB_PASSWORD", "pw")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "linkpulse.example.yaml"))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.API.Token != "tok" || cfg.Database.Password != "pw" {
		t.Errorf("env not expanded: token=%q password=%q", cfg.API.Token, cfg.Database.Password)
	}
	if !cfg.Poller.Enabled || cfg.Recorder.Enabled {
		t.Errorf("poller/recorder = %v/%v, want true/false", cfg.Poller.Enabled, cfg.Recorder.Enabled)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
