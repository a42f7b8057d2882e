package config

import (
	"time"

	"github.com/rickgao/linkpulse/internal/connection"
)

// Config is the root configuration for linkpulse.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Database DBConfig       `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
	Poller   PollerConfig   `yaml:"poller"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// APIConfig holds the shortener's endpoints and credentials.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Token      string        `yaml:"token"`      // Bearer token
	TokenPath  string        `yaml:"token_path"` // File holding the bearer token, used when token is empty
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RealtimeConfig holds connection manager and websocket settings.
type RealtimeConfig struct {
	OpenTimeout           time.Duration `yaml:"open_timeout"`
	ReconnectBaseDelay    time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	PingInterval          time.Duration `yaml:"ping_interval"`
	PingTimeout           time.Duration `yaml:"ping_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	BufferSize            int           `yaml:"buffer_size"`
	ServerDisconnectCodes []int         `yaml:"server_disconnect_codes"`
}

// DBConfig holds the Postgres connection used by the click recorder.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds click recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PollerConfig holds stats poller settings.
type PollerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ClientConfig returns the websocket settings for the realtime feed.
func (c *Config) ClientConfig() connection.ClientConfig {
	return connection.ClientConfig{
		URL:              c.API.WSURL,
		HandshakeTimeout: c.Realtime.OpenTimeout,
		PingInterval:     c.Realtime.PingInterval,
		PingTimeout:      c.Realtime.PingTimeout,
		WriteTimeout:     c.Realtime.WriteTimeout,
		BufferSize:       c.Realtime.BufferSize,
	}
}

// ManagerConfig returns the reconnect policy for the realtime feed.
func (c *Config) ManagerConfig() connection.ManagerConfig {
	return connection.ManagerConfig{
		OpenTimeout:           c.Realtime.OpenTimeout,
		ReconnectBaseWait:     c.Realtime.ReconnectBaseDelay,
		ReconnectMaxWait:      c.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts:  c.Realtime.MaxReconnectAttempts,
		ServerDisconnectCodes: c.Realtime.ServerDisconnectCodes,
	}
}
