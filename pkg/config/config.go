package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BlockedResponsePolicy is the closed set of synthetic blocked-response shapes.
type BlockedResponsePolicy string

const (
	BlockedResponseRefused  BlockedResponsePolicy = "refused"
	BlockedResponseNXDomain BlockedResponsePolicy = "nxdomain"
	BlockedResponseZero     BlockedResponsePolicy = "zero"
)

// Config holds the resolver's recognized configuration document (spec.md §6).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Blocklist BlocklistConfig `yaml:"blocklist"`
	Logging   LoggingConfig   `yaml:"logging"`
	Updater   UpdaterConfig   `yaml:"updater"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the listener and upstream settings.
type ServerConfig struct {
	ListenAddr      string                `yaml:"listen_addr"`
	ListenPort      int                   `yaml:"listen_port"`
	UpstreamDNS     []string              `yaml:"upstream_dns"`
	BlockedResponse BlockedResponsePolicy `yaml:"blocked_response"`
	PidFile         string                `yaml:"pid_file"`
}

// BlocklistConfig holds blocklist source settings.
type BlocklistConfig struct {
	CustomList      string   `yaml:"custom_list"`
	LocalLists      []string `yaml:"local_lists"`
	RemoteLists     []string `yaml:"remote_lists"`
	RemoteCacheFile string   `yaml:"remote_cache_file"`
	EnableWildcards bool     `yaml:"enable_wildcards"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	LogLevel   string `yaml:"log_level"` // trace, debug, info, warn, error
	LogBlocked bool   `yaml:"log_blocked"`
	LogPath    string `yaml:"log_path"`
}

// UpdaterConfig holds the periodic-refresh schedule.
type UpdaterConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // five-field cron
	Timezone string `yaml:"timezone"` // IANA zone or offset like "EST"
}

// TelemetryConfig holds the optional Prometheus metrics endpoint. Metrics are
// an ambient observability concern, not one of spec.md's Non-goals.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	PrometheusAddr string `yaml:"prometheus_addr"`
}

// Load reads and validates a configuration document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults returns a configuration populated with defaults only, used
// by commands that can run without a config file present (e.g. in tests).
func LoadWithDefaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0"
	}
	if c.Server.ListenPort == 0 {
		c.Server.ListenPort = 53
	}
	if len(c.Server.UpstreamDNS) == 0 {
		c.Server.UpstreamDNS = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	if c.Server.BlockedResponse == "" {
		c.Server.BlockedResponse = BlockedResponseRefused
	}
	if c.Server.PidFile == "" {
		c.Server.PidFile = "/var/run/skypier-blackhole.pid"
	}

	if c.Blocklist.CustomList == "" {
		c.Blocklist.CustomList = "/etc/skypier/custom-blocklist.txt"
	}
	if c.Blocklist.RemoteCacheFile == "" {
		c.Blocklist.RemoteCacheFile = "/etc/skypier/remote-blocklist-cache.txt"
	}

	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
	if c.Logging.LogPath == "" {
		c.Logging.LogPath = "/var/log/skypier/blackhole.log"
	}

	if c.Updater.Schedule == "" {
		c.Updater.Schedule = "0 0 * * *"
	}
	if c.Updater.Timezone == "" {
		c.Updater.Timezone = "UTC"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "skypier-blackhole"
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = "dev"
	}
	if c.Telemetry.PrometheusAddr == "" {
		c.Telemetry.PrometheusAddr = ":9090"
	}
}

// Validate checks the configuration for startup-fatal errors (spec.md §7:
// ConfigError is fatal at startup only).
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr cannot be empty")
	}
	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("server.listen_port out of range: %d", c.Server.ListenPort)
	}
	if len(c.Server.UpstreamDNS) == 0 {
		return fmt.Errorf("at least one server.upstream_dns entry is required")
	}

	switch c.Server.BlockedResponse {
	case BlockedResponseRefused, BlockedResponseNXDomain, BlockedResponseZero:
	default:
		return fmt.Errorf("invalid server.blocked_response: %q", c.Server.BlockedResponse)
	}

	switch c.Logging.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.log_level: %q", c.Logging.LogLevel)
	}

	return nil
}

// Addr returns the combined listen address and port, as consumed by the DNS
// server sockets.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.ListenPort)
}
